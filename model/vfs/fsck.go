package vfs

import (
	"encoding/json"
	"fmt"
	"path"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/gobii-ai/gobii-platform-sub000/pkg/consts"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/couchdb"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/prefixer"
)

// Issue types reported by Fsck.
const (
	IssueBadPathCache   = "bad_path_cache"
	IssueOrphan         = "orphan"
	IssueBadParent      = "bad_parent"
	IssueNameConflict   = "name_conflict"
	IssueCycle          = "cycle"
	IssueLiveUnderTrash = "live_under_trashed"
	IssueDirWithContent = "directory_with_content"
	IssueForbiddenName  = "forbidden_name"
)

// FsckIssue describes one inconsistency found in the node tree of a
// filespace.
type FsckIssue struct {
	Type   string `json:"type"`
	NodeID string `json:"node_id"`
	Path   string `json:"path"`
	Detail string `json:"detail,omitempty"`
}

func (i *FsckIssue) String() string {
	if i.Detail == "" {
		return fmt.Sprintf("%s: %s (%s)", i.Type, i.Path, i.NodeID)
	}
	return fmt.Sprintf("%s: %s (%s): %s", i.Type, i.Path, i.NodeID, i.Detail)
}

// Fsck loads the whole node tree of a filespace and checks its structural
// invariants: the cached paths, the parent pointers, the live-name
// uniqueness scopes and the absence of cycles. It reports inconsistencies
// without repairing anything.
func Fsck(db prefixer.Prefixer, spaceID string) ([]*FsckIssue, error) {
	nodes := map[string]*Node{}
	err := couchdb.ForeachDocs(db, consts.FileNodes, func(_ string, data json.RawMessage) error {
		var n Node
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		if n.FileSpaceID != spaceID {
			return nil
		}
		nodes[n.DocID] = &n
		return nil
	})
	if err != nil {
		if couchdb.IsNoDatabaseError(err) {
			return nil, nil
		}
		return nil, err
	}

	var issues []*FsckIssue
	report := func(n *Node, kind, detail string) {
		issues = append(issues, &FsckIssue{
			Type:   kind,
			NodeID: n.DocID,
			Path:   n.Fullpath,
			Detail: detail,
		})
	}

	liveNames := map[string]string{}
	for _, n := range nodes {
		if CheckName(n.DocName) != nil {
			report(n, IssueForbiddenName, fmt.Sprintf("name %q", n.DocName))
		}
		if n.IsDir() && n.ContentKey != "" {
			report(n, IssueDirWithContent, "content_key is set")
		}

		parentPath := "/"
		if !n.IsRootLevel() {
			parent, ok := nodes[n.ParentID]
			if !ok {
				report(n, IssueOrphan, fmt.Sprintf("parent %s not found", n.ParentID))
				continue
			}
			if !parent.IsDir() {
				report(n, IssueBadParent, fmt.Sprintf("parent %s is a file", n.ParentID))
				continue
			}
			parentPath = parent.Fullpath
			if !n.Trashed() && parent.Trashed() {
				report(n, IssueLiveUnderTrash, fmt.Sprintf("parent %s is trashed", n.ParentID))
			}
		}
		if want := path.Join(parentPath, n.DocName); n.Fullpath != want {
			report(n, IssueBadPathCache, fmt.Sprintf("cached %q, expected %q", n.Fullpath, want))
		}

		if !n.Trashed() {
			key := n.ParentID + "\x00" + n.DocName
			if other, seen := liveNames[key]; seen {
				report(n, IssueNameConflict, fmt.Sprintf("same live name as %s", other))
			} else {
				liveNames[key] = n.DocID
			}
		}
	}

	for id, n := range nodes {
		cur := n.ParentID
		for depth := 0; cur != consts.RootParentID; depth++ {
			if cur == id || depth >= maxTreeDepth {
				report(n, IssueCycle, "ancestor chain does not reach the root")
				break
			}
			ancestor, ok := nodes[cur]
			if !ok {
				break // already reported as orphan
			}
			cur = ancestor.ParentID
		}
	}

	return issues, nil
}

// CheckSpaces runs Fsck on several filespaces of the same tenant and
// aggregates the results. Inconsistencies of one filespace do not prevent
// the others from being checked.
func CheckSpaces(db prefixer.Prefixer, spaceIDs []string) (map[string][]*FsckIssue, error) {
	var errm error
	all := make(map[string][]*FsckIssue, len(spaceIDs))
	for _, spaceID := range spaceIDs {
		issues, err := Fsck(db, spaceID)
		if err != nil {
			errm = multierror.Append(errm, fmt.Errorf("filespace %s: %w", spaceID, err))
			continue
		}
		if len(issues) > 0 {
			all[spaceID] = issues
		}
	}
	return all, errm
}
