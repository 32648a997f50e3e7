// Package consts regroups the constants used through the stack: doctype
// names, node kinds, and reserved identifiers.
package consts

const (
	// FileSpaces is the doctype for the filespace registry documents.
	FileSpaces = "io.gobii.filespaces"
	// FileNodes is the doctype for files and directories inside a filespace.
	FileNodes = "io.gobii.nodes"
)

const (
	// DirKind is the type attribute for directories
	DirKind = "directory"
	// FileKind is the type attribute for files
	FileKind = "file"
)

// RootParentID is the parent_id value of root-level nodes.
const RootParentID = ""

// DefaultFileSpaceName is the name of the filespace provisioned for a new
// agent. The agent-creation workflow calls filespace.ProvisionDefault
// explicitly, so the side effect stays visible in the call graph.
const DefaultFileSpaceName = "workspace"
