package vfs

import (
	"path"
	"strings"
)

// FallbackBasename is the trailing key segment used when a filename reduces
// to nothing after sanitization.
const FallbackBasename = "file"

// ObjectKey builds the blob object key for a file node. The key is composed
// of the filespace identifier, the node identifier split in virtual
// subfolders to keep a bounded fan-out in the blob store, and a sanitized
// basename. It is stable across renames, except for the trailing segment.
func ObjectKey(spaceID, nodeID, basename string) string {
	return spaceID + "/" + splitNodeID(nodeID) + "/" + SanitizeBasename(basename)
}

// splitNodeID creates a virtual subfolder hierarchy by splitting the node
// identifier, which should be 32 characters long, on the 22nd and 27th
// characters.
func splitNodeID(id string) string {
	if len(id) != 32 {
		return id
	}
	return id[:22] + "/" + id[22:27] + "/" + id[27:]
}

// CurrentObjectKey returns the key under which the node content lives. The
// key that was actually used at storage time takes precedence over a freshly
// derived candidate.
func (n *Node) CurrentObjectKey(filename string) string {
	if n.ContentKey != "" {
		return n.ContentKey
	}
	if filename == "" {
		filename = n.DocName
	}
	return ObjectKey(n.FileSpaceID, n.DocID, filename)
}

// SanitizeBasename reduces a filename to a filesystem-safe basename. It
// keeps only the last path segment, drops control and forbidden characters,
// and trims surrounding dots and spaces. When nothing survives, it falls
// back on FallbackBasename.
func SanitizeBasename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(ForbiddenNameChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.Trim(b.String(), ". ")
	if name == "" {
		return FallbackBasename
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
