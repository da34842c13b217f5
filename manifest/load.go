package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/memvfs"
)

// LoadFile reads a manifest from a JSON (.json) or YAML (.yaml/.yml) file,
// the same extension-dispatched loading config.LoadConfigOverrideFile uses.
func LoadFile(p string) (*Manifest, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	var m Manifest
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown manifest file extension: %s", ext)
	}

	return &m, nil
}

// Apply materializes every node in m into fs. Directories, files, and
// symlinks are created in a first pass, recording each node's UUID if one
// was given; hardlinks are resolved against that UUID registry in a second
// pass, since a hardlink's source node may appear anywhere in the manifest
// relative to it.
func Apply(fs *memvfs.FS, m *Manifest) error {
	uuidPaths := make(map[string]string)
	var hardlinks []NodeDTO

	for _, node := range m.Nodes {
		if node.Type == HardlinkNodeType {
			hardlinks = append(hardlinks, node)
			continue
		}

		if err := applyNode(fs, node); err != nil {
			return fmt.Errorf("manifest: %s %q: %w", node.Type, node.Path, err)
		}
		if node.UUID != nil {
			uuidPaths[*node.UUID] = node.Path
		}
	}

	for _, node := range hardlinks {
		if node.Target == nil {
			return fmt.Errorf("manifest: hardlink %q has no target uuid", node.Path)
		}
		srcPath, ok := uuidPaths[*node.Target]
		if !ok {
			return fmt.Errorf("manifest: hardlink %q references unknown uuid %q", node.Path, *node.Target)
		}
		if err := fs.Link(srcPath, node.Path); err != nil {
			return fmt.Errorf("manifest: hardlink %q -> %q: %w", node.Path, srcPath, err)
		}
	}

	return nil
}

func applyNode(fs *memvfs.FS, node NodeDTO) error {
	mode := valueOrDefault(node.Mode, 0o755)

	switch node.Type {
	case DirNodeType:
		if err := fs.MkdirAll(node.Path, mode); err != nil {
			return err
		}
	case FileNodeType:
		if err := fs.MkdirAll(path.Dir(node.Path), 0o755); err != nil {
			return err
		}
		content := valueOrDefault(node.Content, "")
		if err := fs.WriteFile(node.Path, []byte(content)); err != nil {
			return err
		}
	case SymlinkNodeType:
		if node.Target == nil {
			return fmt.Errorf("symlink has no target")
		}
		if err := fs.MkdirAll(path.Dir(node.Path), 0o755); err != nil {
			return err
		}
		if err := fs.Symlink(*node.Target, node.Path); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown node type %q", node.Type)
	}

	if node.Mtime != nil || node.Atime != nil {
		info, err := fs.Lstat(node.Path)
		if err != nil {
			return err
		}
		atime := valueOrDefault(node.Atime, info.AccessTime())
		mtime := valueOrDefault(node.Mtime, info.ModTime())
		if err := fs.Utimes(node.Path, atime, mtime); err != nil {
			return err
		}
	}
	return nil
}

// NewUUID generates a fresh manifest node UUID, for callers building a
// Manifest programmatically instead of loading one from a file.
func NewUUID() string {
	return uuid.New().String()
}
