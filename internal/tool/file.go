package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sidekick-agent/sidekick/internal/flock"
	"github.com/sidekick-agent/sidekick/internal/fsutil"
)

// maxReadBytes caps how much of a file a single read_file call returns.
const maxReadBytes = 1 << 20

// memoryFileName is the shared insight file. Observer writes to it are
// prefixed with InsightMarker so the main agent can tell them apart from its
// own notes.
const (
	memoryFileName = "MEMORY.md"
	// InsightMarker prefixes observer-written insights in the memory file.
	InsightMarker = "insight:"
)

// FileToolConfig is shared by the locked file tools.
type FileToolConfig struct {
	Workspace    string
	Role         flock.Role
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewFileTools builds the locked file tool set for a workspace.
func NewFileTools(cfg FileToolConfig) []Tool {
	return []Tool{
		&ReadFileTool{cfg: cfg},
		&WriteFileTool{cfg: cfg},
		&EditFileTool{cfg: cfg},
		&ListDirTool{cfg: cfg},
	}
}

// ReadFileTool reads a file from the workspace under a shared-file lock.
type ReadFileTool struct {
	cfg FileToolConfig
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file from the workspace. Supports line offset and limit for large files."
}

func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":   map[string]any{"type": "string", "description": "Workspace-relative file path"},
			"offset": map[string]any{"type": "integer", "description": "1-based first line to return (default 1)"},
			"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines to return (default 1000)"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	offset := intArg(args, "offset", 1)
	limit := intArg(args, "limit", 1000)
	if offset < 1 {
		offset = 1
	}
	if limit < 1 {
		limit = 1
	}

	full, err := fsutil.ResolveWorkspacePath(t.cfg.Workspace, path)
	if err != nil {
		return "", err
	}

	var out string
	err = flock.Do(ctx, full, t.cfg.Role, t.cfg.ReadTimeout, func() error {
		data, rerr := fsutil.ReadFileCapped(full, maxReadBytes)
		if rerr != nil {
			return rerr
		}

		lines := strings.Split(string(data), "\n")
		if offset > len(lines) {
			out = ""
			return nil
		}
		end := offset - 1 + limit
		if end > len(lines) {
			end = len(lines)
		}
		out = strings.Join(lines[offset-1:end], "\n")
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// WriteFileTool writes a file in the workspace under an exclusive lock.
// Writes go through the atomic-rename path so the main agent never observes
// a partial file.
type WriteFileTool struct {
	cfg FileToolConfig
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a workspace file, creating parent directories as needed."
}

func (t *WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Workspace-relative file path"},
			"content": map[string]any{"type": "string", "description": "Full file content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return "", err
	}

	full, err := fsutil.ResolveWorkspacePath(t.cfg.Workspace, path)
	if err != nil {
		return "", err
	}

	// Observer insights written to the shared memory file carry the marker.
	if t.cfg.Role == flock.RoleSelfAgent && filepath.Base(full) == memoryFileName {
		if !strings.HasPrefix(strings.TrimSpace(content), InsightMarker) {
			content = InsightMarker + " " + content
		}
	}

	err = flock.Do(ctx, full, t.cfg.Role, t.cfg.WriteTimeout, func() error {
		return fsutil.AtomicWrite(full, []byte(content))
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

// EditFileTool replaces one occurrence of a string in a workspace file under
// an exclusive lock. The old string must appear exactly once.
type EditFileTool struct {
	cfg FileToolConfig
}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Replace an exact string in a workspace file. The old string must match exactly once."
}

func (t *EditFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":       map[string]any{"type": "string", "description": "Workspace-relative file path"},
			"old_string": map[string]any{"type": "string", "description": "Exact text to replace"},
			"new_string": map[string]any{"type": "string", "description": "Replacement text"},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	oldString, err := stringArg(args, "old_string")
	if err != nil {
		return "", err
	}
	newString, err := stringArg(args, "new_string")
	if err != nil {
		return "", err
	}

	full, err := fsutil.ResolveWorkspacePath(t.cfg.Workspace, path)
	if err != nil {
		return "", err
	}

	err = flock.Do(ctx, full, t.cfg.Role, t.cfg.WriteTimeout, func() error {
		data, rerr := os.ReadFile(full)
		if rerr != nil {
			return fmt.Errorf("failed to read %s: %w", path, rerr)
		}

		content := string(data)
		switch n := strings.Count(content, oldString); {
		case n == 0:
			return fmt.Errorf("old_string not found in %s", path)
		case n > 1:
			return fmt.Errorf("old_string appears %d times in %s, must be unique", n, path)
		}

		return fsutil.AtomicWrite(full, []byte(strings.Replace(content, oldString, newString, 1)))
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("edited %s", path), nil
}

// ListDirTool lists a workspace directory under a shared-file lock.
type ListDirTool struct {
	cfg FileToolConfig
}

func (t *ListDirTool) Name() string { return "list_dir" }

func (t *ListDirTool) Description() string {
	return "List the entries of a workspace directory. Directories are suffixed with '/'."
}

func (t *ListDirTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Workspace-relative directory path"},
		},
		"required": []string{"path"},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}

	full, err := fsutil.ResolveWorkspacePath(t.cfg.Workspace, path)
	if err != nil {
		return "", err
	}

	var out string
	err = flock.Do(ctx, full, t.cfg.Role, t.cfg.ReadTimeout, func() error {
		entries, rerr := os.ReadDir(full)
		if rerr != nil {
			return fmt.Errorf("failed to list %s: %w", path, rerr)
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			// Lock markers are coordination artifacts, not content.
			if strings.HasSuffix(e.Name(), flock.MarkerSuffix) {
				continue
			}
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		out = strings.Join(names, "\n")
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
