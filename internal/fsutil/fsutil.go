// Package fsutil provides the filesystem primitives shared by the locked
// file tools: workspace path confinement and atomic writes. Both agents read
// the same files, so partial writes must never be visible.
package fsutil

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// AtomicWrite writes data to path via a temp file in the same directory,
// fsyncs it, renames it over the target, and fsyncs the directory. Readers
// see either the old content or the new content, never a torn write.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath, err := tempPath(path)
	if err != nil {
		return err
	}

	tmpFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	success := false
	defer func() {
		tmpFile.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	if err := syncDir(dir); err != nil {
		return err
	}

	success = true
	return nil
}

// tempPath builds .<basename>.tmp.<pid>.<rand> next to the target so the
// rename stays on one filesystem.
func tempPath(path string) (string, error) {
	randBytes := make([]byte, 4)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("failed to generate temp suffix: %w", err)
	}

	dir := filepath.Dir(path)
	name := fmt.Sprintf(".%s.tmp.%d.%s", filepath.Base(path), os.Getpid(), hex.EncodeToString(randBytes))
	return filepath.Join(dir, name), nil
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}
	defer dir.Close()

	if err := dir.Sync(); err != nil {
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return nil
}

// ResolveWorkspacePath resolves a tool-supplied relative path against the
// workspace root, rejecting absolute paths, traversal, and symlink escapes.
// Every file tool goes through this before touching anything.
func ResolveWorkspacePath(workspace, relative string) (string, error) {
	rootAbs, err := filepath.EvalSymlinks(filepath.Clean(workspace))
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace: %w", err)
	}

	if filepath.IsAbs(relative) {
		return "", fmt.Errorf("absolute paths not allowed: %s", relative)
	}

	cleanPath := filepath.Clean(filepath.Join(rootAbs, relative))

	relPath, err := filepath.Rel(rootAbs, cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", relative)
	}

	// If the target already exists, make sure it is not a symlink pointing
	// outside the workspace.
	if _, err := os.Stat(cleanPath); err == nil {
		resolved, err := filepath.EvalSymlinks(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve symlinks: %w", err)
		}
		if !contains(rootAbs, resolved) {
			return "", fmt.Errorf("symlink escapes workspace: %s", relative)
		}
		return resolved, nil
	}

	// The target does not exist yet. Resolve the deepest existing ancestor
	// so a symlinked parent directory cannot carry the write outside the
	// workspace.
	ancestor, rest := filepath.Dir(cleanPath), filepath.Base(cleanPath)
	for {
		resolved, err := filepath.EvalSymlinks(ancestor)
		if err == nil {
			candidate := filepath.Join(resolved, rest)
			if !contains(rootAbs, candidate) {
				return "", fmt.Errorf("symlink escapes workspace: %s", relative)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to resolve symlinks: %w", err)
		}

		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			// Reached the filesystem root without finding the (resolved)
			// workspace root, which exists. Nothing sane to return.
			return "", fmt.Errorf("failed to resolve path ancestry: %s", relative)
		}
		rest = filepath.Join(filepath.Base(ancestor), rest)
		ancestor = parent
	}
}

// contains reports whether path sits at or under root, both absolute.
func contains(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ReadFileCapped reads a file, returning at most maxBytes of content.
func ReadFileCapped(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}
