// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package output confines generated scripts to a single output root. Every
// path handed to a Writer is relative to that root, and symbolic links are
// resolved before the confinement check so that a link cannot be used to
// escape it.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrOutsideRoot = errors.New("path escapes the output root")

// Writer reads and writes files below its root directory.
type Writer struct {
	root string
}

// NewWriter creates the root directory if needed and makes sure it is a
// writable directory.
func NewWriter(root string) (*Writer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("output root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("output root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("output root: %w", err)
	}
	if err := checkWritableDir(resolved); err != nil {
		return nil, err
	}
	return &Writer{root: resolved}, nil
}

func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("could not stat output root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output root is not a directory: %s", path)
	}
	f, err := os.CreateTemp(path, ".scriptguard-write-test-")
	if err != nil {
		return fmt.Errorf("output root is not writable: %w", err)
	}
	f.Close()
	os.Remove(f.Name())
	return nil
}

// Root returns the absolute, symlink-free root directory.
func (w *Writer) Root() string {
	return w.root
}

// Resolve maps a relative path to an absolute one below the root. The
// longest existing prefix of the path is resolved through symbolic links and
// must stay inside the root. Dangling links are rejected.
func (w *Writer) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if filepath.IsAbs(path) || filepath.VolumeName(path) != "" {
		return "", fmt.Errorf("absolute paths are not allowed")
	}
	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if part == ".." {
			return "", fmt.Errorf("path must not contain '..'")
		}
	}

	full := filepath.Join(w.root, cleaned)

	existing := full
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve %s: %v", ErrOutsideRoot, path, err)
	}
	resolved = filepath.Join(append([]string{resolved}, rest...)...)

	if !w.contains(resolved) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return resolved, nil
}

func (w *Writer) contains(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Write stores content at path, creating parent directories. Existing files
// are overwritten. It returns the absolute path written.
func (w *Writer) Write(path, content string) (string, error) {
	full, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return full, nil
}

// WriteAll writes several files so that they are either all updated or,
// when any of them cannot be written, none is. Contents go to temporary files
// next to their targets first and are renamed into place at the end. It
// returns the full path of every file.
func (w *Writer) WriteAll(files map[string]string) (map[string]string, error) {
	full := make(map[string]string, len(files))
	for path := range files {
		p, err := w.Resolve(path)
		if err != nil {
			return nil, err
		}
		if info, err := os.Lstat(p); err == nil && info.IsDir() {
			return nil, fmt.Errorf("failed to write %s: is a directory", path)
		}
		full[path] = p
	}

	temps := make(map[string]string, len(files))
	cleanup := func() {
		for _, tmp := range temps {
			_ = os.Remove(tmp)
		}
	}
	for path, content := range files {
		tmp, err := writeTemp(full[path], content)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		temps[path] = tmp
	}
	for path, tmp := range temps {
		if err := os.Rename(tmp, full[path]); err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		delete(temps, path)
	}
	return full, nil
}

func writeTemp(full, content string) (string, error) {
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(full)+".*")
	if err != nil {
		return "", err
	}
	_, err = f.WriteString(content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(f.Name(), 0644)
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (w *Writer) Read(path string) (string, error) {
	full, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// Remove deletes a file or an empty directory.
func (w *Writer) Remove(path string) error {
	full, err := w.Resolve(path)
	if err != nil {
		return err
	}
	if full == w.root {
		return fmt.Errorf("refusing to remove the output root")
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// MkdirAll creates a directory and its parents and returns its absolute
// path.
func (w *Writer) MkdirAll(path string) (string, error) {
	full, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(full, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return full, nil
}

// Entry is one item of a directory listing.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

// List returns the entries of a directory sorted by name. "." lists the
// root.
func (w *Writer) List(path string) ([]Entry, error) {
	full, err := w.Resolve(path)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		e := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if info, err := de.Info(); err == nil && !de.IsDir() {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
