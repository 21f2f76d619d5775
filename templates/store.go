// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"
)

//go:embed builtin
var builtinFS embed.FS

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether name is an acceptable template name. Names never
// contain path separators.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// Store is the read-only source of template bodies.
type Store interface {
	Get(name string) (string, error)
	List() ([]string, error)
}

type fsStore struct {
	fsys fs.FS
	ext  string
}

// FSStore serves templates named <name><ext> from the top level of fsys.
func FSStore(fsys fs.FS, ext string) Store {
	return &fsStore{fsys: fsys, ext: ext}
}

// NewDirStore serves templates from a directory on disk.
func NewDirStore(dir, ext string) (Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("template directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template directory %s is not a directory", dir)
	}
	return FSStore(os.DirFS(dir), ext), nil
}

// Builtin returns the templates compiled into the binary for dialect d.
func Builtin(d Dialect) Store {
	sub, err := fs.Sub(builtinFS, "builtin/"+d.Name())
	if err != nil {
		panic(err)
	}
	return FSStore(sub, d.Extension())
}

func (s *fsStore) Get(name string) (string, error) {
	if !ValidName(name) {
		return "", &NotFoundError{Name: name}
	}
	data, err := fs.ReadFile(s.fsys, name+s.ext)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{Name: name}
		}
		return "", fmt.Errorf("read template %s: %w", name, err)
	}
	return string(data), nil
}

func (s *fsStore) List() ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), s.ext) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), s.ext)
		if ValidName(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type layered []Store

// Layered combines stores. Get returns the template from the first store that
// has it, so earlier stores shadow later ones. List returns the union.
func Layered(stores ...Store) Store {
	return layered(stores)
}

func (l layered) Get(name string) (string, error) {
	for _, s := range l {
		body, err := s.Get(name)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrTemplateNotFound) {
			return "", err
		}
	}
	return "", &NotFoundError{Name: name}
}

func (l layered) List() ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, s := range l {
		list, err := s.List()
		if err != nil {
			return nil, err
		}
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
