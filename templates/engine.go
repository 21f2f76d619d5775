// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package templates

// Engine renders templates of one dialect from a store.
type Engine struct {
	store   Store
	dialect Dialect
}

func NewEngine(store Store, d Dialect) *Engine {
	return &Engine{store: store, dialect: d}
}

func (e *Engine) Dialect() Dialect {
	return e.dialect
}

func (e *Engine) List() ([]string, error) {
	return e.store.List()
}

// Load fetches and parses a template.
func (e *Engine) Load(name string) (*Template, error) {
	body, err := e.store.Get(name)
	if err != nil {
		return nil, err
	}
	return Parse(name, body)
}

// Render loads the named template and renders it with params.
func (e *Engine) Render(name string, params Parameters, opts ...RenderOption) (string, error) {
	t, err := e.Load(name)
	if err != nil {
		return "", err
	}
	return t.Render(e.dialect, params, opts...)
}
