// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package templates renders script templates containing {{KEY}} placeholders.
//
// A placeholder has the form
//
//	{{KEY}}  {{KEY|default}}  {{KEY!mode}}  {{KEY!mode|default}}
//
// where mode is raw (the implicit default), quote or comment. raw inserts the
// value verbatim and is meant for code fragments. quote turns the value into
// one complete string literal of the target dialect. comment makes the value
// safe to place on a single comment line.
//
// Templates are tokenized once, so a substituted value is never scanned for
// further placeholders.
package templates

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode selects how a value enters the rendered script.
type Mode string

const (
	ModeRaw     Mode = "raw"
	ModeQuote   Mode = "quote"
	ModeComment Mode = "comment"
)

var keyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Placeholder is one {{...}} token of a template.
type Placeholder struct {
	Key        string `json:"key"`
	Mode       Mode   `json:"mode"`
	Default    string `json:"default,omitempty"`
	HasDefault bool   `json:"hasDefault"`
	// Offset is the byte offset of the opening braces in the template body.
	Offset int `json:"-"`
}

type segment struct {
	literal     string
	placeholder *Placeholder
}

// Template is a parsed template body.
type Template struct {
	Name     string
	Body     string
	segments []segment
}

// Parameters maps placeholder keys to values.
type Parameters map[string]string

// Parse tokenizes body. Any "{{" must start a well-formed placeholder.
func Parse(name, body string) (*Template, error) {
	t := &Template{Name: name, Body: body}

	rest := body
	offset := 0
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			if rest != "" {
				t.segments = append(t.segments, segment{literal: rest})
			}
			break
		}
		if open > 0 {
			t.segments = append(t.segments, segment{literal: rest[:open]})
		}
		closeIdx := strings.Index(rest[open+2:], "}}")
		if closeIdx < 0 {
			return nil, &RenderError{Template: name, Offset: offset + open, Reason: "unterminated placeholder"}
		}
		inner := rest[open+2 : open+2+closeIdx]
		ph, err := parsePlaceholder(inner)
		if err != nil {
			return nil, &RenderError{Template: name, Offset: offset + open, Reason: err.Error()}
		}
		ph.Offset = offset + open
		t.segments = append(t.segments, segment{placeholder: ph})

		consumed := open + 2 + closeIdx + 2
		rest = rest[consumed:]
		offset += consumed
	}
	return t, nil
}

func parsePlaceholder(inner string) (*Placeholder, error) {
	ph := &Placeholder{Mode: ModeRaw}

	spec := inner
	if idx := strings.IndexByte(inner, '|'); idx >= 0 {
		spec = inner[:idx]
		ph.Default = inner[idx+1:]
		ph.HasDefault = true
	}
	spec = strings.TrimSpace(spec)

	if idx := strings.IndexByte(spec, '!'); idx >= 0 {
		ph.Mode = Mode(strings.TrimSpace(spec[idx+1:]))
		spec = strings.TrimSpace(spec[:idx])
	}

	if !keyRe.MatchString(spec) {
		return nil, fmt.Errorf("malformed placeholder key %q", spec)
	}
	ph.Key = spec

	switch ph.Mode {
	case ModeRaw, ModeQuote, ModeComment:
	default:
		return nil, fmt.Errorf("unknown placeholder mode %q for %s", ph.Mode, ph.Key)
	}
	return ph, nil
}

// Placeholders returns each distinct key once, in order of first appearance.
func (t *Template) Placeholders() []Placeholder {
	seen := make(map[string]bool)
	var out []Placeholder
	for _, s := range t.segments {
		if s.placeholder == nil || seen[s.placeholder.Key] {
			continue
		}
		seen[s.placeholder.Key] = true
		out = append(out, *s.placeholder)
	}
	return out
}

// RenderOption customizes a single render call.
type RenderOption func(*renderConfig)

type renderConfig struct {
	valueCheck func(Placeholder, string) error
	codeCheck  func(string) error
}

// WithValueCheck runs check on every caller-supplied value before it is
// substituted. A non-nil error aborts the render and is returned wrapped.
func WithValueCheck(check func(Placeholder, string) error) RenderOption {
	return func(c *renderConfig) {
		c.valueCheck = check
	}
}

// WithCodeCheck runs check on the code the caller's raw values end up in:
// the template text with every raw value substituted and every quoted or
// comment value left out. The render fails when that code is rejected but
// the same code without the caller's raw values is accepted, i.e. when the
// values only become dangerous next to each other or next to template text.
func WithCodeCheck(check func(string) error) RenderOption {
	return func(c *renderConfig) {
		c.codeCheck = check
	}
}

// Render substitutes params into the template for dialect d and runs the
// dialect's syntax check on the result.
func (t *Template) Render(d Dialect, params Parameters, opts ...RenderOption) (string, error) {
	var cfg renderConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	// code and base collect the executable skeleton with and without the
	// caller's raw values.
	var b, code, base strings.Builder
	b.Grow(len(t.Body))
	callerRaw := false
	for _, s := range t.segments {
		if s.placeholder == nil {
			b.WriteString(s.literal)
			code.WriteString(s.literal)
			base.WriteString(s.literal)
			continue
		}
		ph := *s.placeholder

		value, ok := params[ph.Key]
		if ok {
			if cfg.valueCheck != nil {
				if err := cfg.valueCheck(ph, value); err != nil {
					return "", fmt.Errorf("parameter %s: %w", ph.Key, err)
				}
			}
		} else if ph.HasDefault {
			value = ph.Default
		} else {
			return "", &MissingParameterError{Template: t.Name, Key: ph.Key}
		}

		switch ph.Mode {
		case ModeQuote:
			quoted, err := d.Quote(value)
			if err != nil {
				return "", &RenderError{Template: t.Name, Offset: ph.Offset, Reason: fmt.Sprintf("cannot quote %s: %v", ph.Key, err)}
			}
			b.WriteString(quoted)
			code.WriteString("''")
			base.WriteString("''")
		case ModeComment:
			b.WriteString(d.Comment(value))
		default:
			b.WriteString(value)
			code.WriteString(value)
			if ok {
				callerRaw = true
			} else {
				base.WriteString(value)
			}
		}
	}

	if cfg.codeCheck != nil && callerRaw {
		if err := cfg.codeCheck(code.String()); err != nil && cfg.codeCheck(base.String()) == nil {
			return "", fmt.Errorf("combined parameters: %w", err)
		}
	}

	out := b.String()
	if err := d.CheckSyntax(t.Name, out); err != nil {
		return "", &RenderError{Template: t.Name, Offset: -1, Reason: err.Error()}
	}
	return out, nil
}
