// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package templates

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Dialect is the target script language of a template set.
type Dialect interface {
	Name() string
	// Extension includes the leading dot.
	Extension() string
	// Quote returns s as one complete string literal.
	Quote(s string) (string, error)
	// Comment returns s made safe for a single-line comment.
	Comment(s string) string
	// CheckSyntax reports whether a rendered script parses.
	CheckSyntax(name, script string) error
}

var (
	PowerShell Dialect = powerShell{}
	Bash       Dialect = bash{}
)

// Dialects returns the supported dialects.
func Dialects() []Dialect {
	return []Dialect{PowerShell, Bash}
}

// DialectByName looks up a dialect by its name.
func DialectByName(name string) (Dialect, error) {
	for _, d := range Dialects() {
		if strings.EqualFold(d.Name(), name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("unknown script dialect %q", name)
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\u2028", " ", "\u2029", " ")

type powerShell struct{}

func (powerShell) Name() string      { return "powershell" }
func (powerShell) Extension() string { return ".ps1" }

// PowerShell treats the typographic single quotes as equivalent to the ASCII
// one, so all of them have to be doubled inside a verbatim string.
var psSingleQuotes = strings.NewReplacer(
	"'", "''",
	"\u2018", "\u2018\u2018",
	"\u2019", "\u2019\u2019",
	"\u201a", "\u201a\u201a",
	"\u201b", "\u201b\u201b",
)

func (powerShell) Quote(s string) (string, error) {
	return "'" + psSingleQuotes.Replace(s) + "'", nil
}

// Comment also breaks up block comment delimiters. The two passes run in this
// order so that "<#>" cannot reassemble into a closing delimiter.
func (powerShell) Comment(s string) string {
	s = lineBreaks.Replace(s)
	s = strings.ReplaceAll(s, "#>", "# >")
	return strings.ReplaceAll(s, "<#", "< #")
}

// No PowerShell parser is available in Go; scripts are checked when they run.
func (powerShell) CheckSyntax(string, string) error {
	return nil
}

type bash struct{}

func (bash) Name() string      { return "bash" }
func (bash) Extension() string { return ".sh" }

func (bash) Quote(s string) (string, error) {
	return syntax.Quote(s, syntax.LangBash)
}

func (bash) Comment(s string) string {
	return lineBreaks.Replace(s)
}

func (bash) CheckSyntax(name, script string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	if _, err := parser.Parse(strings.NewReader(script), name); err != nil {
		return fmt.Errorf("rendered script does not parse: %w", err)
	}
	return nil
}
