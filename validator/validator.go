// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package validator decides whether a piece of shell code may run. It scans
// the code against an ordered denylist of regular expressions, each tagged
// with the category of destructive operation it guards against. The first
// matching rule wins. A Validator is immutable once built and safe for
// concurrent use.
package validator

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrBlocked is matched by every *BlockedError.
var ErrBlocked = errors.New("validation blocked")

// Rule pairs a category with the pattern that identifies it.
type Rule struct {
	Category Category `yaml:"category" json:"category"`
	Pattern  string   `yaml:"pattern" json:"pattern"`
}

// Result is the outcome of a validation. Category and MatchedPattern are only
// set when Allowed is false.
type Result struct {
	Allowed        bool     `json:"allowed"`
	Category       Category `json:"category,omitempty"`
	MatchedPattern string   `json:"matchedPattern,omitempty"`
}

// BlockedError reports the rule that rejected a piece of code.
type BlockedError struct {
	Category Category
	Pattern  string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("code contains a denylisted operation (%s, pattern %q)", e.Category, e.Pattern)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Validator holds the compiled, ordered denylist.
type Validator struct {
	rules []compiledRule
}

// New compiles rules in order. Patterns are matched case-insensitively and
// in multi-line mode, so ^ and $ anchor at line boundaries.
func New(rules []Rule) (*Validator, error) {
	v := &Validator{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if !r.Category.valid() {
			return nil, fmt.Errorf("rule %d: unknown category %d", i, r.Category)
		}
		re, err := regexp.Compile("(?im)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): invalid pattern: %w", i, r.Category, err)
		}
		v.rules = append(v.rules, compiledRule{Rule: r, re: re})
	}
	return v, nil
}

// MustNew is like New but panics on an invalid rule set.
func MustNew(rules []Rule) *Validator {
	v, err := New(rules)
	if err != nil {
		panic(err)
	}
	return v
}

// Default returns a validator using DefaultRules.
func Default() *Validator {
	return MustNew(DefaultRules())
}

// WithDefaults builds a validator from DefaultRules followed by extra.
func WithDefaults(extra []Rule) (*Validator, error) {
	return New(append(DefaultRules(), extra...))
}

// Validate classifies code. It never executes anything.
func (v *Validator) Validate(code string) Result {
	for _, r := range v.rules {
		if r.re.MatchString(code) {
			return Result{Category: r.Category, MatchedPattern: r.Pattern}
		}
	}
	return Result{Allowed: true}
}

// Check returns a *BlockedError if code is not allowed, nil otherwise.
func (v *Validator) Check(code string) error {
	res := v.Validate(code)
	if res.Allowed {
		return nil
	}
	return &BlockedError{Category: res.Category, Pattern: res.MatchedPattern}
}

// Rules returns a copy of the rule list in evaluation order.
func (v *Validator) Rules() []Rule {
	out := make([]Rule, len(v.rules))
	for i, r := range v.rules {
		out[i] = r.Rule
	}
	return out
}
