// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package templates

import (
	"errors"
	"fmt"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrMissingParameter = errors.New("missing template parameter")
	ErrRender           = errors.New("template render failed")
)

type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("template %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrTemplateNotFound
}

type MissingParameterError struct {
	Template string
	Key      string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("template %q: missing parameter %s", e.Template, e.Key)
}

func (e *MissingParameterError) Is(target error) bool {
	return target == ErrMissingParameter
}

// RenderError covers malformed templates and rendered output that fails the
// dialect's syntax check. Offset is -1 when it does not apply.
type RenderError struct {
	Template string
	Offset   int
	Reason   string
}

func (e *RenderError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("template %q at byte %d: %s", e.Template, e.Offset, e.Reason)
	}
	return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
}

func (e *RenderError) Is(target error) bool {
	return target == ErrRender
}
