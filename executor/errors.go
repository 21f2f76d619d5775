// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package executor

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTimeout = errors.New("invalid timeout")
	ErrFatal          = errors.New("execution failed")
)

type InvalidTimeoutError struct {
	Value int
}

func (e *InvalidTimeoutError) Error() string {
	return fmt.Sprintf("timeout must be between %d and %d seconds, got %d", MinTimeoutSeconds, MaxTimeoutSeconds, e.Value)
}

func (e *InvalidTimeoutError) Is(target error) bool {
	return target == ErrInvalidTimeout
}

// FatalError means the interpreter could not be started or waited for. It is
// distinct from the script failing, which is reported through Result.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "execution failed: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func (e *FatalError) Is(target error) bool {
	return target == ErrFatal
}
