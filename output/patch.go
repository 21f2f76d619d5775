// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package output

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// Patch applies a unified diff touching exactly one file to the file at
// path. File names inside the diff are ignored. check, if not nil, receives
// all added lines joined together and can veto the patch before anything is
// written.
func (w *Writer) Patch(path, diff string, check func(added string) error) (string, error) {
	full, err := w.Resolve(path)
	if err != nil {
		return "", err
	}

	files, _, err := gitdiff.Parse(strings.NewReader(diff))
	if err != nil {
		return "", fmt.Errorf("invalid diff: %w", err)
	}
	if len(files) != 1 {
		return "", fmt.Errorf("diff must change exactly one file, found %d", len(files))
	}
	file := files[0]
	if file.IsBinary {
		return "", fmt.Errorf("binary diffs are not supported")
	}
	if file.IsDelete || file.IsRename || file.IsCopy {
		return "", fmt.Errorf("diff may only modify file content")
	}

	if check != nil {
		var added strings.Builder
		for _, frag := range file.TextFragments {
			for _, line := range frag.Lines {
				if line.Op == gitdiff.OpAdd {
					added.WriteString(line.Line)
				}
			}
		}
		if err := check(added.String()); err != nil {
			return "", err
		}
	}

	var orig []byte
	if !file.IsNew {
		if orig, err = os.ReadFile(full); err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	var out bytes.Buffer
	if err := gitdiff.Apply(&out, bytes.NewReader(orig), file); err != nil {
		return "", fmt.Errorf("failed to apply diff to %s: %w", path, err)
	}
	return w.Write(path, out.String())
}
