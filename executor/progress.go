// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package executor

import (
	"bytes"
	"strings"
	"sync"
)

// lineWriter splits a byte stream into lines and hands each complete line to
// emit. Lines written before Release are held back, as is a trailing partial
// line until Flush.
type lineWriter struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	released bool
	held     []string
	emit     func(string)
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.send(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (w *lineWriter) send(line string) {
	if !w.released {
		w.held = append(w.held, line)
		return
	}
	w.emit(line)
}

// Release emits the held lines and lets later ones through directly.
func (w *lineWriter) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseLocked()
}

func (w *lineWriter) releaseLocked() {
	w.released = true
	for _, line := range w.held {
		w.emit(line)
	}
	w.held = nil
}

// Flush releases the writer and emits a trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.releaseLocked()
	if w.buf.Len() > 0 {
		w.emit(strings.TrimRight(w.buf.String(), "\r\n"))
		w.buf.Reset()
	}
}
