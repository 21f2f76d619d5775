// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListResources(t *testing.T) {
	a := &app{resources: make(map[string]resourceEntry)}
	for _, entry := range []resourceEntry{
		{uri: "test://apple", description: "A red fruit"},
		{uri: "test://banana", description: "A yellow fruit"},
		{uri: "test://cherry", description: "A small red fruit"},
	} {
		a.resources[entry.uri] = entry
		a.resourceOrder = append(a.resourceOrder, entry.uri)
	}

	tests := []struct {
		name          string
		query         string
		expectedFound int
		contains      []string
		notContains   []string
		expectError   bool
	}{
		{
			name:          "No query lists everything",
			query:         "",
			expectedFound: 3,
			contains:      []string{"test://apple", "test://banana", "test://cherry"},
		},
		{
			name:          "Search by URI",
			query:         "apple",
			expectedFound: 1,
			contains:      []string{"test://apple"},
			notContains:   []string{"test://banana", "test://cherry"},
		},
		{
			name:          "Search by Description",
			query:         "yellow",
			expectedFound: 1,
			contains:      []string{"test://banana"},
		},
		{
			name:          "Search is case-insensitive",
			query:         "SMALL",
			expectedFound: 1,
			contains:      []string{"test://cherry"},
		},
		{
			name:          "Search multiple",
			query:         "red",
			expectedFound: 2,
			contains:      []string{"test://apple", "test://cherry"},
			notContains:   []string{"test://banana"},
		},
		{
			name:          "Complex Regex (alternation)",
			query:         "apple|banana",
			expectedFound: 2,
			contains:      []string{"test://apple", "test://banana"},
			notContains:   []string{"test://cherry"},
		},
		{
			name:          "Complex Regex (character class and wildcards)",
			query:         "r[e-i]d",
			expectedFound: 2,
			contains:      []string{"test://apple", "test://cherry"},
		},
		{
			name:     "No results",
			query:    "durian",
			contains: []string{"No resources matched"},
		},
		{
			name:        "Invalid regex",
			query:       "[",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.listResources(tt.query)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			if tt.expectedFound > 0 {
				assert.Contains(t, result, fmt.Sprintf("Found %d resources", tt.expectedFound))
			}
			for _, c := range tt.contains {
				assert.Contains(t, result, c)
			}
			for _, nc := range tt.notContains {
				assert.NotContains(t, result, nc)
			}
		})
	}
}
