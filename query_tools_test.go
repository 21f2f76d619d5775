// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SUSE/scriptguard-mcp/executor"
)

func TestParseQueries(t *testing.T) {
	queries, err := parseQueries([]QueryItem{
		{Name: "no_params", Command: "uptime"},
		{Name: "with_params", Command: "journalctl -u {{UNIT!quote}} -n {{LINES!quote|50}}"},
	})
	require.NoError(t, err)
	require.Len(t, queries, 2)

	assert.Empty(t, queries[0].tmpl.Placeholders())

	placeholders := queries[1].tmpl.Placeholders()
	require.Len(t, placeholders, 2)
	assert.Equal(t, "UNIT", placeholders[0].Key)
	assert.False(t, placeholders[0].HasDefault)
	assert.Equal(t, "LINES", placeholders[1].Key)
	assert.Equal(t, "50", placeholders[1].Default)
}

func TestParseQueries_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"raw placeholder", "ls {{DIR}}", "must use the quote mode"},
		{"comment placeholder", "ls # {{DIR!comment}}", "must use the quote mode"},
		{"unterminated placeholder", "ls {{DIR!quote", "unterminated_query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseQueries([]QueryItem{{Name: "unterminated_query", Command: tt.command}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestQueryFailure(t *testing.T) {
	zero, three := 0, 3
	assert.Empty(t, queryFailure(&executor.Result{ExitCode: &zero}, 10))
	assert.Equal(t, "exit code 3", queryFailure(&executor.Result{ExitCode: &three}, 10))
	assert.Equal(t, "command timed out after 10 seconds", queryFailure(&executor.Result{TimedOut: true}, 10))
	assert.Equal(t, "command was terminated by a signal", queryFailure(&executor.Result{}, 10))
}

func TestTaskOutcome(t *testing.T) {
	zero, two := 0, 2

	status, _ := taskOutcome(nil, errors.New("boom"), 10)
	assert.Equal(t, TaskFailed, status)

	status, _ = taskOutcome(&executor.Result{Canceled: true, TimedOut: true}, nil, 10)
	assert.Equal(t, TaskCanceled, status)

	status, msg := taskOutcome(&executor.Result{TimedOut: true}, nil, 10)
	assert.Equal(t, TaskFailed, status)
	assert.Contains(t, msg, "10 seconds")

	status, msg = taskOutcome(&executor.Result{ExitCode: &two}, nil, 10)
	assert.Equal(t, TaskCompleted, status)
	assert.Contains(t, msg, "code 2")

	status, _ = taskOutcome(&executor.Result{ExitCode: &zero}, nil, 10)
	assert.Equal(t, TaskCompleted, status)
}
