// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package executor runs validated shell code in a non-interactive,
// profile-less interpreter with a hard timeout. On timeout or cancellation the
// whole process tree is torn down and whatever output had been captured is
// returned. A nonzero exit status is data, not an error.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/SUSE/scriptguard-mcp/validator"
)

const (
	MinTimeoutSeconds     = 1
	MaxTimeoutSeconds     = 300
	DefaultTimeoutSeconds = 60

	defaultWaitDelay = 2 * time.Second
)

// Shell describes the interpreter. The code is appended as the last argument.
type Shell struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// DefaultShell returns the interpreter used when none is configured:
// PowerShell on Windows, bash everywhere else. Both are started without
// profiles and without interactive prompts.
func DefaultShell() Shell {
	if runtime.GOOS == "windows" {
		return Shell{
			Command: "powershell",
			Args:    []string{"-NoLogo", "-NoProfile", "-NonInteractive", "-Command"},
		}
	}
	return Shell{
		Command: "bash",
		Args:    []string{"--noprofile", "--norc", "-c"},
	}
}

// DefaultEnvAllowList names the environment variables passed through to the
// child. Everything else of the server's environment is dropped.
var DefaultEnvAllowList = []string{
	"PATH", "HOME", "LANG", "LC_ALL", "TZ", "TMPDIR",
	"SystemRoot", "SystemDrive", "windir", "ComSpec", "PATHEXT",
	"TEMP", "TMP", "USERPROFILE", "ProgramData", "ProgramFiles", "PSModulePath",
}

// Options configures an Engine.
type Options struct {
	Shell Shell
	// WorkDir is the working directory of every child. Defaults to the
	// system temporary directory.
	WorkDir string
	// EnvAllowList selects variables copied from the server environment.
	// nil means DefaultEnvAllowList.
	EnvAllowList []string
	// WaitDelay bounds how long Execute waits for inherited output pipes to
	// close after the interpreter exits.
	WaitDelay time.Duration
}

// Result is the structured outcome of one execution.
type Result struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   *int   `json:"exitCode"`
	TimedOut   bool   `json:"timedOut"`
	Canceled   bool   `json:"canceled,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Observer receives notifications about a running execution. OnStart is
// called once the process has started, OnProgress for every complete line
// written to stdout, OnComplete once with the final result. No OnProgress
// call happens before OnStart has returned.
type Observer interface {
	OnStart(code string)
	OnProgress(message string)
	OnComplete(result *Result)
}

// Engine executes code. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	validator *validator.Validator
	shell     Shell
	workDir   string
	env       []string
	waitDelay time.Duration
}

// New creates an Engine that checks every piece of code with v before
// running it.
func New(v *validator.Validator, opts Options) *Engine {
	if opts.Shell.Command == "" {
		opts.Shell = DefaultShell()
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.EnvAllowList == nil {
		opts.EnvAllowList = DefaultEnvAllowList
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = defaultWaitDelay
	}
	return &Engine{
		validator: v,
		shell:     opts.Shell,
		workDir:   opts.WorkDir,
		env:       buildEnv(opts.EnvAllowList),
		waitDelay: opts.WaitDelay,
	}
}

func buildEnv(allow []string) []string {
	env := make([]string, 0, len(allow))
	for _, key := range allow {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	return env
}

// Shell returns the configured interpreter.
func (e *Engine) Shell() Shell {
	return e.shell
}

// Precheck performs the checks Execute runs before spawning anything: the
// timeout range first, then the denylist.
func (e *Engine) Precheck(code string, timeoutSeconds int) error {
	if timeoutSeconds < MinTimeoutSeconds || timeoutSeconds > MaxTimeoutSeconds {
		return &InvalidTimeoutError{Value: timeoutSeconds}
	}
	return e.validator.Check(code)
}

// Execute validates code and runs it with a timeout of timeoutSeconds. obs may
// be nil. Cancelling ctx has the same effect as the timeout firing.
func (e *Engine) Execute(ctx context.Context, code string, timeoutSeconds int, obs Observer) (*Result, error) {
	if err := e.Precheck(code, timeoutSeconds); err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		res := &Result{TimedOut: true, Canceled: true}
		if obs != nil {
			obs.OnComplete(res)
		}
		return res, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	args := make([]string, 0, len(e.shell.Args)+1)
	args = append(args, e.shell.Args...)
	args = append(args, code)

	cmd := exec.CommandContext(runCtx, e.shell.Command, args...)
	cmd.Dir = e.workDir
	cmd.Env = e.env
	cmd.Stdin = nil
	cmd.WaitDelay = e.waitDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessTree(cmd)
	}

	var stdout, stderr bytes.Buffer
	var progress *lineWriter
	if obs != nil {
		progress = newLineWriter(obs.OnProgress)
		cmd.Stdout = io.MultiWriter(&stdout, progress)
	} else {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &FatalError{Err: fmt.Errorf("start %s: %w", e.shell.Command, err)}
	}
	if obs != nil {
		// Output produced before OnStart returns is held by progress.
		obs.OnStart(code)
		progress.Release()
	}

	waitErr := cmd.Wait()
	if progress != nil {
		progress.Flush()
	}
	// Background children may still hold the process group alive after the
	// interpreter itself exited.
	_ = killProcessTree(cmd)

	res := &Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	switch {
	case waitErr == nil || errors.Is(waitErr, exec.ErrWaitDelay):
		exitCode := cmd.ProcessState.ExitCode()
		res.ExitCode = &exitCode
	case runCtx.Err() != nil:
		res.TimedOut = true
		res.Canceled = ctx.Err() != nil
	default:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, &FatalError{Err: fmt.Errorf("wait for %s: %w", e.shell.Command, waitErr)}
		}
		// -1 means the process was terminated by a signal: no exit status.
		if exitCode := exitErr.ExitCode(); exitCode >= 0 {
			res.ExitCode = &exitCode
		}
	}

	if obs != nil {
		obs.OnComplete(res)
	}
	return res, nil
}
