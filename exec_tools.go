// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/SUSE/scriptguard-mcp/executor"
	"github.com/SUSE/scriptguard-mcp/validator"
)

const taskURIPrefix = uriScheme + "tasks/"

// builtinToolNames lists every tool registered by the server itself.
// Configured queries may not reuse these names.
var builtinToolNames = map[string]bool{
	"ping": true, "run_command": true, "run_command_async": true,
	"TaskStatus": true, "ListPendingTasks": true, "CancelTask": true,
	"validate_code": true, "list_templates": true,
	"generate_script_from_template": true, "generate_custom_script": true,
	"generate_intune_detection_script": true, "generate_intune_remediation_script": true,
	"generate_intune_script_pair": true, "generate_bigfix_relevance_script": true,
	"generate_bigfix_action_script": true, "generate_bigfix_script_pair": true,
	"ListScripts": true, "ReadScript": true, "DeleteScript": true,
	"CreateDirectory": true, "PatchScript": true,
	"ListResources": true, "GetResource": true,
}

func taskURI(id string) string {
	return taskURIPrefix + id
}

// registerBuiltinTools adds keepalive and async task management tools.
func (a *app) registerBuiltinTools(mcpServer *server.MCPServer) {
	pingTool := mcp.NewTool(
		"ping",
		mcp.WithDescription("Responds with 'pong' to keep the connection alive."),
	)
	mcpServer.AddTool(pingTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if a.verbose {
			log.Printf("Handling ping request.")
		}
		return mcp.NewToolResultText("pong"), nil
	})
	log.Printf("Registered built-in tool: %s", pingTool.Name)

	listTasksTool := mcp.NewTool(
		"ListPendingTasks",
		mcp.WithDescription("Lists all asynchronous tasks that are currently 'pending' or 'running'."),
	)
	mcpServer.AddTool(listTasksTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if a.verbose {
			log.Printf("Handling ListPendingTasks request.")
		}
		activeTasks := a.tasks.ListActiveTasks()
		if len(activeTasks) == 0 {
			return mcp.NewToolResultText("No active (pending or running) tasks found."), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Found %d active tasks:\n\n", len(activeTasks))
		for _, task := range activeTasks {
			fmt.Fprintf(&b, "Tool: %s\nTaskID: %s\nStatus: %s\nRunning For: %s\n\n",
				task.ToolName, task.ID, task.Status, time.Since(task.StartTime).Truncate(time.Second))
		}
		return mcp.NewToolResultText(b.String()), nil
	})
	log.Printf("Registered built-in tool: %s", listTasksTool.Name)

	taskStatusTool := mcp.NewTool(
		"TaskStatus",
		mcp.WithDescription("Gets the status and, once finished, the execution result of an async task."),
		mcp.WithString(
			"taskID",
			mcp.Required(),
			mcp.Description("The Task ID (UUID) or full Task URI (e.g., scriptguard://tasks/...)"),
		),
	)
	mcpServer.AddTool(taskStatusTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("taskID")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		taskID = strings.TrimPrefix(taskID, taskURIPrefix)
		if a.verbose {
			log.Printf("Handling TaskStatus request for taskID: %s", taskID)
		}

		status, ok := a.tasks.Format(taskID)
		if !ok {
			log.Printf("TaskStatus request for non-existent ID: %s", taskID)
			return mcp.NewToolResultText(fmt.Sprintf("Status: not_found\nMessage: No task found with ID: %s", taskID)), nil
		}
		return mcp.NewToolResultText(status), nil
	})
	log.Printf("Registered built-in tool: %s", taskStatusTool.Name)

	cancelTaskTool := mcp.NewTool(
		"CancelTask",
		mcp.WithDescription("Cancels a pending or running async task. Its process tree is killed and the task ends in the 'canceled' state."),
		mcp.WithString(
			"taskID",
			mcp.Required(),
			mcp.Description("The Task ID (UUID) or full Task URI."),
		),
	)
	mcpServer.AddTool(cancelTaskTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("taskID")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		taskID = strings.TrimPrefix(taskID, taskURIPrefix)
		if err := a.tasks.Cancel(taskID); err != nil {
			return toolFailure("CancelTask", err), nil
		}
		log.Printf("Cancellation requested for async job %s", taskID)
		return mcp.NewToolResultText(fmt.Sprintf("Cancellation requested for task %s. Call 'TaskStatus' to see the final state.", taskID)), nil
	})
	log.Printf("Registered built-in tool: %s", cancelTaskTool.Name)
}

func (a *app) registerExecTools(mcpServer *server.MCPServer) {
	codeParam := mcp.WithString("code", mcp.Required(), mcp.Description("The script to run. It is checked against the denylist before anything is started."))
	timeoutParam := mcp.WithNumber("timeout",
		mcp.Description(fmt.Sprintf("Timeout in seconds (%d-%d). The whole process tree is killed when it expires.", executor.MinTimeoutSeconds, executor.MaxTimeoutSeconds)),
		mcp.DefaultNumber(float64(a.defaultTimeout)),
		mcp.Min(executor.MinTimeoutSeconds),
		mcp.Max(executor.MaxTimeoutSeconds),
	)

	runTool := mcp.NewTool("run_command",
		mcp.WithDescription(fmt.Sprintf("Runs a %s script with a timeout and returns stdout, stderr, exit code and whether it timed out. Progress notifications carry stdout lines.", a.catalog.Dialect().Name())),
		codeParam, timeoutParam)
	mcpServer.AddTool(runTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		timeout := request.GetInt("timeout", a.defaultTimeout)
		if a.verbose {
			log.Printf("Handling run_command request: %d bytes, timeout %ds", len(code), timeout)
		}
		return a.runSync(ctx, "run_command", code, timeout, progressToken(request))
	})
	log.Printf("Registered built-in tool: %s", runTool.Name)

	runAsyncTool := mcp.NewTool("run_command_async",
		mcp.WithDescription("Starts a script in the background and returns a task URI. Use 'TaskStatus' to poll it and 'CancelTask' to stop it."),
		codeParam, timeoutParam)
	mcpServer.AddTool(runAsyncTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		timeout := request.GetInt("timeout", a.defaultTimeout)
		return a.startAsync(ctx, "run_command_async", code, timeout, false)
	})
	log.Printf("Registered built-in tool: %s", runAsyncTool.Name)

	validateTool := mcp.NewTool("validate_code",
		mcp.WithDescription("Checks a script against the denylist without running it and reports the first matching category and pattern."),
		mcp.WithString("code", mcp.Required(), mcp.Description("The script to check.")))
	mcpServer.AddTool(validateTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := request.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return validationResult(a.validator.Validate(code)), nil
	})
	log.Printf("Registered built-in tool: %s", validateTool.Name)
}

type validationReport struct {
	validator.Result
	Description string `json:"description,omitempty"`
}

func validationResult(res validator.Result) *mcp.CallToolResult {
	report := validationReport{Result: res}
	if !res.Allowed {
		report.Description = res.Category.Description()
	}
	return structuredResult(report)
}

func structuredResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultStructured(v, string(data))
}

func progressToken(request mcp.CallToolRequest) mcp.ProgressToken {
	if request.Params.Meta == nil {
		return nil
	}
	return request.Params.Meta.ProgressToken
}

// runSync executes code in the request context, so a client disconnect
// cancels the run.
func (a *app) runSync(ctx context.Context, toolName, code string, timeout int, token mcp.ProgressToken) (*mcp.CallToolResult, error) {
	obs := &toolObserver{
		ctx:     ctx,
		srv:     server.ServerFromContext(ctx),
		token:   token,
		label:   toolName,
		verbose: a.verbose,
	}
	res, err := a.engine.Execute(ctx, code, timeout, obs)
	if err != nil {
		return toolFailure(toolName, err), nil
	}
	return structuredResult(res), nil
}

// startAsync checks the code, registers a task resource and runs the code
// in the background. With exclusive set, only one task per tool may be
// active at a time.
func (a *app) startAsync(ctx context.Context, toolName, code string, timeout int, exclusive bool) (*mcp.CallToolResult, error) {
	if err := a.engine.Precheck(code, timeout); err != nil {
		return toolFailure(toolName, err), nil
	}
	if exclusive && a.tasks.HasActiveTask(toolName) {
		log.Printf("Rejected async task %s: task is already running.", toolName)
		return mcp.NewToolResultError(fmt.Sprintf("Task '%s' is already in progress. Call 'ListPendingTasks' or 'TaskStatus' to monitor it.", toolName)), nil
	}

	srv := server.ServerFromContext(ctx)
	if srv == nil {
		log.Println("ERROR: could not get server from context for async task")
		return mcp.NewToolResultError("could not get server from context"), nil
	}

	jobID := uuid.NewString()
	uri := taskURI(jobID)

	if evicted, err := a.tasks.Add(jobID, toolName); err != nil {
		return toolFailure(toolName, err), nil
	} else if evicted != "" {
		srv.RemoveResource(taskURI(evicted))
		log.Printf("Evicted finished async job %s to make room.", evicted)
	}

	taskResource := mcp.NewResource(
		uri,
		fmt.Sprintf("Status of async job: %s (Job ID: %s)", toolName, jobID),
		mcp.WithMIMEType("text/plain"),
	)
	srv.AddResource(taskResource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		status, ok := a.tasks.Format(jobID)
		if !ok {
			status = "Status: unknown\nMessage: Task ID not found."
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: "text/plain", Text: status},
		}, nil
	})

	runCtx, cancel := context.WithCancel(context.Background())
	a.tasks.SetCancel(jobID, cancel)
	initial, _ := a.tasks.Format(jobID)

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("ERROR: FATAL PANIC in async job %s: %v", jobID, r)
				a.tasks.Finish(jobID, TaskFailed, fmt.Sprintf("Async job %s failed with an internal server panic: %v", jobID, r), nil)
			}
		}()

		log.Printf("Starting async job %s: %s", jobID, toolName)
		a.tasks.SetStatus(jobID, TaskRunning, "Job is executing...")

		obs := &toolObserver{label: fmt.Sprintf("%s/%s", toolName, jobID), verbose: a.verbose}
		res, err := a.engine.Execute(runCtx, code, timeout, obs)
		status, message := taskOutcome(res, err, timeout)
		log.Printf("Async job %s finished with status: %s", jobID, status)
		a.tasks.Finish(jobID, status, message, res)
	}()

	log.Printf("Async tool %s started. Task URI: %s", toolName, uri)
	return mcp.NewToolResultResource(uri, mcp.TextResourceContents{
		URI:      uri,
		MIMEType: "text/plain",
		Text:     initial,
	}), nil
}

// taskOutcome maps an execution outcome to the final task state. A nonzero
// exit code is still a completed task.
func taskOutcome(res *executor.Result, err error, timeout int) (TaskStatus, string) {
	switch {
	case err != nil:
		return TaskFailed, err.Error()
	case res.Canceled:
		return TaskCanceled, "Job was canceled."
	case res.TimedOut:
		return TaskFailed, fmt.Sprintf("Job timed out after %d seconds.", timeout)
	case res.ExitCode == nil:
		return TaskCompleted, "Job was terminated by a signal."
	default:
		return TaskCompleted, fmt.Sprintf("Job exited with code %d.", *res.ExitCode)
	}
}

// toolObserver logs executions and forwards stdout lines as progress
// notifications when the client asked for them.
type toolObserver struct {
	ctx     context.Context
	srv     *server.MCPServer
	token   mcp.ProgressToken
	label   string
	verbose bool
	lines   int
}

func (o *toolObserver) OnStart(code string) {
	if o.verbose {
		log.Printf("%s: started %d bytes, %d lines of code", o.label, len(code), countLines(code))
	}
}

func (o *toolObserver) OnProgress(message string) {
	o.lines++
	if o.token == nil || o.srv == nil {
		return
	}
	err := o.srv.SendNotificationToClient(o.ctx, "notifications/progress", map[string]any{
		"progressToken": o.token,
		"progress":      o.lines,
		"message":       message,
	})
	if err != nil && o.verbose {
		log.Printf("%s: could not send progress notification: %v", o.label, err)
	}
}

func (o *toolObserver) OnComplete(res *executor.Result) {
	exitCode := "none"
	if res.ExitCode != nil {
		exitCode = fmt.Sprint(*res.ExitCode)
	}
	log.Printf("%s: finished, exit code: %s, timed out: %v, output: %d bytes, %d lines, duration: %dms",
		o.label, exitCode, res.TimedOut, len(res.Stdout), o.lines, res.DurationMs)
}
