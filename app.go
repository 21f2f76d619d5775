// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/SUSE/scriptguard-mcp/executor"
	"github.com/SUSE/scriptguard-mcp/generator"
	"github.com/SUSE/scriptguard-mcp/output"
	"github.com/SUSE/scriptguard-mcp/templates"
	"github.com/SUSE/scriptguard-mcp/validator"
)

const (
	serverName = "scriptguard-mcp"
	uriScheme  = "scriptguard://"
)

// app holds the long-lived components shared by all handlers. Nothing in it
// changes after startup except the task store.
type app struct {
	cfg            *Config
	validator      *validator.Validator
	engine         *executor.Engine
	catalog        *generator.Catalog
	writer         *output.Writer
	tasks          *TaskStore
	queries        []query
	resources      map[string]resourceEntry
	resourceOrder  []string
	defaultTimeout int
	verbose        bool
}

func newApp(cfg *Config, verbose bool) (*app, error) {
	v, err := validator.WithDefaults(cfg.Specification.Validation.Rules)
	if err != nil {
		return nil, fmt.Errorf("invalid validation rules: %w", err)
	}
	log.Printf("Denylist compiled with %d rules.", len(v.Rules()))

	execCfg := cfg.Specification.Execution
	shell := executor.Shell{Command: cfg.Specification.Shell.Command, Args: cfg.Specification.Shell.Args}
	engine := executor.New(v, executor.Options{
		Shell:        shell,
		WorkDir:      execCfg.WorkDir,
		EnvAllowList: execCfg.Env,
		WaitDelay:    time.Duration(execCfg.WaitDelaySeconds) * time.Second,
	})
	log.Printf("Execution engine uses %s %s", engine.Shell().Command, strings.Join(engine.Shell().Args, " "))

	dialect, err := templates.DialectByName(cfg.Dialect())
	if err != nil {
		return nil, err
	}
	store := templates.Builtin(dialect)
	if dir := cfg.Specification.Templates.Dir; dir != "" {
		dirStore, err := templates.NewDirStore(dir, dialect.Extension())
		if err != nil {
			return nil, fmt.Errorf("invalid template directory: %w", err)
		}
		store = templates.Layered(dirStore, store)
		log.Printf("Templates from %s shadow the built-in %s templates.", dir, dialect.Name())
	}

	a := &app{
		cfg:            cfg,
		validator:      v,
		engine:         engine,
		tasks:          NewTaskStore(cfg.Specification.Tasks.MaxTasks),
		resources:      make(map[string]resourceEntry),
		defaultTimeout: execCfg.DefaultTimeoutSeconds,
		verbose:        verbose,
	}
	if a.defaultTimeout == 0 {
		a.defaultTimeout = executor.DefaultTimeoutSeconds
	}

	var writer generator.FileWriter
	if root := cfg.Specification.Output.Root; root != "" {
		if a.writer, err = output.NewWriter(root); err != nil {
			return nil, fmt.Errorf("invalid output root: %w", err)
		}
		writer = a.writer
		log.Printf("Generated scripts may be written below %s", a.writer.Root())
	}
	a.catalog = generator.NewCatalog(templates.NewEngine(store, dialect), v, writer)

	if a.queries, err = parseQueries(cfg.Specification.Queries); err != nil {
		return nil, err
	}
	return a, nil
}

// newMCPServer creates the server and registers everything it offers.
func (a *app) newMCPServer() *server.MCPServer {
	name := a.cfg.Metadata.Name
	if name == "" {
		name = serverName
	}
	mcpServer := server.NewMCPServer(
		name,
		a.cfg.APIVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(false),
	)
	log.Printf("MCP Server %s with API %s created.", name, a.cfg.APIVersion)

	a.registerBuiltinTools(mcpServer)
	a.registerExecTools(mcpServer)
	a.registerGeneratorTools(mcpServer)
	if a.writer != nil {
		a.registerScriptTools(mcpServer)
	}
	a.registerQueryTools(mcpServer)
	a.registerResources(mcpServer)
	a.registerPrompts(mcpServer)
	return mcpServer
}

// toolFailure turns an error from the core packages into a tool error
// result, naming the error class so the model can react to it.
func toolFailure(action string, err error) *mcp.CallToolResult {
	var class string
	switch {
	case errors.Is(err, validator.ErrBlocked):
		class = "Blocked"
	case errors.Is(err, executor.ErrInvalidTimeout):
		class = "Invalid timeout"
	case errors.Is(err, executor.ErrFatal):
		class = "Execution failed"
	case errors.Is(err, templates.ErrTemplateNotFound):
		class = "Template not found"
	case errors.Is(err, templates.ErrMissingParameter):
		class = "Missing parameter"
	case errors.Is(err, templates.ErrRender):
		class = "Render error"
	case errors.Is(err, generator.ErrInvalidRequest):
		class = "Invalid request"
	case errors.Is(err, output.ErrOutsideRoot):
		class = "Path rejected"
	default:
		class = "Error"
	}
	log.Printf("ERROR: %s: %v", action, err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", class, err))
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
