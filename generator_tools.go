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

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/SUSE/scriptguard-mcp/generator"
	"github.com/SUSE/scriptguard-mcp/templates"
)

type scriptTool struct {
	name        string
	description string
	logicParam  string
	logicDesc   string
	checkpoint  bool
	generate    func(*generator.Catalog, context.Context, generator.ScriptRequest) (*generator.GeneratedScript, error)
}

type pairTool struct {
	name        string
	description string
	checkParam  string
	checkDesc   string
	fixParam    string
	fixDesc     string
	generate    func(*generator.Catalog, context.Context, generator.PairRequest) (*generator.ScriptPair, error)
}

var scriptTools = []scriptTool{
	{
		name:        "generate_intune_detection_script",
		description: "Generates an Intune detection script. It exits 0 when compliant, 1 when not compliant and 2 on a script error.",
		logicParam:  "detection_logic",
		logicDesc:   "Read-only check. Call Complete-Detection -Compliant $true/$false (PowerShell) or complete_detection true/false (bash).",
		generate:    (*generator.Catalog).IntuneDetection,
	},
	{
		name:        "generate_intune_remediation_script",
		description: "Generates an Intune remediation script that creates a recovery checkpoint before changing anything. It exits 0 on success, 1 on failure and 2 on a script error.",
		logicParam:  "remediation_logic",
		logicDesc:   "State-changing fix. Call Complete-Remediation -Success $true/$false (PowerShell) or complete_remediation true/false (bash).",
		checkpoint:  true,
		generate:    (*generator.Catalog).IntuneRemediation,
	},
	{
		name:        "generate_bigfix_relevance_script",
		description: "Generates a BigFix relevance script. It prints TRUE and exits 1 when relevant, prints FALSE and exits 0 otherwise, and prints FALSE with exit 2 on an internal error.",
		logicParam:  "relevance_logic",
		logicDesc:   "Read-only check. Call Complete-Relevance -Relevant $true/$false (PowerShell) or complete_relevance true/false (bash).",
		generate:    (*generator.Catalog).BigFixRelevance,
	},
	{
		name:        "generate_bigfix_action_script",
		description: "Generates a BigFix action script that creates a recovery checkpoint before changing anything. It exits 0 on success, 1 on a retryable failure and 2 on a non-retryable failure.",
		logicParam:  "action_logic",
		logicDesc:   "State-changing fix. Call Complete-Action -Result Success/RetryableFailure/NonRetryableFailure (PowerShell) or complete_action Success/RetryableFailure/NonRetryableFailure (bash).",
		checkpoint:  true,
		generate:    (*generator.Catalog).BigFixAction,
	},
}

var pairTools = []pairTool{
	{
		name:        "generate_intune_script_pair",
		description: "Generates a matching Intune detection and remediation script. Both fragments are validated before anything is rendered; with output_dir set, detect.<ext> and remedy.<ext> are written.",
		checkParam:  "detection_logic",
		checkDesc:   "Read-only check logic for the detection script.",
		fixParam:    "remediation_logic",
		fixDesc:     "State-changing logic for the remediation script.",
		generate:    (*generator.Catalog).IntunePair,
	},
	{
		name:        "generate_bigfix_script_pair",
		description: "Generates a matching BigFix relevance and action script. Both fragments are validated before anything is rendered; with output_dir set, relevance.<ext> and action.<ext> are written.",
		checkParam:  "relevance_logic",
		checkDesc:   "Read-only check logic for the relevance script.",
		fixParam:    "action_logic",
		fixDesc:     "State-changing logic for the action script.",
		generate:    (*generator.Catalog).BigFixPair,
	},
}

func (a *app) outputHint() string {
	if a.writer == nil {
		return " Writing files is disabled on this server."
	}
	return " Paths are relative to the output root."
}

func (a *app) registerGeneratorTools(mcpServer *server.MCPServer) {
	dialect := a.catalog.Dialect()

	listTool := mcp.NewTool("list_templates",
		mcp.WithDescription(fmt.Sprintf("Lists the available %s script templates and the placeholders each one accepts.", dialect.Name())))
	mcpServer.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if a.verbose {
			log.Printf("Handling list_templates request.")
		}
		infos, err := a.catalog.ListTemplates()
		if err != nil {
			return toolFailure("list_templates", err), nil
		}
		return structuredResult(map[string]any{"dialect": dialect.Name(), "templates": infos}), nil
	})
	log.Printf("Registered built-in tool: %s", listTool.Name)

	templateTool := mcp.NewTool("generate_script_from_template",
		mcp.WithDescription("Renders a named template. DATE is filled in unless supplied. Values of raw placeholders are checked against the denylist."+a.outputHint()),
		mcp.WithString("template_name", mcp.Required(), mcp.Description("Template name as returned by list_templates.")),
		mcp.WithObject("parameters", mcp.Description("Placeholder values keyed by placeholder name.")),
		mcp.WithString("output_path", mcp.Description("Optional file to write the script to.")))
	mcpServer.AddTool(templateTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("template_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		params, err := templateParameters(request.GetArguments()["parameters"])
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if a.verbose {
			log.Printf("Handling generate_script_from_template request for %s", name)
		}
		res, err := a.catalog.Render(ctx, generator.TemplateRequest{
			Name:       name,
			Parameters: params,
			OutputPath: request.GetString("output_path", ""),
		})
		if err != nil {
			return toolFailure("generate_script_from_template", err), nil
		}
		return scriptResult(res), nil
	})
	log.Printf("Registered built-in tool: %s", templateTool.Name)

	customTool := mcp.NewTool("generate_custom_script",
		mcp.WithDescription("Composes a script from a description, an optional parameter list and the main logic, with optional logging and error-handling helpers. The main logic is checked against the denylist."+a.outputHint()),
		mcp.WithString("description", mcp.Required(), mcp.Description("What the script does.")),
		mcp.WithString("script_type", mcp.Description("Kind of script, used in the header."), mcp.DefaultString("general")),
		mcp.WithArray("parameters",
			mcp.Description("Script parameters."),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":        map[string]any{"type": "string"},
					"type":        map[string]any{"type": "string"},
					"mandatory":   map[string]any{"type": "boolean"},
					"default":     map[string]any{},
					"description": map[string]any{"type": "string"},
				},
				"required": []string{"name"},
			})),
		mcp.WithString("main_logic", mcp.Description("The body of the script. A placeholder comment is used when empty.")),
		mcp.WithBoolean("include_logging", mcp.Description("Include a logging helper."), mcp.DefaultBool(true)),
		mcp.WithBoolean("include_error_handling", mcp.Description("Include an error handler around the main logic."), mcp.DefaultBool(true)),
		mcp.WithString("output_path", mcp.Description("Optional file to write the script to.")))
	mcpServer.AddTool(customTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		description, err := request.RequireString("description")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		params, err := generator.ParseScriptParameters(request.GetArguments()["parameters"])
		if err != nil {
			return toolFailure("generate_custom_script", err), nil
		}
		res, err := a.catalog.CustomScript(ctx, generator.CustomScriptRequest{
			Description:          description,
			ScriptType:           request.GetString("script_type", "general"),
			Parameters:           params,
			MainLogic:            request.GetString("main_logic", ""),
			IncludeLogging:       request.GetBool("include_logging", true),
			IncludeErrorHandling: request.GetBool("include_error_handling", true),
			OutputPath:           request.GetString("output_path", ""),
		})
		if err != nil {
			return toolFailure("generate_custom_script", err), nil
		}
		return scriptResult(res), nil
	})
	log.Printf("Registered built-in tool: %s", customTool.Name)

	for _, st := range scriptTools {
		a.registerScriptTool(mcpServer, st)
	}
	for _, pt := range pairTools {
		a.registerPairTool(mcpServer, pt)
	}
}

func (a *app) registerScriptTool(mcpServer *server.MCPServer, st scriptTool) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(st.description + a.outputHint()),
		mcp.WithString("description", mcp.Required(), mcp.Description("What the script checks or fixes. Embedded in the script as data.")),
		mcp.WithString(st.logicParam, mcp.Required(), mcp.Description(st.logicDesc)),
		mcp.WithString("output_path", mcp.Description("Optional file to write the script to.")),
	}
	if st.checkpoint {
		opts = append(opts, mcp.WithArray("checkpoint_paths",
			mcp.WithStringItems(),
			mcp.Description("Files archived by the recovery checkpoint (bash). PowerShell scripts use a system restore point.")))
	}
	tool := mcp.NewTool(st.name, opts...)

	mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		description, err := request.RequireString("description")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		logic, err := request.RequireString(st.logicParam)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if a.verbose {
			log.Printf("Handling %s request: %d bytes of logic", st.name, len(logic))
		}
		res, err := st.generate(a.catalog, ctx, generator.ScriptRequest{
			Description:     description,
			Logic:           logic,
			OutputPath:      request.GetString("output_path", ""),
			CheckpointPaths: request.GetStringSlice("checkpoint_paths", nil),
		})
		if err != nil {
			return toolFailure(st.name, err), nil
		}
		return scriptResult(res), nil
	})
	log.Printf("Registered built-in tool: %s", tool.Name)
}

func (a *app) registerPairTool(mcpServer *server.MCPServer, pt pairTool) {
	tool := mcp.NewTool(pt.name,
		mcp.WithDescription(pt.description+a.outputHint()),
		mcp.WithString("description", mcp.Required(), mcp.Description("What the pair checks and fixes. Shared by both scripts.")),
		mcp.WithString(pt.checkParam, mcp.Required(), mcp.Description(pt.checkDesc)),
		mcp.WithString(pt.fixParam, mcp.Required(), mcp.Description(pt.fixDesc)),
		mcp.WithString("output_dir", mcp.Description("Optional directory to write both scripts to.")),
		mcp.WithArray("checkpoint_paths",
			mcp.WithStringItems(),
			mcp.Description("Files archived by the recovery checkpoint of the fix script (bash).")))

	mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := generator.PairRequest{
			OutputDir:       request.GetString("output_dir", ""),
			CheckpointPaths: request.GetStringSlice("checkpoint_paths", nil),
		}
		var err error
		if req.Description, err = request.RequireString("description"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if req.CheckLogic, err = request.RequireString(pt.checkParam); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if req.FixLogic, err = request.RequireString(pt.fixParam); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		pair, err := pt.generate(a.catalog, ctx, req)
		if err != nil {
			return toolFailure(pt.name, err), nil
		}
		if pair.Check.OutputPath != "" {
			log.Printf("%s wrote %s and %s", pt.name, pair.Check.OutputPath, pair.Fix.OutputPath)
		}
		return structuredResult(pair), nil
	})
	log.Printf("Registered built-in tool: %s", tool.Name)
}

// templateParameters converts the decoded JSON object of a tool call into
// placeholder values. Non-string values keep their JSON text form.
func templateParameters(raw any) (templates.Parameters, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parameters must be an object, got %T", raw)
	}
	params := make(templates.Parameters, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			params[k] = val
		case nil:
			params[k] = ""
		default:
			data, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", k, err)
			}
			params[k] = string(data)
		}
	}
	return params, nil
}

func scriptResult(res *generator.GeneratedScript) *mcp.CallToolResult {
	if res.OutputPath == "" {
		return mcp.NewToolResultText(res.Content)
	}
	log.Printf("Generated script written to %s (%d lines)", res.OutputPath, countLines(strings.TrimSuffix(res.Content, "\n")))
	return mcp.NewToolResultText(fmt.Sprintf("Script written to %s\n\n%s", res.OutputPath, res.Content))
}
