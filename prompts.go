// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type pairPrompt struct {
	name     string
	tool     string
	platform string
	check    string
	fix      string
	contract string
}

var pairPrompts = []pairPrompt{
	{
		name:     "intune_script_pair",
		tool:     "generate_intune_script_pair",
		platform: "Microsoft Intune",
		check:    "detection_logic",
		fix:      "remediation_logic",
		contract: "The detection script must only read state and report compliance. The remediation script may change state; a recovery checkpoint is taken before it runs.",
	},
	{
		name:     "bigfix_script_pair",
		tool:     "generate_bigfix_script_pair",
		platform: "BigFix",
		check:    "relevance_logic",
		fix:      "action_logic",
		contract: "The relevance script must only read state and decide whether the action applies. The action script may change state; a recovery checkpoint is taken before it runs. Report retryable and non-retryable failures separately.",
	},
}

// registerPrompts adds prompts that walk a model through generating a
// script pair.
func (a *app) registerPrompts(mcpServer *server.MCPServer) {
	dialect := a.catalog.Dialect().Name()
	for _, p := range pairPrompts {
		p := p
		prompt := mcp.NewPrompt(p.name,
			mcp.WithPromptDescription(fmt.Sprintf("Plan and generate a %s script pair.", p.platform)),
			mcp.WithArgument("problem", mcp.RequiredArgument(), mcp.ArgumentDescription("The condition to detect and fix.")),
			mcp.WithArgument("output_dir", mcp.ArgumentDescription("Directory below the output root for the generated scripts.")),
		)
		mcpServer.AddPrompt(prompt, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			problem := strings.TrimSpace(request.Params.Arguments["problem"])
			if problem == "" {
				return nil, fmt.Errorf("argument 'problem' is required")
			}
			if a.verbose {
				log.Printf("Handling prompt request: %s", p.name)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Write a %s script pair in %s for this problem:\n\n%s\n\n", p.platform, dialect, problem)
			fmt.Fprintf(&b, "%s\n\n", p.contract)
			fmt.Fprintf(&b, "Check the fragments with 'validate_code' first. Denylisted operations (see %s) are rejected. ", denylistURI)
			fmt.Fprintf(&b, "Then call '%s' with 'description', '%s' and '%s'", p.tool, p.check, p.fix)
			if dir := request.Params.Arguments["output_dir"]; dir != "" {
				fmt.Fprintf(&b, " and output_dir %q", dir)
			}
			b.WriteString(".")

			return mcp.NewGetPromptResult(
				fmt.Sprintf("%s script pair", p.platform),
				[]mcp.PromptMessage{mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(b.String()))},
			), nil
		})
		log.Printf("Registered prompt: %s", p.name)
	}
}
