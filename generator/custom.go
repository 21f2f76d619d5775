// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/SUSE/scriptguard-mcp/templates"
)

// ScriptParameter declares one parameter of a custom script.
type ScriptParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Mandatory   bool   `json:"mandatory,omitempty"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

const parameterListSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name"],
    "additionalProperties": false,
    "properties": {
      "name": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"},
      "type": {"type": "string", "pattern": "^[A-Za-z][A-Za-z0-9_.]*(\\[\\])?$"},
      "mandatory": {"type": "boolean"},
      "default": {"type": ["string", "number", "boolean"]},
      "description": {"type": "string"}
    }
  }
}`

var (
	paramSchema     *gojsonschema.Schema
	paramSchemaOnce sync.Once
	paramSchemaErr  error

	paramNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	paramTypeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*(\[\])?$`)
)

func getParamSchema() (*gojsonschema.Schema, error) {
	paramSchemaOnce.Do(func() {
		paramSchema, paramSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(parameterListSchema))
	})
	return paramSchema, paramSchemaErr
}

// ParseScriptParameters validates a decoded JSON parameter list, as received
// from a tool call, and converts it. Non-string defaults are kept in their
// JSON text form.
func ParseScriptParameters(raw any) ([]ScriptParameter, error) {
	if raw == nil {
		return nil, nil
	}
	schema, err := getParamSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling parameter schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parameters: %v", ErrInvalidRequest, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: parameters: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
	}

	items, _ := raw.([]any)
	params := make([]ScriptParameter, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]any)
		p := ScriptParameter{}
		p.Name, _ = m["name"].(string)
		p.Type, _ = m["type"].(string)
		p.Mandatory, _ = m["mandatory"].(bool)
		p.Description, _ = m["description"].(string)
		switch d := m["default"].(type) {
		case nil:
		case string:
			p.Default = d
		default:
			data, err := json.Marshal(d)
			if err != nil {
				return nil, fmt.Errorf("%w: parameter %s default: %v", ErrInvalidRequest, p.Name, err)
			}
			p.Default = string(data)
		}
		params = append(params, p)
	}
	return params, nil
}

// CustomScriptRequest describes a composed script.
type CustomScriptRequest struct {
	Description          string
	ScriptType           string
	Parameters           []ScriptParameter
	MainLogic            string
	IncludeLogging       bool
	IncludeErrorHandling bool
	OutputPath           string
}

const emptyMainLogic = "# Add the script logic here."

// CustomScript composes a script from a header, a parameter declaration
// block, optional logging and error-handling helpers and the main logic.
func (c *Catalog) CustomScript(ctx context.Context, req CustomScriptRequest) (*GeneratedScript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: description is empty", ErrInvalidRequest)
	}
	if err := c.validator.Check(req.MainLogic); err != nil {
		return nil, fmt.Errorf("main_logic: %w", err)
	}

	d := c.engine.Dialect()
	paramBlock, err := parameterBlock(d, req.Parameters)
	if err != nil {
		return nil, err
	}

	logic := req.MainLogic
	if strings.TrimSpace(logic) == "" {
		logic = emptyMainLogic
	}
	mainTemplate := "custom_main"
	if req.IncludeErrorHandling {
		mainTemplate = "custom_main_guarded"
	}
	mainBlock, err := c.engine.Render(mainTemplate, templates.Parameters{"MAIN_LOGIC": logic}, c.rawValueCheck(), c.codeCheck())
	if err != nil {
		return nil, err
	}

	params := templates.Parameters{
		"DESCRIPTION": req.Description,
		"SCRIPT_TYPE": req.ScriptType,
		"PARAM_BLOCK": paramBlock,
		"MAIN_BLOCK":  mainBlock,
	}
	if req.IncludeLogging {
		if params["LOGGING_BLOCK"], err = c.engine.Render("custom_logging", nil); err != nil {
			return nil, err
		}
	}
	if req.IncludeErrorHandling {
		if params["ERROR_BLOCK"], err = c.engine.Render("custom_error_handling", nil); err != nil {
			return nil, err
		}
	}

	// Each block passed its own checks. The assembled script is checked once
	// more with the parameter block reduced to code, so descriptions and
	// quoted defaults do not count.
	codeParams := make(templates.Parameters, len(params))
	for k, v := range params {
		codeParams[k] = v
	}
	if codeParams["PARAM_BLOCK"], err = parameterBlock(d, parameterCode(req.Parameters)); err != nil {
		return nil, err
	}
	if _, err := c.engine.Render("custom_script", c.withDate(codeParams), c.codeCheck()); err != nil {
		return nil, err
	}

	content, err := c.engine.Render("custom_script", c.withDate(params))
	if err != nil {
		return nil, err
	}

	res := &GeneratedScript{Content: content}
	if req.OutputPath != "" {
		if res.OutputPath, err = c.write(req.OutputPath, content); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// parameterCode strips descriptions and defaults, leaving what the
// parameter block executes.
func parameterCode(params []ScriptParameter) []ScriptParameter {
	out := make([]ScriptParameter, len(params))
	for i, p := range params {
		out[i] = ScriptParameter{Name: p.Name, Type: p.Type, Mandatory: p.Mandatory}
	}
	return out
}

func parameterBlock(d templates.Dialect, params []ScriptParameter) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	seen := make(map[string]bool)
	for _, p := range params {
		if !paramNameRe.MatchString(p.Name) {
			return "", fmt.Errorf("%w: invalid parameter name %q", ErrInvalidRequest, p.Name)
		}
		if p.Type != "" && !paramTypeRe.MatchString(p.Type) {
			return "", fmt.Errorf("%w: invalid type %q for parameter %s", ErrInvalidRequest, p.Type, p.Name)
		}
		key := strings.ToLower(p.Name)
		if seen[key] {
			return "", fmt.Errorf("%w: duplicate parameter %s", ErrInvalidRequest, p.Name)
		}
		seen[key] = true
	}

	if d.Name() == templates.PowerShell.Name() {
		return powerShellParams(d, params)
	}
	return bashParams(d, params)
}

func powerShellParams(d templates.Dialect, params []ScriptParameter) (string, error) {
	var b strings.Builder
	b.WriteString("param(\n")
	for i, p := range params {
		if p.Description != "" {
			fmt.Fprintf(&b, "    # %s\n", d.Comment(p.Description))
		}
		mandatory := "$false"
		if p.Mandatory {
			mandatory = "$true"
		}
		fmt.Fprintf(&b, "    [Parameter(Mandatory = %s)]\n", mandatory)
		if p.Type != "" {
			fmt.Fprintf(&b, "    [%s]", p.Type)
		} else {
			b.WriteString("    ")
		}
		b.WriteString("$" + p.Name)
		if p.Default != "" {
			quoted, err := d.Quote(p.Default)
			if err != nil {
				return "", fmt.Errorf("%w: parameter %s default: %v", ErrInvalidRequest, p.Name, err)
			}
			b.WriteString(" = " + quoted)
		}
		if i < len(params)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")\n")
	return b.String(), nil
}

// bashParams reads parameters from the environment, applying defaults and
// failing with exit code 2 when a mandatory one is missing.
func bashParams(d templates.Dialect, params []ScriptParameter) (string, error) {
	var b strings.Builder
	b.WriteString("# Parameters are taken from the environment.\n")
	for _, p := range params {
		desc := p.Description
		if p.Type != "" {
			desc = strings.TrimSpace(fmt.Sprintf("(%s) %s", p.Type, desc))
		}
		if desc != "" {
			fmt.Fprintf(&b, "# %s: %s\n", p.Name, d.Comment(desc))
		}
		if p.Default != "" {
			quoted, err := d.Quote(p.Default)
			if err != nil {
				return "", fmt.Errorf("%w: parameter %s default: %v", ErrInvalidRequest, p.Name, err)
			}
			fmt.Fprintf(&b, "if [ -z \"${%s+x}\" ]; then\n\t%s=%s\nfi\n", p.Name, p.Name, quoted)
		} else if !p.Mandatory {
			fmt.Fprintf(&b, "%s=\"${%s-}\"\n", p.Name, p.Name)
		}
		if p.Mandatory {
			fmt.Fprintf(&b, "if [ -z \"${%s:-}\" ]; then\n\tprintf 'missing required parameter %s\\n' >&2\n\texit 2\nfi\n", p.Name, p.Name)
		}
	}
	return b.String(), nil
}
