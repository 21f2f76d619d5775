// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package generator produces deployment scripts from templates: free-form
// template renders, composed custom scripts, Intune detection/remediation
// scripts and BigFix relevance/action scripts.
//
// Every caller-supplied code fragment is checked against the denylist before
// anything is rendered, and nothing is written unless every validation and
// render step succeeded.
package generator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SUSE/scriptguard-mcp/templates"
	"github.com/SUSE/scriptguard-mcp/validator"
)

// Exit codes of the generated scripts.
const (
	DetectionCompliant    = 0
	DetectionNonCompliant = 1

	RemediationSucceeded = 0
	RemediationFailed    = 1

	RelevanceNotRelevant = 0
	RelevanceRelevant    = 1

	ActionSuccess             = 0
	ActionRetryableFailure    = 1
	ActionNonRetryableFailure = 2

	ScriptError = 2
)

const dateFormat = "2006-01-02"

var ErrInvalidRequest = errors.New("invalid request")

// FileWriter persists a generated script and returns the path it was
// written to.
type FileWriter interface {
	Write(path, content string) (string, error)
	// WriteAll writes every file or none and returns the full paths.
	WriteAll(files map[string]string) (map[string]string, error)
}

// GeneratedScript is the result of one generation. OutputPath is empty when
// the script was not written.
type GeneratedScript struct {
	Content    string `json:"content"`
	OutputPath string `json:"outputPath,omitempty"`
}

// Catalog generates scripts. It is safe for concurrent use.
type Catalog struct {
	engine    *templates.Engine
	validator *validator.Validator
	writer    FileWriter
	now       func() time.Time
}

// NewCatalog creates a catalog. writer may be nil, in which case requests
// with an output path are rejected.
func NewCatalog(engine *templates.Engine, v *validator.Validator, writer FileWriter) *Catalog {
	return &Catalog{
		engine:    engine,
		validator: v,
		writer:    writer,
		now:       time.Now,
	}
}

// Dialect is the script language the catalog generates.
func (c *Catalog) Dialect() templates.Dialect {
	return c.engine.Dialect()
}

// TemplateInfo describes a template and the parameters it accepts.
type TemplateInfo struct {
	Name       string                  `json:"name"`
	Parameters []templates.Placeholder `json:"parameters"`
}

// ListTemplates returns every available template with its placeholders.
func (c *Catalog) ListTemplates() ([]TemplateInfo, error) {
	names, err := c.engine.List()
	if err != nil {
		return nil, err
	}
	infos := make([]TemplateInfo, 0, len(names))
	for _, name := range names {
		tmpl, err := c.engine.Load(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, TemplateInfo{Name: name, Parameters: tmpl.Placeholders()})
	}
	return infos, nil
}

// Template returns the parsed template called name.
func (c *Catalog) Template(name string) (*templates.Template, error) {
	return c.engine.Load(name)
}

// rawValueCheck rejects caller values that would enter the script verbatim
// and contain a denylisted operation.
func (c *Catalog) rawValueCheck() templates.RenderOption {
	return templates.WithValueCheck(func(ph templates.Placeholder, value string) error {
		if ph.Mode != templates.ModeRaw {
			return nil
		}
		return c.validator.Check(value)
	})
}

// codeCheck rejects renders in which caller values only form a denylisted
// operation together, e.g. a pipe at the end of one block and a shell at the
// start of the next.
func (c *Catalog) codeCheck() templates.RenderOption {
	return templates.WithCodeCheck(c.validator.Check)
}

func (c *Catalog) withDate(params templates.Parameters) templates.Parameters {
	out := make(templates.Parameters, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	if _, ok := out["DATE"]; !ok {
		out["DATE"] = c.now().Format(dateFormat)
	}
	return out
}

func (c *Catalog) write(path, content string) (string, error) {
	if c.writer == nil {
		return "", fmt.Errorf("%w: no output root configured", ErrInvalidRequest)
	}
	return c.writer.Write(path, content)
}

// TemplateRequest renders a named template with caller parameters.
type TemplateRequest struct {
	Name       string
	Parameters templates.Parameters
	OutputPath string
}

// Render renders a template. DATE is filled in unless the caller supplied it.
func (c *Catalog) Render(ctx context.Context, req TemplateRequest) (*GeneratedScript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := c.engine.Render(req.Name, c.withDate(req.Parameters), c.rawValueCheck(), c.codeCheck())
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

// kind describes one member of a detection/remediation or relevance/action
// family.
type kind struct {
	template string
	logicKey string
	fileName string
	// checkpoint marks scripts that take a recovery checkpoint before
	// changing the system.
	checkpoint bool
}

var (
	intuneDetection   = kind{template: "intune_detection", logicKey: "DETECTION_LOGIC", fileName: "detect"}
	intuneRemediation = kind{template: "intune_remediation", logicKey: "REMEDIATION_LOGIC", fileName: "remedy", checkpoint: true}
	bigfixRelevance   = kind{template: "bigfix_relevance", logicKey: "RELEVANCE_LOGIC", fileName: "relevance"}
	bigfixAction      = kind{template: "bigfix_action", logicKey: "ACTION_LOGIC", fileName: "action", checkpoint: true}
)

// ScriptRequest asks for a single detection, remediation, relevance or
// action script.
type ScriptRequest struct {
	Description string
	Logic       string
	OutputPath  string
	// CheckpointPaths lists files archived by the recovery checkpoint of
	// state-changing scripts. Ignored for read-only ones.
	CheckpointPaths []string
}

// PairRequest asks for both members of a family, sharing one description.
type PairRequest struct {
	Description     string
	CheckLogic      string
	FixLogic        string
	OutputDir       string
	CheckpointPaths []string
}

// ScriptPair holds the read-only check and the state-changing fix of a
// family.
type ScriptPair struct {
	Description string          `json:"description"`
	Check       GeneratedScript `json:"check"`
	Fix         GeneratedScript `json:"fix"`
}

func (c *Catalog) validateFragment(k kind, description, logic string) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("%w: description is empty", ErrInvalidRequest)
	}
	if strings.TrimSpace(logic) == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidRequest, strings.ToLower(k.logicKey))
	}
	if err := c.validator.Check(logic); err != nil {
		return fmt.Errorf("%s: %w", strings.ToLower(k.logicKey), err)
	}
	return nil
}

func (c *Catalog) renderKind(k kind, description, logic string, checkpointPaths []string) (string, error) {
	params := templates.Parameters{
		"DESCRIPTION": description,
		k.logicKey:    logic,
	}
	if k.checkpoint && len(checkpointPaths) > 0 {
		params["CHECKPOINT_PATHS"] = strings.Join(checkpointPaths, " ")
	}
	return c.engine.Render(k.template, c.withDate(params), c.rawValueCheck(), c.codeCheck())
}

func (c *Catalog) single(ctx context.Context, k kind, req ScriptRequest) (*GeneratedScript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.validateFragment(k, req.Description, req.Logic); err != nil {
		return nil, err
	}
	content, err := c.renderKind(k, req.Description, req.Logic, req.CheckpointPaths)
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

func (c *Catalog) pair(ctx context.Context, check, fix kind, req PairRequest) (*ScriptPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.validateFragment(check, req.Description, req.CheckLogic); err != nil {
		return nil, err
	}
	if err := c.validateFragment(fix, req.Description, req.FixLogic); err != nil {
		return nil, err
	}

	var checkContent, fixContent string
	var g errgroup.Group
	g.Go(func() error {
		var err error
		checkContent, err = c.renderKind(check, req.Description, req.CheckLogic, nil)
		return err
	})
	g.Go(func() error {
		var err error
		fixContent, err = c.renderKind(fix, req.Description, req.FixLogic, req.CheckpointPaths)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &ScriptPair{
		Description: req.Description,
		Check:       GeneratedScript{Content: checkContent},
		Fix:         GeneratedScript{Content: fixContent},
	}
	if req.OutputDir != "" {
		if c.writer == nil {
			return nil, fmt.Errorf("%w: no output root configured", ErrInvalidRequest)
		}
		ext := c.engine.Dialect().Extension()
		checkPath := filepath.Join(req.OutputDir, check.fileName+ext)
		fixPath := filepath.Join(req.OutputDir, fix.fileName+ext)
		written, err := c.writer.WriteAll(map[string]string{checkPath: checkContent, fixPath: fixContent})
		if err != nil {
			return nil, err
		}
		res.Check.OutputPath = written[checkPath]
		res.Fix.OutputPath = written[fixPath]
	}
	return res, nil
}

// IntuneDetection generates a detection script: exit 0 compliant, 1 not
// compliant, 2 script error.
func (c *Catalog) IntuneDetection(ctx context.Context, req ScriptRequest) (*GeneratedScript, error) {
	return c.single(ctx, intuneDetection, req)
}

// IntuneRemediation generates a remediation script that takes a recovery
// checkpoint first: exit 0 success, 1 failure, 2 script error.
func (c *Catalog) IntuneRemediation(ctx context.Context, req ScriptRequest) (*GeneratedScript, error) {
	return c.single(ctx, intuneRemediation, req)
}

// IntunePair generates detect.<ext> and remedy.<ext>.
func (c *Catalog) IntunePair(ctx context.Context, req PairRequest) (*ScriptPair, error) {
	return c.pair(ctx, intuneDetection, intuneRemediation, req)
}

// BigFixRelevance generates a relevance script printing TRUE (exit 1) or
// FALSE (exit 0), and FALSE with exit 2 on internal errors.
func (c *Catalog) BigFixRelevance(ctx context.Context, req ScriptRequest) (*GeneratedScript, error) {
	return c.single(ctx, bigfixRelevance, req)
}

// BigFixAction generates an action script that takes a recovery checkpoint
// first: exit 0 success, 1 retryable failure, 2 non-retryable failure.
func (c *Catalog) BigFixAction(ctx context.Context, req ScriptRequest) (*GeneratedScript, error) {
	return c.single(ctx, bigfixAction, req)
}

// BigFixPair generates relevance.<ext> and action.<ext>.
func (c *Catalog) BigFixPair(ctx context.Context, req PairRequest) (*ScriptPair, error) {
	return c.pair(ctx, bigfixRelevance, bigfixAction, req)
}
