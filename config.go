// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/SUSE/scriptguard-mcp/validator"
)

// Config is the root of the YAML configuration file.
type Config struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Metadata   struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
	Specification Spec `yaml:"spec"`
}

type Spec struct {
	Shell      ShellConfig      `yaml:"shell"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Templates  TemplatesConfig  `yaml:"templates"`
	Output     OutputConfig     `yaml:"output"`
	Validation ValidationConfig `yaml:"validation"`
	Tasks      TasksConfig      `yaml:"tasks"`
	Queries    []QueryItem      `yaml:"queries"`
	Resources  []ResourceItem   `yaml:"resources"`
}

// ShellConfig selects the interpreter and the script dialect. An empty
// command means the platform default.
type ShellConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Dialect string   `yaml:"dialect"`
}

type ExecutionConfig struct {
	WorkDir               string   `yaml:"workDir"`
	Env                   []string `yaml:"env"`
	DefaultTimeoutSeconds int      `yaml:"defaultTimeoutSeconds"`
	WaitDelaySeconds      int      `yaml:"waitDelaySeconds"`
}

type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

// OutputConfig names the only directory generated scripts may be written
// to. Without a root, generation tools return content only.
type OutputConfig struct {
	Root string `yaml:"root"`
}

type ValidationConfig struct {
	Rules []validator.Rule `yaml:"rules"`
}

type TasksConfig struct {
	MaxTasks int `yaml:"maxTasks"`
}

// QueryItem declares a read-only tool. Command is a template whose
// placeholders become the tool's parameters.
type QueryItem struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	Command        string `yaml:"command"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	Async          bool   `yaml:"async"`
}

// ResourceItem is a resource with static content, command output, or both.
type ResourceItem struct {
	URI            string `yaml:"uri"`
	Description    string `yaml:"description"`
	Content        string `yaml:"content"`
	Command        string `yaml:"command"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

//go:embed config-schema.json
var configSchemaJSON string

var (
	configSchemaOnce sync.Once
	configSchema     *gojsonschema.Schema
	configSchemaErr  error
)

func getConfigSchema() (*gojsonschema.Schema, error) {
	configSchemaOnce.Do(func() {
		configSchema, configSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(configSchemaJSON))
	})
	return configSchema, configSchemaErr
}

// LoadConfig reads a configuration file, validates it against the embedded
// schema and decodes it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return parseConfig(path, data)
}

func parseConfig(name string, data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	schema, err := getConfigSchema()
	if err != nil {
		return nil, fmt.Errorf("invalid embedded config schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to validate %s: %w", name, err)
	}
	if !result.Valid() {
		var b strings.Builder
		fmt.Fprintf(&b, "invalid configuration in %s:", name)
		for _, desc := range result.Errors() {
			fmt.Fprintf(&b, "\n  - %s", desc.String())
		}
		return nil, errors.New(b.String())
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", name, err)
	}
	return &cfg, nil
}

// check covers what the schema cannot express.
func (c *Config) check() error {
	seen := make(map[string]bool)
	for _, q := range c.Specification.Queries {
		if builtinToolNames[q.Name] {
			return fmt.Errorf("query %s shadows a built-in tool", q.Name)
		}
		if seen[q.Name] {
			return fmt.Errorf("duplicate query %s", q.Name)
		}
		seen[q.Name] = true
	}
	uris := make(map[string]bool)
	for _, r := range c.Specification.Resources {
		if strings.HasPrefix(r.URI, uriScheme) {
			return fmt.Errorf("resource %s uses the reserved %s scheme", r.URI, uriScheme)
		}
		if uris[r.URI] {
			return fmt.Errorf("duplicate resource %s", r.URI)
		}
		uris[r.URI] = true
	}
	return nil
}

// Dialect returns the configured dialect or the platform default.
func (c *Config) Dialect() string {
	if c.Specification.Shell.Dialect != "" {
		return c.Specification.Shell.Dialect
	}
	if runtime.GOOS == "windows" {
		return "powershell"
	}
	return "bash"
}

// loadDotEnv reads an optional .env file into the process environment.
// Variables already set take precedence.
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("ERROR: Could not load %s: %v", path, err)
		}
		return
	}
	log.Printf("Loaded environment overrides from %s", path)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
