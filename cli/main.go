// Copyright (c) 2025 SUSE LLC.
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command scriptguard-mcp-cli calls the tools and resources of a running
// scriptguard-mcp server over Streamable HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/SUSE/scriptguard-mcp/executor"
)

const defaultServer = "http://localhost:8080/mcp"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}

// session is an initialized connection to the server, shared by the
// subcommands.
type session struct {
	serverURL string
	timeout   time.Duration
	clt       *client.Client
}

func newRootCmd() *cobra.Command {
	s := &session{}
	root := &cobra.Command{
		Use:          "scriptguard-mcp-cli",
		Short:        "Command-line client for scriptguard-mcp",
		SilenceUsage: true,
	}
	serverDefault := os.Getenv("SCRIPTGUARD_SERVER")
	if serverDefault == "" {
		serverDefault = defaultServer
	}
	root.PersistentFlags().StringVar(&s.serverURL, "server", serverDefault, "URL of the scriptguard-mcp endpoint")
	root.PersistentFlags().DurationVar(&s.timeout, "request-timeout", 5*time.Minute, "timeout for the whole request")

	root.AddCommand(s.listToolsCmd())
	root.AddCommand(s.showToolCmd())
	root.AddCommand(s.toolCmd())
	root.AddCommand(s.runCmd())
	root.AddCommand(s.validateCmd())
	root.AddCommand(s.listResourcesCmd())
	root.AddCommand(s.showResourceCmd())
	root.AddCommand(s.resourceCmd())
	return root
}

// connect starts and initializes the client. The returned function closes
// the connection.
func (s *session) connect(cmd *cobra.Command) (context.Context, func(), error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), s.timeout)

	clt, err := client.NewStreamableHttpClient(s.serverURL)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to create client: %w", err)
	}
	if err := clt.Start(ctx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start client: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: "scriptguard-mcp-cli", Version: "1.0.0"}
	if _, err := clt.Initialize(ctx, initRequest); err != nil {
		clt.Close()
		cancel()
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", s.serverURL, err)
	}
	s.clt = clt
	return ctx, func() {
		clt.Close()
		cancel()
	}, nil
}

func (s *session) listToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-tools",
		Short: "List the tools offered by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done, err := s.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			tools, err := s.clt.ListTools(ctx, mcp.ListToolsRequest{})
			if err != nil {
				return fmt.Errorf("failed to list tools: %w", err)
			}
			for _, tool := range tools.Tools {
				fmt.Fprintln(cmd.OutOrStdout(), tool.Name)
			}
			return nil
		},
	}
}

func (s *session) showToolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-tool <name>",
		Short: "Show the description and parameters of a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done, err := s.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			tools, err := s.clt.ListTools(ctx, mcp.ListToolsRequest{})
			if err != nil {
				return fmt.Errorf("failed to list tools: %w", err)
			}
			for _, tool := range tools.Tools {
				if tool.Name == args[0] {
					printTool(cmd.OutOrStdout(), tool)
					return nil
				}
			}
			return fmt.Errorf("tool not found: %s", args[0])
		},
	}
}

func printTool(w io.Writer, tool mcp.Tool) {
	fmt.Fprintln(w, tool.Description)
	if len(tool.InputSchema.Properties) == 0 {
		return
	}
	required := make(map[string]bool)
	for _, name := range tool.InputSchema.Required {
		required[name] = true
	}
	names := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "\nParameters:")
	for _, name := range names {
		prop, _ := tool.InputSchema.Properties[name].(map[string]any)
		typ, _ := prop["type"].(string)
		desc, _ := prop["description"].(string)
		flag := ""
		if required[name] {
			flag = ", required"
		}
		fmt.Fprintf(w, "  --%s (%s%s)  %s\n", name, typ, flag, desc)
	}
}

func (s *session) toolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tool <name> [--<param> <value>]...",
		Short: "Call a tool",
		Long: "Call a tool. Parameters are given as --<param> <value> or --<param>=<value>. " +
			"Values that are JSON arrays or objects are passed decoded. " +
			"--server and --request-timeout keep their usual meaning.",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, params, err := parseToolArgs(args)
			if err != nil {
				return err
			}
			if name == "" {
				return cmd.Help()
			}
			if server, ok := params["server"].(string); ok {
				s.serverURL = server
				delete(params, "server")
			}
			if timeout, ok := params["request-timeout"].(string); ok {
				if s.timeout, err = time.ParseDuration(timeout); err != nil {
					return fmt.Errorf("invalid request-timeout: %w", err)
				}
				delete(params, "request-timeout")
			}

			ctx, done, err := s.connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			return s.callTool(ctx, cmd, name, params)
		},
	}
}

// parseToolArgs splits the arguments of the tool command into the tool name
// and its parameters. An empty name means help was requested.
func parseToolArgs(args []string) (string, map[string]any, error) {
	var name string
	params := make(map[string]any)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-h" || arg == "--help":
			return "", nil, nil
		case strings.HasPrefix(arg, "--"):
			key := strings.TrimPrefix(arg, "--")
			if k, v, ok := strings.Cut(key, "="); ok {
				params[k] = paramValue(v)
				continue
			}
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("missing value for parameter: %s", key)
			}
			params[key] = paramValue(args[i+1])
			i++
		case name == "":
			name = arg
		default:
			return "", nil, fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	if name == "" && len(args) > 0 {
		return "", nil, errors.New("missing tool name")
	}
	return name, params, nil
}

func paramValue(v string) any {
	trimmed := strings.TrimSpace(v)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return v
}

func (s *session) callTool(ctx context.Context, cmd *cobra.Command, name string, params map[string]any) error {
	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = params
	res, err := s.clt.CallTool(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to call tool: %w", err)
	}
	text := contentText(res.Content)
	if res.IsError {
		return fmt.Errorf("tool returned an error: %s", text)
	}
	fmt.Fprint(cmd.OutOrStdout(), text)
	if text != "" && !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func contentText(contents []mcp.Content) string {
	var b strings.Builder
	for _, content := range contents {
		if textContent, ok := content.(mcp.TextContent); ok {
			b.WriteString(textContent.Text)
		}
	}
	return b.String()
}

// exitError carries the exit code of a remote command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.code)
}

func (s *session) runCmd() *cobra.Command {
	var timeout int
	cmd := &cobra.Command{
		Use:   "run <code>",
		Short: "Run code on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done, err := s.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			request := mcp.CallToolRequest{}
			request.Params.Name = "run_command"
			request.Params.Arguments = map[string]any{"code": args[0], "timeout": timeout}
			res, err := s.clt.CallTool(ctx, request)
			if err != nil {
				return fmt.Errorf("failed to call tool: %w", err)
			}
			text := contentText(res.Content)
			if res.IsError {
				return errors.New(text)
			}

			var result executor.Result
			if err := json.Unmarshal([]byte(text), &result); err != nil {
				return fmt.Errorf("unexpected result: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
			fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
			switch {
			case result.TimedOut:
				return fmt.Errorf("command timed out after %d seconds", timeout)
			case result.ExitCode == nil:
				return errors.New("command was terminated by a signal")
			case *result.ExitCode != 0:
				return &exitError{code: *result.ExitCode}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&timeout, "timeout", executor.DefaultTimeoutSeconds, "timeout in seconds")
	return cmd
}

func (s *session) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <code>",
		Short: "Check code against the denylist without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done, err := s.connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			return s.callTool(ctx, cmd, "validate_code", map[string]any{"code": args[0]})
		},
	}
}

func (s *session) listResourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-resources",
		Short: "List the resources offered by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done, err := s.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			resources, err := s.clt.ListResources(ctx, mcp.ListResourcesRequest{})
			if err != nil {
				return fmt.Errorf("failed to list resources: %w", err)
			}
			for _, resource := range resources.Resources {
				fmt.Fprintln(cmd.OutOrStdout(), resource.URI)
			}
			return nil
		},
	}
}

func (s *session) showResourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-resource <uri>",
		Short: "Show the description of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done, err := s.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			resources, err := s.clt.ListResources(ctx, mcp.ListResourcesRequest{})
			if err != nil {
				return fmt.Errorf("failed to list resources: %w", err)
			}
			for _, resource := range resources.Resources {
				if resource.URI == args[0] {
					fmt.Fprintln(cmd.OutOrStdout(), resource.Description)
					return nil
				}
			}
			return fmt.Errorf("resource not found: %s", args[0])
		},
	}
}

func (s *session) resourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resource <uri>",
		Short: "Print the content of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, done, err := s.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			request := mcp.ReadResourceRequest{}
			request.Params.URI = args[0]
			readResult, err := s.clt.ReadResource(ctx, request)
			if err != nil {
				return fmt.Errorf("failed to read resource: %w", err)
			}
			for _, content := range readResult.Contents {
				switch c := content.(type) {
				case mcp.TextResourceContents:
					fmt.Fprint(cmd.OutOrStdout(), c.Text)
				case mcp.BlobResourceContents:
					fmt.Fprint(cmd.OutOrStdout(), c.Blob)
				}
			}
			return nil
		},
	}
}
