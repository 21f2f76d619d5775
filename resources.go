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
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/SUSE/scriptguard-mcp/validator"
)

const (
	templatesURI = uriScheme + "templates"
	denylistURI  = uriScheme + "denylist"
)

// resourceEntry is a resource as seen by the ListResources and GetResource
// tools.
type resourceEntry struct {
	uri         string
	description string
	mimeType    string
	read        func(ctx context.Context) (string, error)
}

// addResource registers a resource with the server and remembers it for the
// resource tools.
func (a *app) addResource(mcpServer *server.MCPServer, entry resourceEntry) {
	resource := mcp.NewResource(
		entry.uri,
		entry.description,
		mcp.WithResourceDescription(entry.description),
		mcp.WithMIMEType(entry.mimeType),
	)
	mcpServer.AddResource(resource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if a.verbose {
			log.Printf("Handling resource read request for: %s", entry.uri)
		}
		content, err := entry.read(ctx)
		if err != nil {
			log.Printf("ERROR: Could not read resource %s: %v", entry.uri, err)
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: entry.uri, MIMEType: entry.mimeType, Text: content},
		}, nil
	})
	a.resources[entry.uri] = entry
	a.resourceOrder = append(a.resourceOrder, entry.uri)
}

// registerResources publishes the template catalog, the denylist and the
// configured resources.
func (a *app) registerResources(mcpServer *server.MCPServer) {
	a.addResource(mcpServer, resourceEntry{
		uri:         templatesURI,
		description: fmt.Sprintf("Available %s templates and their placeholders.", a.catalog.Dialect().Name()),
		mimeType:    "application/json",
		read: func(ctx context.Context) (string, error) {
			infos, err := a.catalog.ListTemplates()
			if err != nil {
				return "", err
			}
			return marshalIndent(infos)
		},
	})

	names, err := a.catalog.ListTemplates()
	if err != nil {
		log.Printf("ERROR: Could not list templates: %v", err)
	}
	for _, info := range names {
		name := info.Name
		a.addResource(mcpServer, resourceEntry{
			uri:         templatesURI + "/" + name,
			description: fmt.Sprintf("Body of the %s template.", name),
			mimeType:    "text/plain",
			read: func(ctx context.Context) (string, error) {
				tmpl, err := a.catalog.Template(name)
				if err != nil {
					return "", err
				}
				return tmpl.Body, nil
			},
		})
	}

	a.addResource(mcpServer, resourceEntry{
		uri:         denylistURI,
		description: "Denylist categories and the patterns that block code.",
		mimeType:    "application/json",
		read: func(ctx context.Context) (string, error) {
			return marshalIndent(denylistDocument(a.validator))
		},
	})

	for _, item := range a.cfg.Specification.Resources {
		item := item
		a.addResource(mcpServer, resourceEntry{
			uri:         item.URI,
			description: item.Description,
			mimeType:    "text/plain",
			read: func(ctx context.Context) (string, error) {
				return a.getResourceContent(ctx, item), nil
			},
		})
		log.Printf("Registered resource: %s (dynamic: %v)", item.URI, item.Command != "")
	}
	log.Printf("Registered %d resources.", len(a.resourceOrder))

	a.registerResourceTools(mcpServer)
}

type denylistCategory struct {
	Category    validator.Category `json:"category"`
	Description string             `json:"description"`
	Patterns    []string           `json:"patterns"`
}

func denylistDocument(v *validator.Validator) []denylistCategory {
	byCategory := make(map[validator.Category][]string)
	for _, rule := range v.Rules() {
		byCategory[rule.Category] = append(byCategory[rule.Category], rule.Pattern)
	}
	doc := make([]denylistCategory, 0, len(byCategory))
	for _, c := range validator.Categories() {
		if patterns, ok := byCategory[c]; ok {
			doc = append(doc, denylistCategory{Category: c, Description: c.Description(), Patterns: patterns})
		}
	}
	return doc
}

func marshalIndent(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// getResourceContent combines the static content of a configured resource
// with the output of its command. Command failures become part of the
// content so the model can see them.
func (a *app) getResourceContent(ctx context.Context, item ResourceItem) string {
	var combinedContent strings.Builder
	combinedContent.WriteString(item.Content)

	if item.Command != "" {
		timeout := item.TimeoutSeconds
		if timeout <= 0 {
			timeout = a.defaultTimeout
		}
		res, err := a.engine.Execute(ctx, item.Command, timeout, &toolObserver{label: item.URI, verbose: a.verbose})
		switch {
		case err != nil:
			log.Printf("ERROR: Error executing command for resource %s: %v", item.URI, err)
			fmt.Fprintf(&combinedContent, "\nError executing command: %v", err)
		default:
			combinedContent.WriteString(res.Stdout)
			if failure := queryFailure(res, timeout); failure != "" {
				log.Printf("ERROR: Command for resource %s failed: %s", item.URI, failure)
				fmt.Fprintf(&combinedContent, "\nError executing command: %s. Output: %s", failure, res.Stderr)
			}
		}
	}
	return combinedContent.String()
}

// registerResourceTools exposes resources through tools for clients that
// do not support resources.
func (a *app) registerResourceTools(mcpServer *server.MCPServer) {
	listResourcesTool := mcp.NewTool(
		"ListResources",
		mcp.WithDescription("Lists all resources provided by this server. An optional regular expression filters by URI and description."),
		mcp.WithString("query", mcp.Description("Regular expression matched against URI and description.")),
	)
	mcpServer.AddTool(listResourcesTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if a.verbose {
			log.Printf("Handling ListResources request.")
		}
		text, err := a.listResources(request.GetString("query", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	})
	log.Printf("Registered built-in tool: %s", listResourcesTool.Name)

	getResourceTool := mcp.NewTool(
		"GetResource",
		mcp.WithDescription("Gets the current content of a specific resource by its URI."),
		mcp.WithString(
			"resourceURI",
			mcp.Required(),
			mcp.Description("The full URI of the resource (e.g., scriptguard://denylist)."),
		),
	)
	mcpServer.AddTool(getResourceTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resourceURI, err := request.RequireString("resourceURI")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if a.verbose {
			log.Printf("Handling GetResource request for: %s", resourceURI)
		}
		entry, ok := a.resources[resourceURI]
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Resource not found: %s. Call ListResources to see available URIs.", resourceURI)), nil
		}
		content, err := entry.read(ctx)
		if err != nil {
			return toolFailure("GetResource", err), nil
		}
		return mcp.NewToolResultText(content), nil
	})
	log.Printf("Registered built-in tool: %s", getResourceTool.Name)
}

func (a *app) listResources(query string) (string, error) {
	var re *regexp.Regexp
	if query != "" {
		var err error
		if re, err = regexp.Compile("(?i)" + query); err != nil {
			return "", fmt.Errorf("invalid regular expression: %w", err)
		}
	}

	var b strings.Builder
	found := 0
	for _, uri := range a.resourceOrder {
		entry := a.resources[uri]
		if re != nil && !re.MatchString(uri) && !re.MatchString(entry.description) {
			continue
		}
		found++
		fmt.Fprintf(&b, "URI: %s\nDescription: %s\n\n", uri, entry.description)
	}
	if found == 0 {
		return "No resources matched.", nil
	}
	return fmt.Sprintf("Found %d resources:\n\n%s", found, b.String()), nil
}
