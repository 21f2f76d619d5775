// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package main is the entry point for the scriptguard-mcp server. It loads
// the configuration, builds the validator, execution engine, template
// catalog and output writer, registers all tools, resources and prompts, and
// serves MCP over Streamable HTTP or stdio.
package main

import (
	"flag"
	"log"

	"github.com/mark3labs/mcp-go/server"
)

func main() {
	loadDotEnv(".env")

	configFile := flag.String("config", envOr("SCRIPTGUARD_CONFIG", "./scriptguard.yaml"), "Path to the YAML configuration file.")
	listenAddr := flag.String("listen-addr", envOr("SCRIPTGUARD_LISTEN_ADDR", ":8080"), "Address to listen on for HTTP requests.")
	outputRoot := flag.String("output-root", envOr("SCRIPTGUARD_OUTPUT_ROOT", ""), "Directory for generated scripts. Overrides spec.output.root.")
	transport := flag.String("transport", "http", "Transport to serve: http or stdio.")
	verbose := flag.Bool("verbose", false, "Enable verbose logging of MCP requests.")
	flag.Parse()

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("ERROR: Error loading configuration: %v", err)
	}
	log.Printf("Configuration loaded successfully from %s", *configFile)

	if *outputRoot != "" {
		cfg.Specification.Output.Root = *outputRoot
	}

	a, err := newApp(cfg, *verbose)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	mcpServer := a.newMCPServer()

	switch *transport {
	case "stdio":
		log.Printf("MCP server starting on stdio ...")
		if err := server.ServeStdio(mcpServer); err != nil {
			log.Fatalf("ERROR: stdio server failed: %v", err)
		}
	case "http":
		log.Printf("Creating Streamable HTTP server...")
		httpServer := server.NewStreamableHTTPServer(mcpServer)

		log.Printf("MCP server starting, listening on %s/mcp ...", *listenAddr)
		if err := httpServer.Start(*listenAddr); err != nil {
			log.Fatalf("ERROR: Could not start HTTP server: %v", err)
		}
	default:
		log.Fatalf("ERROR: Unknown transport %q, use http or stdio", *transport)
	}
}
