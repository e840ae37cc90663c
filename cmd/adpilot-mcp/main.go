// Package main provides the adpilot-mcp binary, an MCP server exposing the
// playbook engine to AI agents over stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/optiad/adpilot/pkg/catalog"
	amcp "github.com/optiad/adpilot/pkg/ecosystem/mcp"
	"github.com/optiad/adpilot/pkg/store"
	"github.com/optiad/adpilot/pkg/store/inmem"
	"github.com/optiad/adpilot/pkg/store/sqlite"
	"github.com/optiad/adpilot/pkg/tierstate"
)

var version = "dev"

func main() {
	playbooksDir := flag.String("playbooks", "playbooks", "directory containing playbook YAML files")
	dbPath := flag.String("db", "", "SQLite database path for conversation state (in-memory if empty)")
	flag.Parse()

	// Logs go to stderr, stdout belongs to the MCP transport.
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cat, err := catalog.NewFromDir(*playbooksDir, nil, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var st store.Store
	if *dbPath != "" {
		db, err := sqlite.Open(context.Background(), *dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		st = db
	} else {
		st = inmem.New()
	}

	svc := &amcp.Service{
		Catalog: cat,
		Machine: tierstate.NewMachine(cat, nil, log),
		Store:   st,
	}

	s := amcp.NewServer(version, svc)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
