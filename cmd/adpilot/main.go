// Package main provides the adpilot CLI for working with playbook catalogs.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/optiad/adpilot/pkg/catalog"
	"github.com/optiad/adpilot/pkg/schema"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "adpilot",
	Short: "Progressive-disclosure playbook engine",
	Long:  "adpilot manages capability playbooks for conversational ad-ops assistants: validation, policy inspection and tier transition simulation.",
}

var playbooksDir string

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [playbook.yaml | dir]",
	Short: "Validate a playbook YAML file or a directory of playbooks",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.IsDir() {
		playbooks, errs := schema.ValidateDir(path)
		if len(errs) > 0 {
			printValidationErrors(errs)
			return fmt.Errorf("validation failed with %d error(s)", len(errs))
		}
		fmt.Printf("✓ %d playbooks are valid\n", len(playbooks))
		return nil
	}

	pb, errs := schema.ValidateFile(path)
	if len(errs) > 0 {
		printValidationErrors(errs)
		return fmt.Errorf("validation failed with %d error(s)", len(errs))
	}
	fmt.Printf("✓ %s is valid (%d intents, %d tiers)\n", pb.ID, len(pb.Intents), len(pb.Tiers))
	return nil
}

func printValidationErrors(errs []*schema.ValidationError) {
	fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errs))
	for i, e := range errs {
		fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
		if e.Path != "" {
			fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
		}
	}
}

// --- schema export ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the playbook JSON Schema to stdout",
	RunE:  runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	var out json.RawMessage = data
	formatted, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(string(formatted))
	return nil
}

// --- intents ---

var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "List every registered intent and the playbook that serves it",
	RunE:  runIntents,
}

func runIntents(cmd *cobra.Command, args []string) error {
	cat, err := catalog.NewFromDir(playbooksDir, nil, nil)
	if err != nil {
		return err
	}

	for _, id := range cat.AllPlaybookIDs() {
		pb, _ := cat.Playbook(id)
		for _, intent := range pb.Intents {
			fmt.Printf("  %-32s → %s\n", intent, pb.ID)
		}
	}
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("adpilot %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&playbooksDir, "playbooks", "playbooks", "Directory containing playbook YAML files")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(intentsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}
