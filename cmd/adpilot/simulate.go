package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/optiad/adpilot/pkg/catalog"
	"github.com/optiad/adpilot/pkg/store"
	"github.com/optiad/adpilot/pkg/store/sqlite"
	"github.com/optiad/adpilot/pkg/tierstate"
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"})
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "196"})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "241"})
	boldStyle  = lipgloss.NewStyle().Bold(true)
)

// --- policy ---

var policyCmd = &cobra.Command{
	Use:   "policy [playbook-id] [tier]",
	Short: "Resolve the tool policy for a playbook tier",
	Args:  cobra.ExactArgs(2),
	RunE:  runPolicy,
}

func runPolicy(cmd *cobra.Command, args []string) error {
	cat, err := catalog.NewFromDir(playbooksDir, nil, nil)
	if err != nil {
		return err
	}

	pol := cat.TierPolicy(args[0], args[1])
	fmt.Printf("%s\n", boldStyle.Render(fmt.Sprintf("%s / %s", args[0], args[1])))
	if len(pol.AllowedTools) == 0 {
		fmt.Printf("  tools:            %s\n", mutedStyle.Render("(none)"))
	} else {
		fmt.Printf("  tools:            %s\n", strings.Join(pol.AllowedTools, ", "))
	}
	fmt.Printf("  max tool calls:   %d\n", pol.MaxToolCalls)
	fmt.Printf("  dangerous policy: %s\n", pol.DangerousPolicy)
	if len(pol.EnterIf) > 0 {
		fmt.Printf("  enter if (any):   %s\n", strings.Join(pol.EnterIf, ", "))
	}
	return nil
}

// --- simulate ---

var (
	simulateData   []string
	simulateTarget string
	simulateDB     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [playbook-id]",
	Short: "Simulate a conversation against a playbook",
	Long: `Simulate one round of a conversation: seed analysis data into a fresh
tier state, check a requested transition, run auto-escalation and list the
next-step offers the user could take.

Examples:
  adpilot simulate ads-optimizer --data cpl=50 --data targetCpl=30
  adpilot simulate ads-optimizer --data spend=0 --target drilldown
  adpilot simulate ads-optimizer --data cpl=50 --data targetCpl=30 --db state.db`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cat, err := catalog.NewFromDir(playbooksDir, nil, nil)
	if err != nil {
		return err
	}
	playbookID := args[0]
	if _, ok := cat.Playbook(playbookID); !ok {
		return fmt.Errorf("playbook %q not found in %s", playbookID, playbooksDir)
	}

	data, err := parseDataFlags(simulateData)
	if err != nil {
		return err
	}

	machine := tierstate.NewMachine(cat, nil, nil)
	st := machine.NewState(playbookID, nil)
	if len(data) > 0 {
		st = machine.SaveSnapshotData(st, data)
	}

	fmt.Printf("%s\n", boldStyle.Render(fmt.Sprintf("Simulating %s", playbookID)))
	fmt.Printf("  current tier: %s\n\n", st.CurrentTier)

	// Per-tier condition diagnostics
	for tier, results := range machine.EvaluateAllEnterConditions(st, data) {
		fmt.Printf("  conditions for %s:\n", tier)
		for name, held := range results {
			mark := failStyle.Render("✗")
			if held {
				mark = passStyle.Render("✓")
			}
			fmt.Printf("    %s %s\n", mark, name)
		}
	}

	if simulateTarget != "" {
		decision := machine.CanTransitionTo(st, simulateTarget, data)
		if decision.Allowed {
			fmt.Printf("\n  %s transition to %s: %s\n",
				passStyle.Render("✓"), simulateTarget, decision.Reason)
			st = machine.TransitionTo(st, simulateTarget, tierstate.TransitionContext{})
		} else {
			fmt.Printf("\n  %s transition to %s denied: %s\n",
				failStyle.Render("✗"), simulateTarget, decision.Reason)
		}
	}

	if esc := machine.CheckAutoEscalation(st, data); esc.ShouldEscalate {
		fmt.Printf("\n  %s auto-escalation to %s (%s)\n",
			passStyle.Render("↑"), esc.TargetTier, esc.Reason)
		st = machine.TransitionTo(st, esc.TargetTier, tierstate.TransitionContext{
			Reason:      "auto_escalation",
			TriggeredBy: esc.Reason,
		})
	}

	offers := machine.AvailableNextSteps(st, nil)
	if len(offers) > 0 {
		fmt.Println("\n  next steps:")
		for _, offer := range offers {
			fmt.Printf("    • %s → %s\n", offer.Label, offer.TargetTier)
		}
	} else {
		fmt.Printf("\n  %s\n", mutedStyle.Render("no next steps available"))
	}

	pol := machine.CurrentPolicy(st)
	fmt.Printf("\n  resulting tier: %s\n", boldStyle.Render(st.CurrentTier))
	fmt.Printf("  allowed tools:  %s\n", strings.Join(pol.AllowedTools, ", "))

	if simulateDB != "" {
		ctx := context.Background()
		db, err := sqlite.Open(ctx, simulateDB)
		if err != nil {
			return err
		}
		defer db.Close()

		conversationID := uuid.NewString()
		if err := store.SaveState(ctx, db, conversationID, st); err != nil {
			return fmt.Errorf("persist state: %w", err)
		}
		fmt.Printf("\n  state saved as conversation %s in %s\n", conversationID, simulateDB)
	}
	return nil
}

// parseDataFlags turns repeated key=value flags into typed analysis data.
// Values parse as bool, then number, then fall back to string.
func parseDataFlags(pairs []string) (map[string]any, error) {
	data := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --data %q: expected key=value", pair)
		}
		key, raw := parts[0], parts[1]
		switch {
		case raw == "true" || raw == "false":
			data[key] = raw == "true"
		default:
			if n, err := strconv.ParseFloat(raw, 64); err == nil {
				data[key] = n
			} else {
				data[key] = raw
			}
		}
	}
	return data, nil
}

func init() {
	simulateCmd.Flags().StringArrayVar(&simulateData, "data", nil, "Analysis data (key=value), repeatable")
	simulateCmd.Flags().StringVar(&simulateTarget, "target", "", "Tier transition to request (snapshot, drilldown, actions)")
	simulateCmd.Flags().StringVar(&simulateDB, "db", "", "SQLite database path to persist the resulting state")
}
