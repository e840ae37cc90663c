package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/optiad/adpilot/pkg/catalog"
	"github.com/optiad/adpilot/pkg/schema"
)

var showCmd = &cobra.Command{
	Use:   "show [playbook-id]",
	Short: "Render a playbook's tiers, questions and offers",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	cat, err := catalog.NewFromDir(playbooksDir, nil, nil)
	if err != nil {
		return err
	}
	pb, ok := cat.Playbook(args[0])
	if !ok {
		return fmt.Errorf("playbook %q not found in %s", args[0], playbooksDir)
	}

	md := playbookMarkdown(pb)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		// No TTY styling available, print the raw markdown.
		fmt.Println(md)
		return nil
	}
	out, err := renderer.Render(md)
	if err != nil {
		fmt.Println(md)
		return nil
	}
	fmt.Print(out)
	return nil
}

// playbookMarkdown builds the human-readable summary rendered by show.
func playbookMarkdown(pb *schema.Playbook) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", pb.Name)
	if pb.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", pb.Description)
	}
	fmt.Fprintf(&b, "**ID:** `%s`  \n**Domain:** %s  \n**Intents:** %s\n\n",
		pb.ID, pb.Domain, strings.Join(pb.Intents, ", "))

	b.WriteString("## Tiers\n\n")
	for _, tier := range schema.TierOrder {
		tp := pb.Tier(tier)
		if tp == nil {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n", tier)
		fmt.Fprintf(&b, "- tools: %s\n", strings.Join(tp.AllowedTools, ", "))
		fmt.Fprintf(&b, "- max tool calls: %d\n", tp.MaxToolCalls)
		fmt.Fprintf(&b, "- dangerous policy: %s\n", tp.DangerousPolicy)
		if len(tp.EnterIf) > 0 {
			fmt.Fprintf(&b, "- enter if (any): %s\n", strings.Join(tp.EnterIf, ", "))
		}
		b.WriteString("\n")
	}

	if len(pb.ClarifyingQuestions) > 0 {
		b.WriteString("## Clarifying questions\n\n")
		for _, q := range pb.ClarifyingQuestions {
			cond := "always"
			if !q.AlwaysAsk && q.AskIf != "" {
				cond = q.AskIf
			}
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", q.Field, cond, q.Text)
		}
		b.WriteString("\n")
	}

	if len(pb.NextSteps) > 0 {
		b.WriteString("## Next steps\n\n")
		for _, ns := range pb.NextSteps {
			fmt.Fprintf(&b, "- **%s** → %s", ns.Label, ns.TargetTier)
			if ns.ShowIf != "" {
				fmt.Fprintf(&b, " (when `%s`)", ns.ShowIf)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(pb.EnterConditions) > 0 {
		b.WriteString("## Named conditions\n\n")
		for name, expression := range pb.EnterConditions {
			fmt.Fprintf(&b, "- `%s`: `%s`\n", name, expression)
		}
	}

	return b.String()
}
