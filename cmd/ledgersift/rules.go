package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ledgersift/ledgersift/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and manage classification rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List global rules and a user's rules in merged order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, _ := cmd.Flags().GetString("user")

			store, err := openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			global, err := store.LoadGlobalRules(ctx)
			if err != nil {
				return err
			}
			user, err := store.LoadUserRules(ctx, userID)
			if err != nil {
				return err
			}

			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
			dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

			fmt.Println(headerStyle.Render(fmt.Sprintf("Global rules (%d)", len(global))))
			printRules(global, dimStyle)

			fmt.Println(headerStyle.Render(fmt.Sprintf("Rules for %s (%d)", userID, len(user))))
			printRules(user, dimStyle)
			return nil
		},
	}
	cmd.Flags().StringP("user", "u", "default", "user whose rules to list")
	return cmd
}

func printRules(rules []model.Rule, dim lipgloss.Style) {
	if len(rules) == 0 {
		fmt.Println(dim.Render("  (none)"))
		return
	}
	for _, rule := range rules {
		state := ""
		if !rule.Active {
			state = dim.Render(" [inactive]")
		}
		fmt.Printf("  #%d p%d v%d %s %q on %s → %s (%s, %.2f)%s\n",
			rule.ID,
			rule.Priority,
			rule.Version,
			rule.Match.Type,
			rule.Match.Pattern,
			strings.Join(rule.Match.Fields, ","),
			rule.Label(),
			rule.Action.Category,
			rule.Confidence,
			state,
		)
	}
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user rule",
		Long: `Add a classification rule for a user. The rule is validated before it is
written: its category must exist in the taxonomy, regex patterns must
compile, and the (pattern, fields) identity must not collide with an
existing version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, _ := cmd.Flags().GetString("user")
			pattern, _ := cmd.Flags().GetString("pattern")
			category, _ := cmd.Flags().GetString("category")
			label, _ := cmd.Flags().GetString("label")
			matchType, _ := cmd.Flags().GetString("type")
			fields, _ := cmd.Flags().GetStringSlice("fields")
			flags, _ := cmd.Flags().GetStringSlice("flags")
			priority, _ := cmd.Flags().GetInt("priority")

			store, err := openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			rule := &model.Rule{
				OwnerUserID: userID,
				Scope:       model.ScopeUser,
				Provenance:  model.ProvenanceUser,
				Match: model.Match{
					Type:    model.MatchType(matchType),
					Pattern: pattern,
					Fields:  fields,
					Flags:   flags,
				},
				Action: model.Action{
					Label:    label,
					Category: category,
				},
				Priority:   priority,
				Version:    1,
				Confidence: 1.0,
				Active:     true,
			}

			if err := store.InsertRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to add rule: %w", err)
			}

			fmt.Printf("Added rule #%d: %s %q → %s\n", rule.ID, rule.Match.Type, pattern, rule.Label())
			return nil
		},
	}

	cmd.Flags().StringP("user", "u", "default", "rule owner")
	cmd.Flags().String("pattern", "", "match pattern (required)")
	cmd.Flags().String("category", "", "category to assign (required)")
	cmd.Flags().String("label", "", "merchant label to assign (defaults to category)")
	cmd.Flags().String("type", string(model.MatchSignature), "match type (exact, contains, regex, signature)")
	cmd.Flags().StringSlice("fields", []string{model.FieldMerchantSignature}, "transaction fields to match against")
	cmd.Flags().StringSlice("flags", nil, "regex flags (i, m)")
	cmd.Flags().Int("priority", 100, "rule priority (lower wins)")
	_ = cmd.MarkFlagRequired("pattern")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}
