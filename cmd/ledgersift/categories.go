package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage the category taxonomy",
	}

	cmd.AddCommand(categoriesListCmd())
	cmd.AddCommand(categoriesAddCmd())

	return cmd
}

func categoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			categories, err := store.GetCategories(ctx)
			if err != nil {
				return err
			}

			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
			dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

			fmt.Println(headerStyle.Render(fmt.Sprintf("Categories (%d)", len(categories))))
			for _, cat := range categories {
				desc := cat.Description
				if desc == "" {
					desc = dimStyle.Render("(no description)")
				}
				state := ""
				if !cat.IsActive {
					state = dimStyle.Render(" [inactive]")
				}
				fmt.Printf("  %-15s %s%s\n", cat.Name, desc, state)
			}
			return nil
		},
	}
}

func categoriesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category to the taxonomy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, _ := cmd.Flags().GetString("description")

			store, err := openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			cat, err := store.AddCategory(ctx, args[0], description)
			if err != nil {
				return err
			}

			fmt.Printf("Added category %q (#%d)\n", cat.Name, cat.ID)
			return nil
		},
	}
	cmd.Flags().StringP("description", "d", "", "category description")
	return cmd
}
