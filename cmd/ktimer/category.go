package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goodtune/ktimer/internal/timer"
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage categories and act on all timers in one",
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories with timer counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			for _, name := range s.store.Categories() {
				_, _ = fmt.Fprintf(os.Stdout, "%-20s %d\n", name, len(s.store.TimersInCategory(name)))
			}
			return nil
		})
	},
}

var categoryAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			added, err := s.controller.AddCategory(args[0])
			if err != nil {
				return err
			}
			if !added {
				_, _ = fmt.Fprintf(os.Stdout, "Category %s already exists\n", args[0])
				return nil
			}
			_, _ = color.New(color.FgGreen).Fprintf(os.Stdout, "Added category %s\n", args[0])
			return nil
		})
	},
}

var bulkCmd = &cobra.Command{
	Use:     "bulk CATEGORY ACTION",
	Short:   "Apply start, pause or reset to every timer in a category",
	Example: `  ktimer bulk Work pause`,
	Args:    cobra.ExactArgs(2),
	RunE:    runBulk,
}

func init() {
	categoryCmd.AddCommand(categoryListCmd, categoryAddCmd)
	rootCmd.AddCommand(categoryCmd, bulkCmd)
}

func runBulk(cmd *cobra.Command, args []string) error {
	action, err := timer.ParseAction(args[1])
	if err != nil {
		return err
	}

	return withSession(func(s *session) error {
		res, err := s.controller.ApplyCategory(args[0], action)
		if err != nil {
			return err
		}
		if res.Matched == 0 {
			_, _ = color.New(color.FgYellow).Fprintf(os.Stdout, "No timers in %s\n", args[0])
			return nil
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s: %s applied to %d of %d timers\n", res.Category, res.Action, res.Applied, res.Matched)
		return nil
	})
}
