package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nicktill/kpiengine/pkg/config"
	"github.com/nicktill/kpiengine/pkg/engine"
	"github.com/nicktill/kpiengine/pkg/formula"
	"github.com/nicktill/kpiengine/pkg/kb/memory"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kpic",
		Short: "KPI formula compiler",
		Long: `kpic compiles KPI formulas from a TOML knowledge base without running the server.

Each table in the file is a KPI; each key in the table is a formula variant.
The first variant of a table is its most general one.

Examples:
  kpic compile availability --file kb.toml
  kpic compile availability --file kb.toml --variant up
  kpic list --file kb.toml
  kpic names "(working_time / (working_time + offline_time))"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newCompileCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newNamesCmd())
	return root
}

func newCompileCmd() *cobra.Command {
	var file, variant string

	cmd := &cobra.Command{
		Use:   "compile <kpi>",
		Short: "Compile a KPI and print its plan as JSON",
		Long: `Compile a KPI from the knowledge base file and print the resulting plan.

The KPI name falls back to the closest match when no exact entry exists.
Without --variant the most general formula is compiled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := memory.LoadFile(file)
			if err != nil {
				return fmt.Errorf("loading knowledge base: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), config.CompileTimeout)
			defer cancel()

			plan, err := engine.New(source).Prepare(ctx, args[0], variant)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Knowledge base TOML file")
	cmd.Flags().StringVar(&variant, "variant", "", "Formula variant to compile (default: most general)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newListCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List KPIs and their formula variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := memory.LoadFile(file)
			if err != nil {
				return fmt.Errorf("loading knowledge base: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, name := range source.Names() {
				set, err := source.Lookup(cmd.Context(), name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-24s %s\n", name, strings.Join(set.Keys(), ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Knowledge base TOML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newNamesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "names <expression>",
		Short: "Print the variable names referenced by an expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range formula.ExtractNames(args[0]) {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}
