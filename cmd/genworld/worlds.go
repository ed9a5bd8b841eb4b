package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/worldforge/server/internal/simulation"
)

const dbTimeout = 30 * time.Second

var simulateCmd = &cobra.Command{
	Use:   "simulate <world> <simulation>",
	Short: "Run one follow-up simulation on a stored world and save it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		sim, err := e.sims.Get(args[1])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		repo, err := e.openDB(ctx)
		if err != nil {
			return err
		}
		w, err := repo.Load(ctx, args[0])
		if err != nil {
			return err
		}
		if w == nil {
			return fmt.Errorf("no stored world %q", args[0])
		}
		if !sim.IsApplicable(w) {
			return fmt.Errorf("%s on %s: %w (applicable: %s)", args[1], w.Name,
				simulation.ErrNotApplicable, strings.Join(e.sims.Applicable(w), ", "))
		}
		if err := simulation.Run(w, sim, simulation.RandomSeed(), newLineSink(cmd.OutOrStdout())); err != nil {
			return err
		}

		saveCtx, saveCancel := context.WithTimeout(context.Background(), dbTimeout)
		defer saveCancel()
		if err := repo.Save(saveCtx, w); err != nil {
			return fmt.Errorf("save %s: %w", w.Name, err)
		}
		printWorld(cmd.OutOrStdout(), w, 0)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored worlds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		repo, err := e.openDB(ctx)
		if err != nil {
			return err
		}
		rows, err := repo.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSEED\tSIZE\tPLATES\tSTEP\tLAYERS\tUPDATED")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%d\t%dx%d\t%d\t%s\t%d\t%s\n",
				r.Name, r.Seed, r.Width, r.Height, r.NumPlates, r.Step, len(r.Layers), humanize.Time(r.UpdatedAt))
		}
		return tw.Flush()
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <world>",
	Short: "Remove a stored world",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		repo, err := e.openDB(ctx)
		if err != nil {
			return err
		}
		ok, err := repo.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no stored world %q", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var pointCmd = &cobra.Command{
	Use:   "point <world> <x> <y>",
	Short: "Print the readout of one cell of a stored world",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("x: %w", err)
		}
		y, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("y: %w", err)
		}
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		repo, err := e.openDB(ctx)
		if err != nil {
			return err
		}
		w, err := repo.Load(ctx, args[0])
		if err != nil {
			return err
		}
		if w == nil {
			return fmt.Errorf("no stored world %q", args[0])
		}
		ro, err := w.ReadoutAt(x, y)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ro.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd, listCmd, deleteCmd, pointCmd)
}
