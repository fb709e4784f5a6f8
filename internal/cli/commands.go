package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/salience/internal/client"
	"github.com/lazypower/salience/internal/config"
	"github.com/lazypower/salience/internal/engine"
	"github.com/lazypower/salience/internal/importer"
	"github.com/lazypower/salience/internal/store"
)

// openConfiguredDB opens the database named by cfg, falling back to the
// default path. It returns the resolved path for display.
func openConfiguredDB(cfg config.Config) (*store.DB, string, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, "", err
	}
	return db, dbPath, nil
}

// openDB is a helper that opens the database for CLI commands.
func openDB() (*store.DB, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, cfg, err
	}
	db, _, err := openConfiguredDB(cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("open db: %w", err)
	}
	return db, cfg, nil
}

// --- cycle command ---

var cycleCount int

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run allocation cycles against the local database",
	Long:  "Run one or more allocation cycles directly against the database. Do not use while a server owns the same database.",
	RunE:  runCycle,
}

func runCycle(cmd *cobra.Command, args []string) error {
	db, cfg, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	eng, err := newDriver(cfg, db)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var last *engine.CycleResult
	for i := 0; i < max(cycleCount, 1); i++ {
		if last, err = eng.RunCycle(ctx); err != nil {
			return fmt.Errorf("cycle %d: %w", i+1, err)
		}
	}
	printCycle(cmd.OutOrStdout(), last)
	return nil
}

func printCycle(w io.Writer, r *engine.CycleResult) {
	if r.Cycle.NodeCount == 0 {
		fmt.Fprintln(w, "No atoms stored; nothing to allocate.")
		return
	}
	fmt.Fprintf(w, "%s cycle over %d atoms, %d links (%dms)\n",
		r.Cycle.Mechanism, r.Cycle.NodeCount, r.Cycle.LinkCount, r.Cycle.DurationMs)
	fmt.Fprintf(w, "  total:       %s\n", humanize.FormatFloat("#,###.####", r.Stats.TotalAttention))
	fmt.Fprintf(w, "  average:     %.4f\n", r.Stats.AverageAttention)
	fmt.Fprintf(w, "  entropy:     %.4f\n", r.Stats.AttentionEntropy)
	fmt.Fprintf(w, "  utilization: %.2f%%\n", r.Stats.ResourceUtilization*100)
	fmt.Fprintf(w, "  gradient:    %.4f\n", r.GradientNorm)
	fmt.Fprintf(w, "  convergence: %.4f\n", r.Stats.ConvergenceRate)
}

// --- stats command ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show allocation statistics from the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New()
		s, err := c.Stats()
		if err != nil {
			return fmt.Errorf("fetch stats from %s: %w", c.URL(), err)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "mechanism:   %s (initialized: %v)\n", s.Mechanism, s.Initialized)
		fmt.Fprintf(w, "store:       %s atoms, %s links, %s cycles\n",
			humanize.Comma(int64(s.Atoms)), humanize.Comma(int64(s.Links)), humanize.Comma(int64(s.Cycles)))
		fmt.Fprintf(w, "total:       %s\n", humanize.FormatFloat("#,###.####", s.Stats.TotalAttention))
		fmt.Fprintf(w, "entropy:     %.4f\n", s.Stats.AttentionEntropy)
		fmt.Fprintf(w, "utilization: %.2f%%\n", s.Stats.ResourceUtilization*100)
		fmt.Fprintf(w, "economy:     rent %.4f, wages %.4f, diffused %.4f, scale %.4f\n",
			s.Economy.RentPool, s.Economy.WagesPaid, s.Economy.Diffused, s.Economy.ScaleFactor)
		return nil
	},
}

// --- flows command ---

var flowsLimit int

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Show recent attention flows from the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New()
		flows, err := c.Flows(flowsLimit)
		if err != nil {
			return fmt.Errorf("fetch flows from %s: %w", c.URL(), err)
		}
		w := cmd.OutOrStdout()
		if len(flows) == 0 {
			fmt.Fprintln(w, "No flows recorded.")
			return nil
		}
		for _, f := range flows {
			fmt.Fprintf(w, "#%d %s -> %s %.6f %s (%s)\n",
				f.Seq, f.SourceID, f.TargetID, f.Amount, f.Reason, humanize.Time(f.Timestamp))
		}
		return nil
	},
}

// --- import command ---

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import atoms and links from a JSONL file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	batch, err := importer.ParseFile(args[0])
	if err != nil {
		return err
	}

	db, _, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	sum, err := importer.Apply(db, batch.Records)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d atoms, %d links", sum.Atoms, sum.Links)
	if batch.Skipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), " (%d lines skipped)", batch.Skipped)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

// --- atoms command ---

var atomsLimit int

var atomsCmd = &cobra.Command{
	Use:   "atoms",
	Short: "List the atoms with the most attention",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		atoms, err := db.TopAtoms(atomsLimit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(atoms) == 0 {
			fmt.Fprintln(w, "No atoms stored.")
			return nil
		}
		for i, a := range atoms {
			fmt.Fprintf(w, "%d. %s  attention %.4f  truth (%.2f, %.2f, %.0f)  updated %s\n",
				i+1, a.ExternalID, a.Attention, a.Strength, a.Confidence, a.Count,
				humanize.Time(time.UnixMilli(a.UpdatedAt)))
		}
		return nil
	},
}

// --- similar command ---

var similarLimit int

var similarCmd = &cobra.Command{
	Use:   "similar <external-id>",
	Short: "Find atoms with similar embeddings, boosted by attention",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		results, err := engine.Similar(ctx, db, args[0], engine.SearchOpts{Limit: similarLimit})
		if err != nil {
			return fmt.Errorf("similar: %w", err)
		}
		w := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(w, "No results found.")
			return nil
		}
		for i, r := range results {
			fmt.Fprintf(w, "%d. [%.3f] %s (similarity %.3f, attention %.4f)\n",
				i+1, r.Score, r.Atom.ExternalID, r.Similarity, r.Atom.Attention)
		}
		return nil
	},
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the server is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New()
		if !c.Healthy() {
			fmt.Fprintf(os.Stderr, "salience server not reachable at %s\n", c.URL())
			return fmt.Errorf("server unavailable")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "salience server healthy at %s\n", c.URL())
		return nil
	},
}

func init() {
	cycleCmd.Flags().IntVarP(&cycleCount, "count", "n", 1, "Number of cycles to run")
	flowsCmd.Flags().IntVarP(&flowsLimit, "limit", "n", 20, "Maximum number of flows")
	atomsCmd.Flags().IntVarP(&atomsLimit, "limit", "n", 20, "Maximum number of atoms")
	similarCmd.Flags().IntVarP(&similarLimit, "limit", "n", 10, "Maximum number of results")
}
