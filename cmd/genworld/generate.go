package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/worldforge/server/internal/generation"
	"github.com/worldforge/server/internal/platec"
	"github.com/worldforge/server/internal/terrain"
	"github.com/worldforge/server/internal/world"
)

var (
	genPreset string
	genSeed   int64
	genName   string
	genWidth  int
	genHeight int
	genPlates int
	genStep   string
	genSave   bool
	genQuiet  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the plate simulation and finishing passes for one world",
	Long: `Run the plate simulation and finishing passes for one world.
Sizes, plate count and step fall back to the preset. With --save the
finished world is written to the configured database.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	f := generateCmd.Flags()
	f.StringVarP(&genPreset, "preset", "p", "", "preset name (default from config)")
	f.Int64VarP(&genSeed, "seed", "s", -1, "seed, negative picks one")
	f.StringVarP(&genName, "name", "n", "", "world name (default from the seed)")
	f.IntVarP(&genWidth, "width", "W", 0, "width in cells")
	f.IntVarP(&genHeight, "height", "H", 0, "height in cells")
	f.IntVar(&genPlates, "plates", 0, "number of plates")
	f.StringVar(&genStep, "step", "", "plates, precipitations or full")
	f.BoolVar(&genSave, "save", false, "store the world in the database")
	f.BoolVarP(&genQuiet, "quiet", "q", false, "only print the summary")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if genPreset == "" {
		genPreset = e.cfg.Generation.DefaultPreset
	}
	preset, err := e.presets.Lookup(genPreset)
	if err != nil {
		return err
	}
	seed := resolveSeed(genSeed)
	name := genName
	if name == "" && e.lua.HasHook("world_name") {
		name = e.lua.WorldName(seed)
	}

	req := preset.Request(seed, name)
	if genWidth > 0 {
		req.Width = genWidth
	}
	if genHeight > 0 {
		req.Height = genHeight
	}
	if genPlates > 0 {
		req.NumPlates = genPlates
	}
	step, err := preset.TargetStep()
	if genStep != "" {
		step, err = world.StepByName(genStep)
	}
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink generation.Sink = generation.NopSink{}
	if !genQuiet {
		sink = newLineSink(cmd.OutOrStdout())
	}
	driver := generation.NewDriver(
		platec.Lithosphere{MaxIterations: e.cfg.Generation.MaxIterations},
		terrain.Finisher{Thresholds: e.lua},
		e.log,
	)
	res := driver.Run(ctx, req, sink)
	switch res.Outcome {
	case generation.Cancelled:
		return fmt.Errorf("generation cancelled after %d steps", res.Steps)
	case generation.Failed:
		return fmt.Errorf("generation failed: %w", res.Err)
	}
	w := res.World

	if step.Name != world.StepPlates.Name {
		if err := e.sims.RunChain(w, step, nil, sink); err != nil {
			return fmt.Errorf("simulations: %w", err)
		}
	}
	printWorld(cmd.OutOrStdout(), w, res.Steps)

	if genSave {
		repo, err := e.openDB(ctx)
		if err != nil {
			return err
		}
		if err := repo.Save(ctx, w); err != nil {
			return fmt.Errorf("save %s: %w", w.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", w.Name)
	}
	return nil
}

// resolveSeed keeps a given seed and draws one for a negative flag.
func resolveSeed(flag int64) int64 {
	if flag < 0 {
		return generation.RandomSeed()
	}
	return flag
}

func printWorld(out io.Writer, w *world.World, steps int) {
	fmt.Fprintf(out, "world   %s\n", w.Name)
	fmt.Fprintf(out, "seed    %d\n", w.Seed)
	fmt.Fprintf(out, "size    %s (%s cells)\n", w.Size, humanize.Comma(int64(w.Size.Cells())))
	if steps > 0 {
		fmt.Fprintf(out, "steps   %d\n", steps)
	}
	fmt.Fprintf(out, "levels  sea %.2f, ocean %.2f\n", w.Params.SeaLevel, w.Params.OceanLevel)
	fmt.Fprintf(out, "layers  %s\n", strings.Join(w.Layers(), ", "))
	if w.HasOcean() {
		land := 0
		for y := 0; y < w.Height(); y++ {
			for x := 0; x < w.Width(); x++ {
				if w.IsLand(x, y) {
					land++
				}
			}
		}
		fmt.Fprintf(out, "land    %.1f%%\n", 100*float64(land)/float64(w.Size.Cells()))
	}
}
