// Command genworld runs world generation from the command line, against the
// same config, data tables and database the server uses.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/worldforge/server/internal/config"
	"github.com/worldforge/server/internal/data"
	"github.com/worldforge/server/internal/persist"
	"github.com/worldforge/server/internal/scripting"
	"github.com/worldforge/server/internal/simulation"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "genworld",
	Short:         "Generate and inspect plate tectonics worlds",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defPath := "config/server.toml"
	if p := os.Getenv("WORLDFORGE_CONFIG"); p != "" {
		defPath = p
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defPath, "server config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "genworld: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand loads before doing its work.
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	presets *data.PresetTable
	sims    *simulation.Registry
	lua     *scripting.Engine
	db      *persist.DB // nil unless openDB was called
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	zapCfg.DisableCaller = true
	zapCfg.DisableStacktrace = true
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	log, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	presets, err := data.LoadPresetTable(cfg.Data.PresetsPath)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	biomes, err := data.LoadBiomeTable(cfg.Data.BiomesPath)
	if err != nil {
		return nil, fmt.Errorf("load biomes: %w", err)
	}
	engine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
	if err != nil {
		return nil, fmt.Errorf("scripting: %w", err)
	}
	return &env{
		cfg:     cfg,
		log:     log,
		presets: presets,
		sims:    simulation.NewRegistry(biomes),
		lua:     engine,
	}, nil
}

func (e *env) openDB(ctx context.Context) (*persist.WorldRepo, error) {
	if e.cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is empty in %s", configPath)
	}
	db, err := persist.NewDB(ctx, e.cfg.Database, e.log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := persist.RunMigrations(ctx, db.Pool, e.log); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	e.db = db
	return persist.NewWorldRepo(db), nil
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
	e.lua.Close()
	_ = e.log.Sync()
}
