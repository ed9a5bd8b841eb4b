package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/worldforge/server/internal/catalog"
	"github.com/worldforge/server/internal/config"
	"github.com/worldforge/server/internal/core/event"
	coresys "github.com/worldforge/server/internal/core/system"
	"github.com/worldforge/server/internal/data"
	"github.com/worldforge/server/internal/generation"
	"github.com/worldforge/server/internal/handler"
	"github.com/worldforge/server/internal/jobs"
	gonet "github.com/worldforge/server/internal/net"
	"github.com/worldforge/server/internal/net/packet"
	"github.com/worldforge/server/internal/persist"
	"github.com/worldforge/server/internal/platec"
	"github.com/worldforge/server/internal/scripting"
	"github.com/worldforge/server/internal/simulation"
	"github.com/worldforge/server/internal/system"
	"github.com/worldforge/server/internal/terrain"
	"github.com/worldforge/server/internal/watch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             worldforge  v0.1.0            \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      plate tectonics world generator      \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printSkip(msg string) {
	fmt.Printf("  \033[90m-\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("WORLDFORGE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Database (optional)
	printSection("database")

	var (
		worldStore catalog.Store
		saver      system.WorldSaver
		recorder   jobs.Recorder
	)
	if cfg.Database.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")

		worldRepo := persist.NewWorldRepo(db)
		worldStore = worldRepo
		saver = worldRepo
		recorder = persist.NewJobRepo(db)
	} else {
		printSkip("no dsn, worlds stay in memory")
	}
	fmt.Println()

	// 4. Data tables and scripting
	printSection("data")

	presets, err := data.LoadPresetTable(cfg.Data.PresetsPath)
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}
	printStat("presets", presets.Count())
	if presets.Get(cfg.Generation.DefaultPreset) == nil {
		return fmt.Errorf("default preset %q not in %s", cfg.Generation.DefaultPreset, cfg.Data.PresetsPath)
	}

	biomes, err := data.LoadBiomeTable(cfg.Data.BiomesPath)
	if err != nil {
		return fmt.Errorf("load biomes: %w", err)
	}
	printStat("biomes", biomes.Count())

	sims := simulation.NewRegistry(biomes)
	printStat("simulations", len(sims.Names()))

	luaEngine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer luaEngine.Close()
	printOK("lua hooks loaded")
	fmt.Println()

	// 5. Generation and jobs
	driver := generation.NewDriver(
		platec.Lithosphere{MaxIterations: cfg.Generation.MaxIterations},
		terrain.Finisher{Thresholds: luaEngine},
		log,
	)
	jobMgr := jobs.NewManager(driver, sims, cfg.Jobs, cfg.Generation.EventBuffer, recorder, log)

	cat, err := catalog.New(cfg.Cache.Worlds, worldStore, log)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	bus := event.NewBus()
	store := gonet.NewSessionStore()

	tickRate := cfg.Network.TickRate
	saveTicks := int(cfg.Cache.SaveInterval / tickRate)
	persistSys := system.NewPersistenceSystem(saver, cat, bus, cfg.Cache.AutoSave, saveTicks, log)

	// 6. Packet handlers and event subscribers
	pktReg := packet.NewRegistry(log)
	handler.RegisterAll(pktReg, &handler.Deps{
		Config:    cfg,
		Log:       log,
		Jobs:      jobMgr,
		Catalog:   cat,
		Presets:   presets,
		Sims:      sims,
		Scripting: luaEngine,
		Saves:     persistSys,
	})
	system.RegisterSubscribers(bus, store, cat, log)

	// 7. Network server
	opts := gonet.SessionOptions{
		InQueueSize:  cfg.Network.InQueueSize,
		OutQueueSize: cfg.Network.OutQueueSize,
		ReadTimeout:  cfg.Network.ReadTimeout,
		WriteTimeout: cfg.Network.WriteTimeout,
	}
	if cfg.RateLimit.Enabled {
		opts.PktPerSec = cfg.RateLimit.PacketsPerSecond
	}
	netServer, err := gonet.NewServer(
		cfg.Network.BindAddress,
		opts,
		handler.BuildInit(cfg.Server.Name, cfg.Server.StartTime),
		log,
	)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	// 8. Watch feed (optional)
	var (
		pub      system.Publisher
		hub      *watch.Hub
		watchSrv *watch.Server
	)
	if cfg.Watch.Enabled {
		hub = watch.NewHub(cfg.Watch.BufferSize, log)
		watchSrv, err = watch.Listen(cfg.Watch.BindAddress, cfg.Watch.Path, hub, log)
		if err != nil {
			netServer.Shutdown()
			return fmt.Errorf("watch server: %w", err)
		}
		go watchSrv.Serve()
		pub = hub
	}

	// 9. Systems
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(netServer, pktReg, store, jobMgr, bus, cfg.Network.MaxPacketsPerTick, log))
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(system.NewJobSystem(jobMgr.Events(), bus, pub, 0))
	runner.Register(system.NewOutputSystem(store))
	runner.Register(persistSys)

	// 10. Loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	printSection("ready")
	printReady(fmt.Sprintf("listening on %s", netServer.Addr().String()))
	if watchSrv != nil {
		printReady(fmt.Sprintf("watch feed on ws://%s%s", watchSrv.Addr().String(), cfg.Watch.Path))
	}
	printReady(fmt.Sprintf("loop running (tick: %s, %d systems)", tickRate, runner.Len()))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(tickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			netServer.Shutdown()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := jobMgr.Shutdown(ctx); err != nil {
				log.Warn("jobs still running at shutdown", zap.Error(err))
			}
			// Deliver the final job events so completed worlds reach the catalog.
			runner.Tick(tickRate)
			runner.Tick(tickRate)
			if n := persistSys.SaveAll(); n > 0 {
				log.Info("worlds saved at shutdown", zap.Int("count", n))
			}
			if watchSrv != nil {
				if err := watchSrv.Shutdown(ctx); err != nil {
					log.Warn("watch server shutdown", zap.Error(err))
				}
				hub.Close()
			}
			cancel()
			log.Info("server stopped")
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
