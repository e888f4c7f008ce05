package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/codefionn/discussd/internal/command"
	"github.com/codefionn/discussd/internal/config"
	"github.com/codefionn/discussd/internal/discussion"
	"github.com/codefionn/discussd/internal/gateway"
	"github.com/codefionn/discussd/internal/lockfile"
	"github.com/codefionn/discussd/internal/logger"
	"github.com/codefionn/discussd/internal/pidfile"
	"github.com/codefionn/discussd/internal/pprof"
	"github.com/codefionn/discussd/internal/relay"
	"github.com/codefionn/discussd/internal/session"
	"github.com/codefionn/discussd/internal/storage/memory"
	"github.com/codefionn/discussd/internal/storage/sqlite"
)

// backend is what the server needs from a store driver.
type backend interface {
	discussion.Store
	discussion.Watcher
	Close() error
}

type cliOptions struct {
	configPath string
	listen     string
	http       string
	db         string
	store      string
	logLevel   string
	cpuProfile string
	memProfile string
	// set holds the flags given on the command line.
	set map[string]bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	opts := &cliOptions{set: make(map[string]bool)}

	fs := flag.NewFlagSet("discussd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", config.GetConfigPath(), "Path to the JSON config file")
	fs.StringVar(&opts.listen, "listen", "", "TCP address of the line protocol listener")
	fs.StringVar(&opts.http, "http", "", "Address of the admin/WebSocket listener (empty string disables it)")
	fs.StringVar(&opts.db, "db", "", "Path to the SQLite database")
	fs.StringVar(&opts.store, "store", "", "Store driver: sqlite or memory")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error, none")
	fs.StringVar(&opts.cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")
	fs.StringVar(&opts.memProfile, "memprofile", "", "Write a heap profile to this file on exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	return opts, nil
}

// loadConfig layers the config file, the environment and the flags.
func loadConfig(opts *cliOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()

	if opts.set["listen"] {
		cfg.ListenAddr = opts.listen
	}
	if opts.set["http"] {
		cfg.HTTPAddr = opts.http
	}
	if opts.set["db"] {
		cfg.Store.Path = opts.db
	}
	if opts.set["store"] {
		cfg.Store.Driver = opts.store
	}
	if opts.set["log-level"] {
		cfg.LogLevel = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (backend, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.Store.Path, sqlite.Options{PollInterval: cfg.PollInterval()})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func run(args []string) (err error) {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Global().Close()
	log := logger.Global().WithPrefix("main")

	if cfg.Store.Driver == config.DriverSQLite {
		lock := lockfile.ForStore(cfg.Store.Path)
		if err := lock.TryAcquire(); err != nil {
			return fmt.Errorf("failed to lock %s: %w", cfg.Store.Path, err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.Warn("failed to release lock: %v", err)
			}
		}()
	}

	if cfg.PIDFile != "" {
		pid := pidfile.New(cfg.PIDFile)
		if err := pid.Write(); err != nil {
			return err
		}
		defer func() {
			if err := pid.Remove(); err != nil {
				log.Warn("%v", err)
			}
		}()
	}

	profiler := pprof.NewProfiler(pprof.Files{CPUProfile: opts.cpuProfile, HeapProfile: opts.memProfile})
	if err := profiler.Start(); err != nil {
		return err
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Warn("%v", err)
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Warn("failed to close store: %v", closeErr)
		}
	}()
	log.Info("store: %s (%s)", cfg.Store.Driver, cfg.Store.Path)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, store)
}

// serve wires the registry, dispatcher, gateway and relay around store and
// blocks until ctx is cancelled or one of them fails.
func serve(ctx context.Context, cfg *config.Config, store backend) error {
	log := logger.Global().WithPrefix("main")

	sessions := session.NewDirectory()
	dispatcher := command.NewDispatcher(nil, command.Deps{
		Sessions:    sessions,
		Discussions: store,
	})

	srv := gateway.NewServer(gateway.Options{
		Addr:           cfg.ListenAddr,
		MaxConnections: cfg.MaxConnections,
		MaxLineBytes:   cfg.MaxLineBytes,
		Client: gateway.ClientOptions{
			IdleTimeout:  cfg.IdleTimeout(),
			WriteTimeout: cfg.WriteTimeout(),
			SendBuffer:   cfg.SendBuffer,
			HistorySize:  cfg.HistorySize,
		},
	}, sessions, dispatcher)
	if err := srv.Listen(); err != nil {
		return err
	}

	var admin *gateway.AdminServer
	if cfg.HTTPAddr != "" {
		admin = gateway.NewAdminServer(srv)
		if cfg.EnablePprof {
			pprof.Register(admin.Router())
		}
		if err := admin.Listen(cfg.HTTPAddr); err != nil {
			srv.Stop()
			return err
		}
	}

	stream, err := store.Watch(ctx)
	if err != nil {
		srv.Stop()
		return fmt.Errorf("failed to open change stream: %w", err)
	}
	rel := relay.New(stream, sessions, srv.Hub())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	if admin != nil {
		g.Go(func() error {
			return admin.Serve(gctx)
		})
	}
	// A failed change stream ends notification delivery only; commands keep
	// being served.
	g.Go(func() error {
		if err := rel.Run(gctx); err != nil {
			log.Error("relay stopped, notifications are no longer delivered: %v", err)
		}
		return nil
	})

	log.Info("discussd ready on %s", srv.Addr())
	err = g.Wait()
	srv.Stop()
	if err != nil {
		return err
	}
	log.Info("shut down")
	return nil
}
