// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command clauderond is the daemon: it owns the durable session store,
// every execution backend, the reconciler, the console layer, the
// interception proxy, and the three external interfaces (control-plane
// IPC socket, HTTP REST mirror, console socket).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/shepherdjerred/clauderon/internal/api"
	"github.com/shepherdjerred/clauderon/internal/backend"
	"github.com/shepherdjerred/clauderon/internal/backend/container"
	"github.com/shepherdjerred/clauderon/internal/backend/pod"
	"github.com/shepherdjerred/clauderon/internal/backend/sprite"
	"github.com/shepherdjerred/clauderon/internal/backend/tmux"
	"github.com/shepherdjerred/clauderon/internal/bus"
	"github.com/shepherdjerred/clauderon/internal/config"
	"github.com/shepherdjerred/clauderon/internal/console"
	"github.com/shepherdjerred/clauderon/internal/hooks"
	applogging "github.com/shepherdjerred/clauderon/internal/logging"
	"github.com/shepherdjerred/clauderon/internal/portalloc"
	"github.com/shepherdjerred/clauderon/internal/proxyca"
	"github.com/shepherdjerred/clauderon/internal/reconcile"
	"github.com/shepherdjerred/clauderon/internal/session"
	"github.com/shepherdjerred/clauderon/internal/store"
	"github.com/shepherdjerred/clauderon/internal/watcher"
	"github.com/shepherdjerred/clauderon/internal/worktree"
)

const version = "0.1.0"

func main() {
	var (
		configPath  string
		dataDir     string
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to HJSON config file (default: <data-dir>/config.hjson if present)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&dataDir, "data-dir", "", "Daemon data directory (default: ~/.clauderon)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if showVersion {
		fmt.Printf("clauderond %s\n", version)
		os.Exit(0)
	}

	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "clauderond: determine home dir: %v\n", err)
			os.Exit(1)
		}
		dataDir = filepath.Join(home, ".clauderon")
	}

	cfg, err := loadConfig(configPath, dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clauderond: %v\n", err)
		os.Exit(1)
	}
	if debug {
		cfg.Logging.Debug = true
	}
	applogging.Init(applogging.Config{Debug: cfg.Logging.Debug})

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("clauderond exited with error")
	}
}

func loadConfig(configPath, dataDir string) (config.Config, error) {
	if configPath == "" {
		candidate := filepath.Join(dataDir, "config.hjson")
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
		}
	}
	if configPath == "" {
		return config.Default(dataDir), nil
	}
	return config.Load(configPath, dataDir)
}

func run(cfg config.Config) error {
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	lockPath := filepath.Join(cfg.DataDir, "daemon.lock")
	lock, err := acquireLock(lockPath)
	if err != nil {
		return fmt.Errorf("clauderond: another daemon instance is already running: %w", err)
	}
	defer lock.Close()

	infoPath := filepath.Join(cfg.DataDir, "daemon.info")
	if err := os.WriteFile(infoPath, []byte(fmt.Sprintf("pid=%d\nversion=%s\n", os.Getpid(), version)), 0o644); err != nil {
		log.Warn().Err(err).Msg("failed to write daemon.info")
	}
	defer os.Remove(infoPath)

	st, err := store.Open(filepath.Join(cfg.DataDir, "db.sqlite"), cfg.WorktreeRoot)
	if err != nil {
		return fmt.Errorf("clauderond: open store: %w", err)
	}
	defer st.Close()

	ports := portalloc.New(cfg.Proxy.BasePort, cfg.Proxy.MaxPorts)
	restorePorts(st, ports)

	backends := map[string]backend.Backend{
		"tmux":      tmux.New("clauderon"),
		"container": container.New("ghcr.io/anthropics/claude-code-sandbox:latest", "clauderon"),
		"pod":       pod.New("clauderon", "ghcr.io/anthropics/claude-code-sandbox:latest", "clauderon"),
		"sprite":    sprite.New("clauderon", false),
	}

	worktrees := worktree.NewDriver(worktree.NewRealGitExecutor())
	eventBus := bus.New(bus.MemoryBusConfig{HistoryMaxEvents: 1000, HistoryMaxAge: 24 * time.Hour})
	sessions := session.NewManager(st, eventBus, worktrees, ports, backends, worktree.RealValidator{}, cfg.WorktreeRoot)
	reconciler := reconcile.New(st, sessions, worktrees, backends, nil)
	consoles := console.NewManager(backends)

	ca, err := proxyca.LoadOrGenerate(cfg.DataDir, time.Duration(cfg.Proxy.CAValidity), time.Duration(cfg.Proxy.LeafValidity))
	if err != nil {
		return fmt.Errorf("clauderond: load proxy CA: %w", err)
	}

	proxies, err := newProxyRegistry(ca, cfg.Proxy, st)
	if err != nil {
		return fmt.Errorf("clauderond: init proxy registry: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group, gctx := errgroup.WithContext(ctx)

	if err := proxies.subscribe(gctx, eventBus); err != nil {
		return fmt.Errorf("clauderond: subscribe proxy registry: %w", err)
	}

	group.Go(func() error {
		reconciler.Run(gctx, time.Duration(cfg.Reconcile.Interval))
		return nil
	})

	fsWatcher, err := watcher.NewControlFileWatcher(
		[]string{lockPath, infoPath, ca.CertPath(), ca.KeyPath()},
		500*time.Millisecond,
		func(path string) {
			log.Info().Str("path", path).Msg("daemon control file changed out of band")
		},
	)
	if err != nil {
		log.Warn().Err(err).Msg("failed to start control file watcher")
	} else {
		defer fsWatcher.Close()
	}

	if err := serveIPC(gctx, group, cfg, sessions, st, eventBus, reconciler); err != nil {
		return err
	}
	if err := serveHTTP(gctx, group, cfg, sessions, st, eventBus, reconciler); err != nil {
		return err
	}
	if err := serveConsoleSocket(gctx, group, cfg, consoles); err != nil {
		return err
	}
	if err := serveHooks(gctx, group, cfg, sessions, reconciler); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-gctx.Done():
	}
	cancel()

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func restorePorts(st *store.Store, ports *portalloc.Allocator) {
	sessions, err := st.ListSessions()
	if err != nil {
		log.Warn().Err(err).Msg("failed to list sessions for port restore")
		return
	}
	var snapshots []portalloc.Snapshot
	for _, s := range sessions {
		if s.ProxyPort != 0 {
			snapshots = append(snapshots, portalloc.Snapshot{Port: s.ProxyPort, SessionID: s.ID})
		}
	}
	if dropped := ports.Restore(snapshots); len(dropped) > 0 {
		log.Warn().Int("count", len(dropped)).Msg("dropped stale port snapshots outside allocator range")
	}
}

func serveIPC(ctx context.Context, group *errgroup.Group, cfg config.Config, sessions *session.Manager, st *store.Store, eventBus bus.Bus, reconciler *reconcile.Reconciler) error {
	if cfg.Sockets.Control == "" {
		return nil
	}
	ln, err := listenUnix(cfg.Sockets.Control)
	if err != nil {
		return fmt.Errorf("clauderond: listen control socket: %w", err)
	}
	srv := &api.IPCServer{
		Sessions:    sessions,
		RecentRepos: recentRepoAdapter{st},
		Bus:         eventBus,
		Reconcile:   reconcileReportFunc(reconciler),
		Log:         log.With().Str("component", "ipc").Logger(),
	}
	group.Go(func() error { return srv.Serve(ctx, ln) })
	return nil
}

func serveHTTP(ctx context.Context, group *errgroup.Group, cfg config.Config, sessions *session.Manager, st *store.Store, eventBus bus.Bus, reconciler *reconcile.Reconciler) error {
	if cfg.Sockets.HTTPAddr == "" {
		return nil
	}
	router := api.NewRouter(api.Dependencies{
		Sessions:    sessions,
		RecentRepos: recentRepoAdapter{st},
		Reconcile:   reconcileReportFunc(reconciler),
		Bus:         eventBus,
	})
	srv := &httpServer{addr: cfg.Sockets.HTTPAddr, handler: router}
	group.Go(func() error { return srv.run(ctx) })
	return nil
}

func serveConsoleSocket(ctx context.Context, group *errgroup.Group, cfg config.Config, consoles *console.Manager) error {
	if cfg.Sockets.Console == "" {
		return nil
	}
	ln, err := listenUnix(cfg.Sockets.Console)
	if err != nil {
		return fmt.Errorf("clauderond: listen console socket: %w", err)
	}
	srv := &api.ConsoleServer{Consoles: consoles}
	group.Go(func() error { return srv.Serve(ctx, ln) })
	return nil
}

func serveHooks(ctx context.Context, group *errgroup.Group, cfg config.Config, sessions *session.Manager, reconciler *reconcile.Reconciler) error {
	if cfg.Sockets.HooksHTTPAddr == "" {
		return nil
	}
	handler := hooks.NewHandler(sessions, reconciler, log.With().Str("component", "hooks").Logger())
	srv := &httpServer{addr: cfg.Sockets.HooksHTTPAddr, handler: handler}
	group.Go(func() error { return srv.run(ctx) })
	return nil
}

func reconcileReportFunc(r *reconcile.Reconciler) func() (*api.ReconcileReport, error) {
	return func() (*api.ReconcileReport, error) {
		report, err := r.ReconcileAll(context.Background())
		if err != nil {
			return nil, err
		}
		return &api.ReconcileReport{
			ObservationCount: len(report.Observations),
			OrphanCount:      len(report.Orphans),
			StartedAt:        report.StartedAt.Format(time.RFC3339),
			FinishedAt:       report.FinishedAt.Format(time.RFC3339),
		}, nil
	}
}

// recentRepoAdapter adapts *store.Store's RecentRepo shape to
// api.RecentRepo's, which intentionally doesn't import package store.
type recentRepoAdapter struct {
	st *store.Store
}

func (a recentRepoAdapter) ListRecentRepos(limit int) ([]api.RecentRepo, error) {
	repos, err := a.st.ListRecentRepos(limit)
	if err != nil {
		return nil, err
	}
	out := make([]api.RecentRepo, 0, len(repos))
	for _, r := range repos {
		out = append(out, api.RecentRepo{Path: r.RepoPath, LastUsed: r.LastUsedAt.Format(time.RFC3339)})
	}
	return out, nil
}

func listenUnix(path string) (net.Listener, error) {
	_ = os.Remove(path)
	return net.Listen("unix", path)
}
