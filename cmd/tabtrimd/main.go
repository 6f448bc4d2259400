package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/tabtrim/internal/api"
	"github.com/dgnsrekt/tabtrim/internal/browser"
	"github.com/dgnsrekt/tabtrim/internal/config"
	"github.com/dgnsrekt/tabtrim/internal/controller"
	"github.com/dgnsrekt/tabtrim/internal/netutil"
	"github.com/dgnsrekt/tabtrim/internal/notify"
	"github.com/dgnsrekt/tabtrim/internal/relay"
	"github.com/dgnsrekt/tabtrim/internal/rules"
	"github.com/dgnsrekt/tabtrim/internal/storage"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("tabtrimd config loaded",
		"cdp_url", cfg.GetCDPURL(),
		"backend", cfg.Backend,
		"bind_addr", cfg.BindAddr,
		"port_candidates", cfg.PortCandidates,
		"port_auto_fallback", cfg.PortAutoFallback,
		"rules_file", cfg.RulesFile,
		"same_window_only", cfg.SameWindowOnly,
		"protect_prefixes", cfg.ProtectPrefixes,
		"debounce_ms", cfg.DebounceMS,
		"history_dir", cfg.HistoryDir,
		"ntfy_enabled", cfg.NtfyURL != "",
		"launch_browser", cfg.LaunchBrowser,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ruleSet, err := rules.Load(cfg.RulesFile)
	if err == nil {
		ruleSet, err = rules.ApplyEnv(ruleSet, nil)
	}
	if err == nil {
		err = rules.Validate(ruleSet)
	}
	if err != nil {
		slog.Error("failed to load rules", "rules_file", cfg.RulesFile, "error", err)
		os.Exit(1)
	}
	slog.Info("rules loaded",
		"duplicates", ruleSet.Duplicates.IsActivated,
		"group", ruleSet.Group.IsActivated, "group_type", ruleSet.Group.Type,
		"host", ruleSet.Host.IsActivated, "max_tabs_allowed", ruleSet.Host.MaxTabsAllowed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress:  cfg.CDPAddress,
			CDPPort:     cfg.CDPPort,
			StartURL:    cfg.StartURL,
			ProfileDir:  cfg.ProfileDir,
			BrowserPath: cfg.BrowserPath,
			Headless:    cfg.Headless,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	tabs, err := controller.NewBrowser(cfg.Backend, cfg.GetCDPURL())
	if err != nil {
		slog.Error("failed to create browser backend", "error", err)
		os.Exit(1)
	}
	if err := tabs.Connect(ctx); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.GetCDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() { _ = tabs.Close() }()

	history := storage.NewHistory(cfg.HistoryDir, time.Now().UTC().Format("150405"), cfg.HistoryBuffer, cfg.HistoryMaxFileMB)
	defer func() {
		if err := history.Close(); err != nil {
			slog.Error("failed to close trim history", "error", err)
		}
	}()
	broker := relay.NewBroker()
	recorders := []controller.Recorder{history, relay.NewRecorder(broker)}
	if cfg.NtfyURL != "" {
		notifier := notify.NewNotifier(cfg.NtfyURL, nil)
		defer notifier.Close()
		recorders = append(recorders, notifier)
	}

	svc := controller.NewService(tabs, rules.NewStore(ruleSet), controller.Options{
		SameWindowOnly:  cfg.SameWindowOnly,
		ProtectPrefixes: cfg.ProtectPrefixes,
		Debounce:        time.Duration(cfg.DebounceMS) * time.Millisecond,
	}, recorders...)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	addr := ln.Addr().String()
	srv := &http.Server{Handler: api.NewServer(svc, broker), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("tabtrimd listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", "error", err)
			stop()
		}
	}()

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("tab watcher failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown failed", "error", err)
	}
	<-watchDone
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
