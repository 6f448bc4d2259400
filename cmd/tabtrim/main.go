package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/tabtrim/internal/config"
	"github.com/dgnsrekt/tabtrim/internal/controller"
	"github.com/dgnsrekt/tabtrim/internal/rules"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tabtrim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rulesFile := fs.String("rules", "", "YAML rules file (default: TABTRIM_RULES_FILE or built-in defaults)")
	tabID := fs.Int("tab", 0, "tab id to evaluate as the trigger (see -list)")
	all := fs.Bool("all", false, "evaluate every open tab, newest first")
	list := fs.Bool("list", false, "list open tabs and exit")
	dryRun := fs.Bool("dry-run", false, "print what would be closed without closing anything")
	verbose := fs.Bool("v", false, "debug logging to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	if !*list && !*all && *tabID == 0 {
		fmt.Fprintln(stderr, "tabtrim: one of -list, -all or -tab is required")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "tabtrim:", err)
		return 1
	}
	if *rulesFile == "" {
		*rulesFile = cfg.RulesFile
	}
	ruleSet, err := rules.Load(*rulesFile)
	if err == nil {
		ruleSet, err = rules.ApplyEnv(ruleSet, nil)
	}
	if err == nil {
		err = rules.Validate(ruleSet)
	}
	if err != nil {
		fmt.Fprintln(stderr, "tabtrim:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tabs, err := controller.NewBrowser(cfg.Backend, cfg.GetCDPURL())
	if err != nil {
		fmt.Fprintln(stderr, "tabtrim:", err)
		return 1
	}
	if err := tabs.Connect(ctx); err != nil {
		fmt.Fprintln(stderr, "tabtrim: connect:", err)
		return 1
	}
	defer func() { _ = tabs.Close() }()

	svc := controller.NewService(tabs, rules.NewStore(ruleSet), controller.Options{
		SameWindowOnly:  cfg.SameWindowOnly,
		ProtectPrefixes: cfg.ProtectPrefixes,
	})

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	var out any
	switch {
	case *list:
		out, err = svc.ListTabs(ctx)
	case *all:
		out, err = svc.TrimAll(ctx, *dryRun)
	default:
		out, err = svc.TrimTab(ctx, *tabID, *dryRun)
	}
	if encErr := enc.Encode(out); encErr != nil {
		fmt.Fprintln(stderr, "tabtrim: encode:", encErr)
		return 1
	}
	if err != nil {
		fmt.Fprintln(stderr, "tabtrim:", err)
		return 1
	}
	return 0
}
