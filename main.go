package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"omc-erp/internal/auth"
	"omc-erp/internal/config"
	"omc-erp/internal/eventing"
	"omc-erp/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("omc-erp", flag.ContinueOnError)
	token := global.String("token", "", "JWT identifying the caller of transition commands")
	global.Usage = func() { usage(global) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		usage(global)
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", rest[0])
		usage(global)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = eventing.WithTenantID(ctx, cfg.TenantID)
	ctx = eventing.WithCorrelationID(ctx, uuid.NewString())
	if *token != "" {
		if cfg.Auth.JWTSecret == "" {
			logger.Error("token given but JWT_SECRET is not configured")
			return 1
		}
		ctx, err = auth.ContextFromToken(ctx, *token, []byte(cfg.Auth.JWTSecret))
		if err != nil {
			logger.Error("invalid token", zap.Error(err))
			return 1
		}
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer a.Close()
	a.serveMetrics(ctx)

	if err := cmd.run(ctx, a, rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		logger.Error("command failed", zap.String("command", rest[0]), zap.Error(err))
		return 1
	}
	return 0
}

const systemCallerNote = "without -token, commands run as the system caller and every permission check passes"

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "usage: %s [-token JWT] <command> [flags]\n\n%s\n\ncommands:\n", fs.Name(), systemCallerNote)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-20s %s\n", name, commands[name].summary)
	}
}
