package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"filebox/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

const exitInterrupted = 130

func main() {
	os.Exit(run())
}

// run executes the CLI; an interrupt cancels in-flight uploads and downloads
// through the command context.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if cfg.TrustedProjectConfigPath != "" {
		fmt.Fprintf(os.Stderr, "warning: using trusted project config from %s\n", cfg.TrustedProjectConfigPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = newRootCmd(cfg).ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "interrupted")
		return exitInterrupted
	}
	for _, line := range formatCLIError(err) {
		fmt.Fprintln(os.Stderr, line)
	}
	return 1
}
