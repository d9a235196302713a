package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/councilgen/internal/cli"
	"github.com/timmy/councilgen/internal/logger"
)

func main() {
	opts := logger.OptionsFromEnv("councilgen-cli")
	opts.Output = os.Stderr
	logger.SetDefaultLogger(logger.New(opts))

	// Interrupts pause the run; it can be resumed with --resume.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	_ = logger.Close()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
