package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyike/CortexDesk/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	code := cli.ExitCode(ctx, err)
	stop()
	os.Exit(code)
}
