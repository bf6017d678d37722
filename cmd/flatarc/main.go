package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcdonaldj/flatarc/internal/cli"
)

// version is set via ldflags at build time: -ldflags "-X main.version=x.y.z"
var version = "dev"

func main() {
	// An interrupt cancels the running operation between records; compaction
	// removes its temp file on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cli.New(version)
	c.RunContext(ctx)
}
