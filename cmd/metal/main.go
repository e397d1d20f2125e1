// Package main is the entry point for the metal CLI.
//
// metal runs the Hetzner cluster lifecycle workflows: connecting cloud
// projects, provisioning tenant clusters through cluster-api and tearing
// them down again. It is normally invoked by the platform's task system,
// one workflow per process.
//
// For detailed usage information, run:
//
//	metal --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/metal/cmd/metal/commands"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
