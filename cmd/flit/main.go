package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/scbrown/flit/internal/cli"
	"github.com/scbrown/flit/internal/model"
)

func main() {
	// Capture the original working directory before anything can change it.
	startup, err := model.Capture(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitFailure)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = cli.Execute(ctx, startup)
	stop()
	cli.HandleExitError(err)
}
