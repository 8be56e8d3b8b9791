package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ttrpg-tracker/internal/cli"
	"ttrpg-tracker/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		// a second interrupt kills the process
		stop()
	}()

	app := cli.NewApp(config.LoadClient(), os.Stdin, os.Stdout, os.Stderr)
	code := app.Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
