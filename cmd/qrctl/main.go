package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atiera/qrlogin/internal/client/cli"
	"github.com/atiera/qrlogin/internal/client/config"
	"github.com/atiera/qrlogin/internal/flagx"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrctl: %v\n", err)
		os.Exit(1)
	}

	args := flagx.StripArgs(os.Args[1:], []string{"-a", "-t", "-s", "-c", "-config"})
	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "qrctl: %v\n", err)
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
