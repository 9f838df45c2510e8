package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggonzalez94/defi-intents/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := app.NewRunner().WithContext(ctx).Run(os.Args[1:])
	stop()
	os.Exit(code)
}
