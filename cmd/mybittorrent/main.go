package main

import (
	"context"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/mcheviron/bittorrent/cmd/mybittorrent/errs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{environ: os.Environ()}
	if err := a.rootCommand().ExecuteContext(ctx); err != nil {
		a.log().Error("Command failed", zap.Stringer("kind", errs.KindOf(err)), zap.Error(err))
		stop()
		os.Exit(1)
	}
}
