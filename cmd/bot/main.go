package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/romariotrain/catalog-bot/internal/app"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	code := app.Run("bot", logger, func(ctx context.Context) error {
		return run(ctx, logger)
	})
	os.Exit(code)
}
