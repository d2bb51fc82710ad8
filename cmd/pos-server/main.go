// Command pos-server serves register carts, checkout and refunds.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	server "github.com/xenking/pos-pricing/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := server.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		lg.Info("Starting register API",
			zap.Bool("redis", cfg.RedisURL != ""),
			zap.Duration("session_ttl", cfg.SessionTTL),
			zap.Duration("refund_window", cfg.Refund.Window),
			zap.Bool("buy_unit_discount", cfg.Pricing.BuyUnitDiscount),
		)
		return server.Run(ctx, lg, m, cfg)
	})
}
