package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/babababa22003300kaka-bot/eafc232cons/core/config"
	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the shared middleware chain for bots.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited func(tele.Context) error) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if cfg != nil && cfg.RateLimit.MaxRequests > 0 {
		ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, t := range cfg.RateLimit.ExcludeUpdates {
			ex[strings.ToLower(t)] = struct{}{}
		}
		opts := middleware.RateLimitOptions{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
			Exclude:     ex,
		}
		if onLimited != nil {
			opts.OnLimited = onLimited
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use:  middleware.RateLimitMiddleware(opts),
		})
	}

	mws = append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	)

	return mws
}
