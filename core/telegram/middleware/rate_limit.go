package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/logger"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// MaxRequests inbound updates per user are allowed inside Window.
	MaxRequests int
	Window      time.Duration
	Exclude     map[string]struct{}
	OnLimited   tele.HandlerFunc
}

// SlidingWindow counts per-user request timestamps inside a rolling window.
type SlidingWindow struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[int64][]time.Time
	now         func() time.Time
}

// NewSlidingWindow builds a limiter allowing maxRequests per window per user.
func NewSlidingWindow(maxRequests int, window time.Duration) *SlidingWindow {
	if maxRequests <= 0 {
		maxRequests = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[int64][]time.Time),
		now:         time.Now,
	}
}

// IsLimited reports whether the user exceeded the window budget and, when
// not, records the current request against it.
func (s *SlidingWindow) IsLimited(userID int64) bool {
	now := s.now()
	cutoff := now.Add(-s.window)

	s.mu.Lock()
	defer s.mu.Unlock()

	recent := s.requests[userID][:0]
	for _, ts := range s.requests[userID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) >= s.maxRequests {
		s.requests[userID] = recent
		return true
	}
	s.requests[userID] = append(recent, now)
	return false
}

// remaining returns how many requests the user still has in the window.
func (s *SlidingWindow) remaining(userID int64) int {
	now := s.now()
	cutoff := now.Add(-s.window)

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, ts := range s.requests[userID] {
		if ts.After(cutoff) {
			count++
		}
	}
	if count > s.maxRequests {
		return 0
	}
	return s.maxRequests - count
}

// RateLimitMiddleware returns a middleware that enforces a sliding-window
// request budget per user before any handler state is touched.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	limiter := NewSlidingWindow(opts.MaxRequests, opts.Window)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}

			// Determine update kind and apply configured exclusions
			upd := c.Update()
			kind := "other"
			switch {
			case upd.Callback != nil:
				kind = "callback"
			case upd.Message != nil:
				kind = "message"
			case upd.Query != nil:
				kind = "inline_query"
			}
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}

			if limiter.IsLimited(user.ID) {
				chat := c.Chat()
				if chat != nil {
					logger.TG.Warn("rate limit",
						slog.String("event", "tg.rate_limit"),
						slog.Int64("chat_id", chat.ID),
						slog.Int64("user_id", user.ID),
					)
				} else {
					logger.TG.Warn("rate limit",
						slog.String("event", "tg.rate_limit"),
						slog.Int64("user_id", user.ID),
					)
				}
				if opts.OnLimited != nil {
					_ = opts.OnLimited(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
