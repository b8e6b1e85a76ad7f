package auth

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"scribeit/internal/logger"
)

// StartJanitor purges expired sessions on spec (standard cron or @every form)
// until ctx is done.
func (s *Service) StartJanitor(ctx context.Context, spec string) error {
	if spec == "" {
		spec = "@every 30m"
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.purgeOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule session janitor %q: %w", spec, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

func (s *Service) purgeOnce(ctx context.Context) {
	n, err := s.PurgeExpired(ctx)
	if err != nil {
		logger.Error(ctx, "purge expired sessions failed", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "expired sessions purged", logger.Fields{"count": n})
	}
}
