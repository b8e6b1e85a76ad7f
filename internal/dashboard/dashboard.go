package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"scribeit/internal/backend"
	"scribeit/internal/logger"
	"scribeit/internal/models"
	"scribeit/internal/redis"
)

const (
	usageCachePrefix = "dashboard:usage:"
	usageCacheTTL    = 30 * time.Second
)

// Source is the part of the backend the dashboard reads.
type Source interface {
	ListSummaries(ctx context.Context, cred backend.Credential) ([]models.SummaryListItem, error)
	Usage(ctx context.Context, cred backend.Credential) (*models.Usage, error)
}

// Overview is everything the dashboard page shows.
type Overview struct {
	Summaries   []models.SummaryListItem `json:"summaries"`
	Usage       models.Usage             `json:"usage"`
	PercentUsed int                      `json:"percent_used"`
}

type Service struct {
	source Source
	cache  *redis.Client
}

// NewService builds the dashboard loader. cache may be nil.
func NewService(source Source, cache *redis.Client) *Service {
	return &Service{source: source, cache: cache}
}

// Load fetches the listing and the quota in parallel. Either failure fails the load.
func (s *Service) Load(ctx context.Context, owner string, cred backend.Credential) (*Overview, error) {
	if !cred.Valid() {
		return nil, backend.ErrNoCredential
	}
	var (
		items []models.SummaryListItem
		usage *models.Usage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.source.ListSummaries(gctx, cred)
		return err
	})
	g.Go(func() error {
		var err error
		usage, err = s.usage(gctx, owner, cred)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load dashboard: %w", err)
	}
	return &Overview{Summaries: items, Usage: *usage, PercentUsed: usage.PercentUsed()}, nil
}

// InvalidateUsage drops the cached quota, e.g. after a new submission.
func (s *Service) InvalidateUsage(ctx context.Context, owner string) {
	if !s.cache.Enabled() || owner == "" {
		return
	}
	if err := s.cache.Del(ctx, usageCachePrefix+owner); err != nil {
		logger.Warn(ctx, "invalidate usage cache failed", logger.Fields{"error": err.Error()})
	}
}

func (s *Service) usage(ctx context.Context, owner string, cred backend.Credential) (*models.Usage, error) {
	if s.cache.Enabled() && owner != "" {
		var cached models.Usage
		err := s.cache.GetJSON(ctx, usageCachePrefix+owner, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			logger.Warn(ctx, "read usage cache failed", logger.Fields{"error": err.Error()})
		}
	}
	usage, err := s.source.Usage(ctx, cred)
	if err != nil {
		return nil, err
	}
	if s.cache.Enabled() && owner != "" {
		if err := s.cache.SetJSON(ctx, usageCachePrefix+owner, usage, usageCacheTTL); err != nil {
			logger.Warn(ctx, "write usage cache failed", logger.Fields{"error": err.Error()})
		}
	}
	return usage, nil
}
