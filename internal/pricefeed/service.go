package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tradeclash/contest-engine/internal/models"
)

// valuer is the slice of Client the service depends on, split out so
// tests can stub the remote service.
type valuer interface {
	RefreshPrices(ctx context.Context, class models.AssetClass) (*RefreshResponse, error)
	PortfolioValue(ctx context.Context, portfolioID string) (*PortfolioValueResponse, error)
	HealthCheck(ctx context.Context) (*HealthResponse, error)
}

// Service fronts the price service with a Redis valuation cache. It
// provides the price refresh and portfolio valuation surface the
// settlement coordinator and the scheduler consume.
type Service struct {
	client valuer
	cache  *RedisValueCache
	logger *logrus.Logger
}

// NewService creates a price feed service. cache may be nil when Redis
// is disabled; every lookup then goes to the remote service.
func NewService(client *Client, cache *RedisValueCache, logger *logrus.Logger) *Service {
	return &Service{client: client, cache: cache, logger: logger}
}

// RefreshPrices triggers a snapshot refresh and records the refresh
// watermark on success.
func (s *Service) RefreshPrices(ctx context.Context, class models.AssetClass) error {
	resp, err := s.client.RefreshPrices(ctx, class)
	if err != nil {
		return fmt.Errorf("refresh %s prices: %w", class, err)
	}

	s.logger.WithFields(logrus.Fields{
		"asset_class": class,
		"symbols":     resp.Symbols,
		"as_of":       resp.AsOf.Format(time.RFC3339),
	}).Info("Prices refreshed")

	if s.cache != nil {
		s.cache.MarkRefreshed(ctx, class, resp.AsOf)
	}
	return nil
}

// PortfolioValue returns the marked value of a portfolio, preferring
// the cache and falling through to the remote service.
func (s *Service) PortfolioValue(ctx context.Context, portfolioID string) (decimal.Decimal, error) {
	if s.cache != nil {
		if value, ok := s.cache.GetValue(ctx, portfolioID); ok {
			return value, nil
		}
	}

	resp, err := s.client.PortfolioValue(ctx, portfolioID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("value portfolio %s: %w", portfolioID, err)
	}

	if s.cache != nil {
		s.cache.SetValue(ctx, portfolioID, resp.Value)
	}
	return resp.Value, nil
}

// LastRefreshed reports the most recent successful refresh for an
// asset class, or zero when unknown.
func (s *Service) LastRefreshed(ctx context.Context, class models.AssetClass) time.Time {
	if s.cache == nil {
		return time.Time{}
	}
	return s.cache.LastRefreshed(ctx, class)
}

// HealthCheck probes the remote price service.
func (s *Service) HealthCheck(ctx context.Context) error {
	resp, err := s.client.HealthCheck(ctx)
	if err != nil {
		return err
	}
	if resp.Status != "ok" && resp.Status != "healthy" {
		return fmt.Errorf("price service unhealthy: %s", resp.Status)
	}
	return nil
}
