package pricefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tradeclash/contest-engine/internal/models"
)

type mockValuer struct {
	mock.Mock
}

func (m *mockValuer) RefreshPrices(ctx context.Context, class models.AssetClass) (*RefreshResponse, error) {
	args := m.Called(ctx, class)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RefreshResponse), args.Error(1)
}

func (m *mockValuer) PortfolioValue(ctx context.Context, portfolioID string) (*PortfolioValueResponse, error) {
	args := m.Called(ctx, portfolioID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PortfolioValueResponse), args.Error(1)
}

func (m *mockValuer) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*HealthResponse), args.Error(1)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newServiceWithCache(t *testing.T, client valuer) (*Service, *RedisValueCache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cache := NewRedisValueCache(rdb, time.Minute)
	return &Service{client: client, cache: cache, logger: quietLogger()}, cache
}

func TestService_RefreshRecordsWatermark(t *testing.T) {
	client := new(mockValuer)
	svc, _ := newServiceWithCache(t, client)

	asOf := time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC)
	client.On("RefreshPrices", mock.Anything, models.AssetClassEquity).
		Return(&RefreshResponse{AssetClass: "equity", Symbols: 12, AsOf: asOf}, nil)

	require.NoError(t, svc.RefreshPrices(context.Background(), models.AssetClassEquity))
	assert.True(t, svc.LastRefreshed(context.Background(), models.AssetClassEquity).Equal(asOf))
}

func TestService_RefreshFailurePropagates(t *testing.T) {
	client := new(mockValuer)
	svc, _ := newServiceWithCache(t, client)

	client.On("RefreshPrices", mock.Anything, models.AssetClassEquity).
		Return(nil, errors.New("connection refused"))

	err := svc.RefreshPrices(context.Background(), models.AssetClassEquity)
	require.Error(t, err)
	assert.True(t, svc.LastRefreshed(context.Background(), models.AssetClassEquity).IsZero())
}

func TestService_PortfolioValueCachesRemoteResult(t *testing.T) {
	client := new(mockValuer)
	svc, cache := newServiceWithCache(t, client)

	value := decimal.RequireFromString("104250.75")
	client.On("PortfolioValue", mock.Anything, "p-1").
		Return(&PortfolioValueResponse{PortfolioID: "p-1", Value: value}, nil).Once()

	got, err := svc.PortfolioValue(context.Background(), "p-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(value))

	// Second lookup is served from the cache; the mock allows one call.
	got, err = svc.PortfolioValue(context.Background(), "p-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(value))
	client.AssertNumberOfCalls(t, "PortfolioValue", 1)
	assert.Equal(t, int64(1), cache.GetStats().Hits)
}

func TestService_PortfolioValueErrorPropagates(t *testing.T) {
	client := new(mockValuer)
	svc, _ := newServiceWithCache(t, client)

	client.On("PortfolioValue", mock.Anything, "p-1").Return(nil, errors.New("timeout"))

	_, err := svc.PortfolioValue(context.Background(), "p-1")
	assert.Error(t, err)
}

func TestService_NoCacheGoesStraightToRemote(t *testing.T) {
	client := new(mockValuer)
	svc := &Service{client: client, logger: quietLogger()}

	value := decimal.NewFromInt(99000)
	client.On("PortfolioValue", mock.Anything, "p-1").
		Return(&PortfolioValueResponse{PortfolioID: "p-1", Value: value}, nil)

	got, err := svc.PortfolioValue(context.Background(), "p-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(value))
	assert.True(t, svc.LastRefreshed(context.Background(), models.AssetClassEquity).IsZero())
}

func TestService_HealthCheck(t *testing.T) {
	client := new(mockValuer)
	svc := &Service{client: client, logger: quietLogger()}

	client.On("HealthCheck", mock.Anything).Return(&HealthResponse{Status: "degraded"}, nil).Once()
	assert.Error(t, svc.HealthCheck(context.Background()))

	client.On("HealthCheck", mock.Anything).Return(&HealthResponse{Status: "ok"}, nil).Once()
	assert.NoError(t, svc.HealthCheck(context.Background()))
}
