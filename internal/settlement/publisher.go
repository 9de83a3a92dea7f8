package settlement

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tradeclash/contest-engine/internal/models"
)

// LoggingPublisher logs payout instructions. It is the default
// publisher when no downstream payout channel is configured.
type LoggingPublisher struct {
	logger *logrus.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *logrus.Logger) *LoggingPublisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LoggingPublisher{logger: logger}
}

// PublishPayouts logs one line per awarded rank.
func (p *LoggingPublisher) PublishPayouts(ctx context.Context, def *models.ContestDefinition, result *models.SettlementResult) error {
	_ = ctx
	for _, award := range result.Awards {
		p.logger.WithFields(logrus.Fields{
			"contest_id": award.ContestID,
			"user_id":    award.UserID,
			"rank":       award.Rank,
			"amount":     award.Amount.String(),
			"degraded":   result.Degraded,
		}).Info("Payout instruction")
	}
	return nil
}
