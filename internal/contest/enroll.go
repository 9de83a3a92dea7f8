package contest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tradeclash/contest-engine/internal/models"
	"github.com/tradeclash/contest-engine/internal/payment"
)

// Clock returns the current time. Injected so enrollment is testable
// at fixed instants.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Enrollment handles contest entry: it charges the entry fee through
// the payment collaborator and records the participant.
type Enrollment struct {
	registry *Registry
	engine   *StatusEngine
	gateway  payment.Gateway
	clock    Clock
	logger   *logrus.Logger
}

// NewEnrollment creates the enrollment service. A nil clock falls back
// to the system clock.
func NewEnrollment(registry *Registry, engine *StatusEngine, gateway payment.Gateway, clock Clock, logger *logrus.Logger) *Enrollment {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Enrollment{
		registry: registry,
		engine:   engine,
		gateway:  gateway,
		clock:    clock,
		logger:   logger,
	}
}

// Enter joins a user into a contest. The contest must still be in its
// registration phase and below its participant limit; the entry fee
// must be approved by the gateway before the participant is recorded.
func (e *Enrollment) Enter(ctx context.Context, contestID, userID string) (*models.Participant, error) {
	def, err := e.registry.GetContest(contestID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	phase, err := e.engine.Phase(def, now)
	if err != nil {
		return nil, err
	}
	if phase != models.PhaseRegistration {
		return nil, ErrRegistrationClosed
	}

	participants, err := e.registry.Participants(contestID)
	if err != nil {
		return nil, err
	}
	if def.MaxParticipants > 0 && len(participants) >= def.MaxParticipants {
		return nil, ErrContestFull
	}

	result, err := e.gateway.AttemptCharge(ctx, userID, def.EntryFee)
	if err != nil {
		return nil, fmt.Errorf("failed to charge entry fee: %w", err)
	}
	if !result.Approved {
		e.logger.WithFields(logrus.Fields{
			"contest_id": contestID,
			"user_id":    userID,
			"reason":     result.Reason,
		}).Info("Entry payment declined")
		return nil, fmt.Errorf("%w: %s", ErrPaymentDeclined, result.Reason)
	}

	participant := &models.Participant{
		UserID:      userID,
		PortfolioID: uuid.NewString(),
		EnteredAt:   now,
		PaymentRef:  result.PaymentRef,
	}
	if err := e.registry.RecordParticipant(ctx, contestID, participant); err != nil {
		// The fee has been captured at this point; surface the conflict and
		// leave the refund to the payment reconciliation flow.
		e.logger.WithError(err).WithFields(logrus.Fields{
			"contest_id":  contestID,
			"user_id":     userID,
			"payment_ref": result.PaymentRef,
		}).Error("Charged entry fee but failed to record participant")
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"contest_id": contestID,
		"user_id":    userID,
	}).Info("Participant entered contest")
	return participant, nil
}
