package contest

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/tradeclash/contest-engine/internal/models"
)

// Store is the optional persistence hook the registry mirrors writes to.
// Persistence mechanics live behind this boundary; the registry never
// reads through it.
type Store interface {
	SaveContest(ctx context.Context, def *models.ContestDefinition) error
	SaveParticipant(ctx context.Context, contestID string, p *models.Participant) error
	MarkContestSettled(ctx context.Context, contestID string) error
}

// contestState couples a definition with its participants inside one
// immutable snapshot entry.
type contestState struct {
	def          models.ContestDefinition
	participants []models.Participant
}

// view is an immutable snapshot of the registry. Readers load it with a
// single atomic operation and never observe a partial write.
type view struct {
	contests map[string]*contestState
}

// Registry owns the contest definitions, participant lists and settled
// flags. Writers (contest creation and the settlement coordinator) are
// serialized behind a mutex; readers get snapshot-consistent views via
// an atomic pointer swap and never block on a write.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[view]
	store   Store
	logger  *logrus.Logger
}

// NewRegistry creates an empty registry. store may be nil.
func NewRegistry(logger *logrus.Logger, store Store) *Registry {
	r := &Registry{
		store:  store,
		logger: logger,
	}
	r.current.Store(&view{contests: map[string]*contestState{}})
	return r
}

// CreateContest adds a new contest to the registry.
func (r *Registry) CreateContest(ctx context.Context, def *models.ContestDefinition) error {
	if err := ValidateDefinition(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	if _, exists := old.contests[def.ID]; exists {
		return ErrDuplicateContest
	}

	next := r.cloneLocked(old)
	next.contests[def.ID] = &contestState{def: *def}
	r.current.Store(next)

	if r.store != nil {
		if err := r.store.SaveContest(ctx, def); err != nil {
			r.logger.WithError(err).WithField("contest_id", def.ID).Warn("Failed to persist contest")
		}
	}

	r.logger.WithFields(logrus.Fields{
		"contest_id":  def.ID,
		"asset_class": def.AssetClass,
		"kind":        def.Kind,
	}).Info("Contest created")
	return nil
}

// Restore loads a persisted contest with its participants without
// writing back through the store. Used at startup to rehydrate from
// the database.
func (r *Registry) Restore(def *models.ContestDefinition, participants []models.Participant) error {
	if err := ValidateDefinition(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	if _, exists := old.contests[def.ID]; exists {
		return ErrDuplicateContest
	}

	next := r.cloneLocked(old)
	ps := make([]models.Participant, len(participants))
	copy(ps, participants)
	next.contests[def.ID] = &contestState{def: *def, participants: ps}
	r.current.Store(next)
	return nil
}

// GetContest returns a copy of the contest definition.
func (r *Registry) GetContest(id string) (*models.ContestDefinition, error) {
	state, ok := r.current.Load().contests[id]
	if !ok {
		return nil, ErrContestNotFound
	}
	def := state.def
	return &def, nil
}

// Participants returns a copy of the contest's participant list.
func (r *Registry) Participants(id string) ([]models.Participant, error) {
	state, ok := r.current.Load().contests[id]
	if !ok {
		return nil, ErrContestNotFound
	}
	out := make([]models.Participant, len(state.participants))
	copy(out, state.participants)
	return out, nil
}

// GetOpenContests returns every unsettled contest, ordered by market
// start for stable iteration.
func (r *Registry) GetOpenContests() []models.ContestDefinition {
	snapshot := r.current.Load()
	out := make([]models.ContestDefinition, 0, len(snapshot.contests))
	for _, state := range snapshot.contests {
		if !state.def.Settled {
			out = append(out, state.def)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketStart.Equal(out[j].MarketStart) {
			return out[i].ID < out[j].ID
		}
		return out[i].MarketStart.Before(out[j].MarketStart)
	})
	return out
}

// RecordParticipant appends a participant to a contest.
func (r *Registry) RecordParticipant(ctx context.Context, contestID string, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	state, ok := old.contests[contestID]
	if !ok {
		return ErrContestNotFound
	}
	for _, existing := range state.participants {
		if existing.UserID == p.UserID {
			return ErrDuplicateParticipant
		}
	}
	if state.def.MaxParticipants > 0 && len(state.participants) >= state.def.MaxParticipants {
		return ErrContestFull
	}

	next := r.cloneLocked(old)
	clone := next.contests[contestID]
	clone.participants = append(clone.participants, *p)
	r.current.Store(next)

	if r.store != nil {
		if err := r.store.SaveParticipant(ctx, contestID, p); err != nil {
			r.logger.WithError(err).WithField("contest_id", contestID).Warn("Failed to persist participant")
		}
	}
	return nil
}

// MarkSettled flips the settled flag for a contest.
func (r *Registry) MarkSettled(ctx context.Context, contestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	if _, ok := old.contests[contestID]; !ok {
		return ErrContestNotFound
	}

	next := r.cloneLocked(old)
	next.contests[contestID].def.Settled = true
	r.current.Store(next)

	if r.store != nil {
		if err := r.store.MarkContestSettled(ctx, contestID); err != nil {
			r.logger.WithError(err).WithField("contest_id", contestID).Warn("Failed to persist settled flag")
		}
	}
	return nil
}

// cloneLocked deep-copies the current view. Callers hold r.mu.
func (r *Registry) cloneLocked(old *view) *view {
	next := &view{contests: make(map[string]*contestState, len(old.contests)+1)}
	for id, state := range old.contests {
		participants := make([]models.Participant, len(state.participants))
		copy(participants, state.participants)
		next.contests[id] = &contestState{
			def:          state.def,
			participants: participants,
		}
	}
	return next
}
