package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass identifies the market a contest trades in
type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassCrypto AssetClass = "crypto"
)

// Valid reports whether the asset class is one of the supported values
func (a AssetClass) Valid() bool {
	return a == AssetClassEquity || a == AssetClassCrypto
}

// ContestKind identifies the duration template of a contest
type ContestKind string

const (
	ContestKindDaily   ContestKind = "daily"
	ContestKindWeekly  ContestKind = "weekly"
	ContestKindMonthly ContestKind = "monthly"
)

// ContestPhase is the derived lifecycle state of a contest.
// It is never stored as authoritative state; it is always recomputed
// from the contest definition and the current time.
type ContestPhase string

const (
	PhaseRegistration       ContestPhase = "registration"
	PhasePortfolioSelection ContestPhase = "portfolio_selection"
	PhaseLive               ContestPhase = "live"
	// PhaseSuspended is reported for an equity contest whose nominal live
	// window falls on a day the underlying market never opened. Settlement
	// is deferred while a contest is suspended.
	PhaseSuspended ContestPhase = "suspended"
	PhaseCompleted ContestPhase = "completed"
)

// ContestDefinition describes a single time-boxed trading contest.
// Immutable once created, except for the participant list and the
// settled flag which flips at settlement.
type ContestDefinition struct {
	ID                   string          `json:"id" db:"id"`
	AssetClass           AssetClass      `json:"asset_class" db:"asset_class"`
	Kind                 ContestKind     `json:"kind" db:"kind"`
	RegistrationDeadline time.Time       `json:"registration_deadline" db:"registration_deadline"`
	MarketStart          time.Time       `json:"market_start" db:"market_start"`
	MarketEnd            time.Time       `json:"market_end" db:"market_end"`
	EntryFee             decimal.Decimal `json:"entry_fee" db:"entry_fee"`
	StartingCapital      decimal.Decimal `json:"starting_capital" db:"starting_capital"`
	PrizePool            decimal.Decimal `json:"prize_pool" db:"prize_pool"`
	MaxParticipants      int             `json:"max_participants" db:"max_participants"`
	Settled              bool            `json:"settled" db:"settled"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
}

// Participant represents a user's entry into a contest
type Participant struct {
	UserID      string          `json:"user_id" db:"user_id"`
	PortfolioID string          `json:"portfolio_id" db:"portfolio_id"`
	EnteredAt   time.Time       `json:"entered_at" db:"entered_at"`
	PaymentRef  string          `json:"payment_ref" db:"payment_ref"`
	FinalValue  decimal.Decimal `json:"final_value" db:"final_value"`
}

// PrizeEntry is a single rank's share of a contest prize pool
type PrizeEntry struct {
	Rank       int             `json:"rank"`
	Percentage int64           `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

// PayoutInstruction is the instruction emitted for one awarded rank
type PayoutInstruction struct {
	ContestID string          `json:"contest_id"`
	UserID    string          `json:"user_id"`
	Rank      int             `json:"rank"`
	Amount    decimal.Decimal `json:"amount"`
}

// RankedParticipant is a participant with its settled rank and value
type RankedParticipant struct {
	Participant
	Rank int `json:"rank"`
}

// SettlementResult is the outcome of settling a single contest.
// Results are deterministic: settling the same contest twice yields
// the same result.
type SettlementResult struct {
	ContestID string              `json:"contest_id"`
	SettledAt time.Time           `json:"settled_at"`
	Degraded  bool                `json:"degraded"`
	Rankings  []RankedParticipant `json:"rankings"`
	Awards    []PayoutInstruction `json:"awards"`
}
