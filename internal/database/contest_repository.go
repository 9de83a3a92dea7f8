package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tradeclash/contest-engine/internal/models"
)

// DatabasePool is the pool surface the repository needs. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// ContestRepository persists contest definitions and participant
// entries. The in-memory registry is authoritative at runtime; this
// repository is its durable mirror and the rehydration source after a
// restart.
type ContestRepository struct {
	pool DatabasePool
}

// NewContestRepository creates a contest repository.
func NewContestRepository(pool DatabasePool) *ContestRepository {
	return &ContestRepository{pool: pool}
}

// SaveContest stores a contest definition. Replaying the same contest
// after a restart is a no-op.
func (r *ContestRepository) SaveContest(ctx context.Context, def *models.ContestDefinition) error {
	query := `
		INSERT INTO contests (
			id, asset_class, kind, registration_deadline, market_start, market_end,
			entry_fee, starting_capital, prize_pool, max_participants, settled, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		def.ID, def.AssetClass, def.Kind,
		def.RegistrationDeadline, def.MarketStart, def.MarketEnd,
		def.EntryFee, def.StartingCapital, def.PrizePool,
		def.MaxParticipants, def.Settled, def.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save contest %s: %w", def.ID, err)
	}
	return nil
}

// SaveParticipant stores one participant entry.
func (r *ContestRepository) SaveParticipant(ctx context.Context, contestID string, p *models.Participant) error {
	query := `
		INSERT INTO contest_participants (contest_id, user_id, portfolio_id, entered_at, payment_ref)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (contest_id, user_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query, contestID, p.UserID, p.PortfolioID, p.EnteredAt, p.PaymentRef)
	if err != nil {
		return fmt.Errorf("failed to save participant %s in contest %s: %w", p.UserID, contestID, err)
	}
	return nil
}

// MarkContestSettled flips the durable settled flag.
func (r *ContestRepository) MarkContestSettled(ctx context.Context, contestID string) error {
	query := `UPDATE contests SET settled = true WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, contestID)
	if err != nil {
		return fmt.Errorf("failed to mark contest %s settled: %w", contestID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contest %s not found", contestID)
	}
	return nil
}

// LoadOpenContests returns every unsettled contest, ordered by market
// start.
func (r *ContestRepository) LoadOpenContests(ctx context.Context) ([]models.ContestDefinition, error) {
	query := `
		SELECT id, asset_class, kind, registration_deadline, market_start, market_end,
		       entry_fee, starting_capital, prize_pool, max_participants, settled, created_at
		FROM contests
		WHERE settled = false
		ORDER BY market_start, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load open contests: %w", err)
	}
	defer rows.Close()

	var defs []models.ContestDefinition
	for rows.Next() {
		var def models.ContestDefinition
		if err := rows.Scan(
			&def.ID, &def.AssetClass, &def.Kind,
			&def.RegistrationDeadline, &def.MarketStart, &def.MarketEnd,
			&def.EntryFee, &def.StartingCapital, &def.PrizePool,
			&def.MaxParticipants, &def.Settled, &def.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan contest row: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contest rows: %w", err)
	}
	return defs, nil
}

// LoadParticipants returns a contest's participants in entry order.
func (r *ContestRepository) LoadParticipants(ctx context.Context, contestID string) ([]models.Participant, error) {
	query := `
		SELECT user_id, portfolio_id, entered_at, payment_ref
		FROM contest_participants
		WHERE contest_id = $1
		ORDER BY entered_at, user_id`

	rows, err := r.pool.Query(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants for contest %s: %w", contestID, err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.UserID, &p.PortfolioID, &p.EnteredAt, &p.PaymentRef); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}
	return participants, nil
}

// CountOpenContests reports how many unsettled contests are stored.
func (r *ContestRepository) CountOpenContests(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contests WHERE settled = false`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open contests: %w", err)
	}
	return count, nil
}
