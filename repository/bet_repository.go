package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"betmates/database"
	"betmates/models"
	"betmates/service"

	"github.com/jackc/pgx/v5"
)

// BetRepository implements bet data access
type BetRepository struct {
	q queryable
}

// NewBetRepository creates a new bet repository
func NewBetRepository(db *database.DB) *BetRepository {
	return &BetRepository{q: db.Pool}
}

// newBetRepositoryWithTx creates a new bet repository with a transaction
func newBetRepositoryWithTx(tx queryable) *BetRepository {
	return &BetRepository{q: tx}
}

const betColumns = `
	id, creator_id, participant_ids, type, stake_money, stake_text,
	description, group_id, status, confirmations, double_proposal, voting,
	individual_participants, deadline, winner_id, version,
	created_at, updated_at, resolved_at
`

// Create persists a new bet record and assigns its ID
func (r *BetRepository) Create(ctx context.Context, bet *models.Bet) error {
	confirmationsJSON, doubleJSON, votingJSON, err := marshalBetState(bet)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO bets
			(creator_id, participant_ids, type, stake_money, stake_text,
			 description, group_id, status, confirmations, double_proposal,
			 voting, individual_participants, deadline, winner_id, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, version, created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		bet.CreatorID,
		bet.ParticipantIDs,
		bet.Type,
		bet.StakeMoney,
		bet.StakeText,
		bet.Description,
		bet.GroupID,
		bet.Status,
		confirmationsJSON,
		doubleJSON,
		votingJSON,
		bet.IndividualParticipants,
		bet.Deadline,
		bet.WinnerID,
		bet.ResolvedAt,
	).Scan(&bet.ID, &bet.Version, &bet.CreatedAt, &bet.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create bet: %w", err)
	}

	return nil
}

// GetByID retrieves a bet by its ID. Returns nil when the bet does not exist.
func (r *BetRepository) GetByID(ctx context.Context, id int64) (*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate retrieves a bet and locks its row for the duration of the
// surrounding transaction
func (r *BetRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// Update persists a mutated bet. The write compares and bumps the version
// counter and fails with ErrConcurrentUpdate when the row moved underneath
// the caller.
func (r *BetRepository) Update(ctx context.Context, bet *models.Bet) error {
	confirmationsJSON, doubleJSON, votingJSON, err := marshalBetState(bet)
	if err != nil {
		return err
	}

	query := `
		UPDATE bets
		SET participant_ids = $1,
			stake_money = $2,
			status = $3,
			confirmations = $4,
			double_proposal = $5,
			voting = $6,
			deadline = $7,
			winner_id = $8,
			resolved_at = $9,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $10 AND version = $11
		RETURNING version, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		bet.ParticipantIDs,
		bet.StakeMoney,
		bet.Status,
		confirmationsJSON,
		doubleJSON,
		votingJSON,
		bet.Deadline,
		bet.WinnerID,
		bet.ResolvedAt,
		bet.ID,
		bet.Version,
	).Scan(&bet.Version, &bet.UpdatedAt)

	if err == pgx.ErrNoRows {
		return fmt.Errorf("%w: bet %d version %d", service.ErrConcurrentUpdate, bet.ID, bet.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to update bet %d: %w", bet.ID, err)
	}

	return nil
}

// Delete destroys a bet record; the timeline goes with it via cascade
func (r *BetRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM bets WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete bet %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bet %d", service.ErrNotFound, id)
	}

	return nil
}

// GetByParticipant returns bets a user participates in, newest first
func (r *BetRepository) GetByParticipant(ctx context.Context, participantID int64, limit int) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE participant_ids @> ARRAY[$1]::BIGINT[]
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.getMany(ctx, query, participantID, limit)
}

// GetActiveByParticipant returns pending, active and double_proposed bets
// for a user
func (r *BetRepository) GetActiveByParticipant(ctx context.Context, participantID int64) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE participant_ids @> ARRAY[$1]::BIGINT[]
		  AND status IN ('pending', 'active', 'double_proposed')
		ORDER BY created_at DESC
	`
	return r.getMany(ctx, query, participantID)
}

// GetResolvedByParticipant returns resolved bets for a user, newest first
func (r *BetRepository) GetResolvedByParticipant(ctx context.Context, participantID int64, limit int) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE participant_ids @> ARRAY[$1]::BIGINT[]
		  AND status = 'resolved'
		ORDER BY resolved_at DESC
		LIMIT $2
	`
	return r.getMany(ctx, query, participantID, limit)
}

// GetByStatus returns all bets with the given status
func (r *BetRepository) GetByStatus(ctx context.Context, status models.BetStatus) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE status = $1
		ORDER BY created_at DESC
	`
	return r.getMany(ctx, query, status)
}

// GetExpiredActive returns active bets whose deadline has elapsed, locking
// the rows for the caller's sweep
func (r *BetRepository) GetExpiredActive(ctx context.Context, now time.Time) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE status = 'active' AND deadline IS NOT NULL AND deadline <= $1
		ORDER BY deadline ASC
		FOR UPDATE
	`
	return r.getMany(ctx, query, now)
}

// GetStats returns aggregate statistics for a participant
func (r *BetRepository) GetStats(ctx context.Context, participantID int64) (*models.BetStats, error) {
	query := `
		SELECT
			COUNT(*) as total_bets,
			COUNT(*) FILTER (WHERE status = 'resolved' AND winner_id = $1) as wins,
			COUNT(*) FILTER (WHERE status = 'resolved' AND winner_id <> $1) as losses,
			COUNT(*) FILTER (WHERE status IN ('pending', 'active', 'double_proposed', 'expired')) as open
		FROM bets
		WHERE participant_ids @> ARRAY[$1]::BIGINT[]
	`

	var stats models.BetStats
	err := r.q.QueryRow(ctx, query, participantID).Scan(
		&stats.TotalBets,
		&stats.Wins,
		&stats.Losses,
		&stats.Open,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get stats for participant %d: %w", participantID, err)
	}

	return &stats, nil
}

func (r *BetRepository) getOne(ctx context.Context, query string, args ...any) (*models.Bet, error) {
	bet, err := scanBet(r.q.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	return bet, nil
}

func (r *BetRepository) getMany(ctx context.Context, query string, args ...any) ([]*models.Bet, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets: %w", err)
	}
	defer rows.Close()

	var bets []*models.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bets: %w", err)
	}

	return bets, nil
}

func marshalBetState(bet *models.Bet) (confirmations, double, voting []byte, err error) {
	confirmations, err = json.Marshal(bet.Confirmations)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal confirmations: %w", err)
	}
	if bet.DoubleProposal != nil {
		double, err = json.Marshal(bet.DoubleProposal)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal double proposal: %w", err)
		}
	}
	if bet.Voting != nil {
		voting, err = json.Marshal(bet.Voting)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal voting: %w", err)
		}
	}
	return confirmations, double, voting, nil
}

func scanBet(row pgx.Row) (*models.Bet, error) {
	var bet models.Bet
	var confirmationsJSON, doubleJSON, votingJSON []byte

	err := row.Scan(
		&bet.ID,
		&bet.CreatorID,
		&bet.ParticipantIDs,
		&bet.Type,
		&bet.StakeMoney,
		&bet.StakeText,
		&bet.Description,
		&bet.GroupID,
		&bet.Status,
		&confirmationsJSON,
		&doubleJSON,
		&votingJSON,
		&bet.IndividualParticipants,
		&bet.Deadline,
		&bet.WinnerID,
		&bet.Version,
		&bet.CreatedAt,
		&bet.UpdatedAt,
		&bet.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(confirmationsJSON) > 0 {
		if err := json.Unmarshal(confirmationsJSON, &bet.Confirmations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal confirmations: %w", err)
		}
	}
	if len(doubleJSON) > 0 {
		bet.DoubleProposal = &models.DoubleProposal{}
		if err := json.Unmarshal(doubleJSON, bet.DoubleProposal); err != nil {
			return nil, fmt.Errorf("failed to unmarshal double proposal: %w", err)
		}
	}
	if len(votingJSON) > 0 {
		bet.Voting = &models.Voting{}
		if err := json.Unmarshal(votingJSON, bet.Voting); err != nil {
			return nil, fmt.Errorf("failed to unmarshal voting: %w", err)
		}
	}

	return &bet, nil
}
