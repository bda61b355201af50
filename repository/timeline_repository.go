package repository

import (
	"context"
	"fmt"

	"betmates/database"
	"betmates/models"
)

// TimelineRepository implements the append-only audit log. There is no
// update or delete; existing entries are immutable.
type TimelineRepository struct {
	q queryable
}

// NewTimelineRepository creates a new timeline repository
func NewTimelineRepository(db *database.DB) *TimelineRepository {
	return &TimelineRepository{q: db.Pool}
}

// newTimelineRepositoryWithTx creates a new timeline repository with a transaction
func newTimelineRepositoryWithTx(tx queryable) *TimelineRepository {
	return &TimelineRepository{q: tx}
}

// Append adds one entry with a capture-time timestamp
func (r *TimelineRepository) Append(ctx context.Context, entry *models.TimelineEntry) error {
	query := `
		INSERT INTO bet_timeline (bet_id, by_id, type, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, at
	`

	err := r.q.QueryRow(ctx, query,
		entry.BetID,
		entry.By,
		entry.Type,
		entry.Notes,
	).Scan(&entry.ID, &entry.At)

	if err != nil {
		return fmt.Errorf("failed to append timeline entry for bet %d: %w", entry.BetID, err)
	}

	return nil
}

// GetByBet returns a bet's timeline in append order
func (r *TimelineRepository) GetByBet(ctx context.Context, betID int64) ([]*models.TimelineEntry, error) {
	query := `
		SELECT id, bet_id, at, by_id, type, notes
		FROM bet_timeline
		WHERE bet_id = $1
		ORDER BY id ASC
	`

	rows, err := r.q.Query(ctx, query, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get timeline for bet %d: %w", betID, err)
	}
	defer rows.Close()

	var entries []*models.TimelineEntry
	for rows.Next() {
		var entry models.TimelineEntry
		err := rows.Scan(
			&entry.ID,
			&entry.BetID,
			&entry.At,
			&entry.By,
			&entry.Type,
			&entry.Notes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeline entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timeline entries: %w", err)
	}

	return entries, nil
}
