package models

import (
	"time"
)

// User represents a participant identity resolved through the directory
type User struct {
	ID          int64     `db:"id"`
	Username    string    `db:"username"`
	DisplayName string    `db:"display_name"`
	CreatedAt   time.Time `db:"created_at"`
}

// BetStats represents aggregate betting statistics for a participant
type BetStats struct {
	TotalBets int
	Wins      int
	Losses    int
	Open      int
}
