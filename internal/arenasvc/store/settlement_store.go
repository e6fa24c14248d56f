package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/puntoarena/arena-services/internal/arenasvc/models"
)

type SettlementStore struct {
	db *pgxpool.Pool
}

func NewSettlementStore(db *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{db: db}
}

// Record inserts one settlement attempt row and returns its id.
func (s *SettlementStore) Record(ctx context.Context, a *models.SettlementAttempt) (int64, error) {
	query := `
		INSERT INTO settlement_attempts (room_id, game_gen, attempt, winner_address, tx_hash, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id
	`

	var id int64
	err := s.db.QueryRow(ctx, query,
		a.RoomID, a.GameGen, a.Attempt, a.WinnerAddress, a.TxHash, a.Status, a.Error,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record settlement attempt for %s: %w", a.RoomID, err)
	}
	return id, nil
}

// Resolve finalizes an attempt row once the transaction outcome is known.
func (s *SettlementStore) Resolve(ctx context.Context, id int64, status, txHash, errText string) error {
	query := `
		UPDATE settlement_attempts
		SET status = $2, tx_hash = $3, error = $4
		WHERE id = $1
	`

	_, err := s.db.Exec(ctx, query, id, status, txHash, errText)
	if err != nil {
		return fmt.Errorf("failed to resolve settlement attempt %d: %w", id, err)
	}
	return nil
}

// CountForGame reports how many attempts a game generation has accumulated.
func (s *SettlementStore) CountForGame(ctx context.Context, roomID string, gameGen int) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM settlement_attempts WHERE room_id = $1 AND game_gen = $2`,
		roomID, gameGen,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count settlement attempts: %w", err)
	}
	return count, nil
}
