package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/puntoarena/arena-services/internal/arenasvc/models"
)

type MatchStore struct {
	db *pgxpool.Pool
}

func NewMatchStore(db *pgxpool.Pool) *MatchStore {
	return &MatchStore{db: db}
}

// Upsert writes the coordinator's current view of a room, keyed by room id.
func (s *MatchStore) Upsert(ctx context.Context, m *models.MatchRecord) error {
	query := `
		INSERT INTO matches (room_id, wager, status, game_gen, chain_game_id, winner_role, winner_address, result_tx_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (room_id) DO UPDATE SET
			status = EXCLUDED.status,
			game_gen = EXCLUDED.game_gen,
			chain_game_id = EXCLUDED.chain_game_id,
			winner_role = EXCLUDED.winner_role,
			winner_address = EXCLUDED.winner_address,
			result_tx_hash = EXCLUDED.result_tx_hash,
			updated_at = now()
	`

	_, err := s.db.Exec(ctx, query,
		m.RoomID, m.Wager, m.Status, m.GameGen, m.ChainGameID,
		m.WinnerRole, m.WinnerAddress, m.ResultTxHash)
	if err != nil {
		return fmt.Errorf("failed to upsert match %s: %w", m.RoomID, err)
	}
	return nil
}

func (s *MatchStore) GetByRoomID(ctx context.Context, roomID string) (*models.MatchRecord, error) {
	query := `
		SELECT id, room_id, wager, status, game_gen, chain_game_id, winner_role, winner_address, result_tx_hash, created_at, updated_at
		FROM matches
		WHERE room_id = $1
	`

	m := &models.MatchRecord{}
	err := s.db.QueryRow(ctx, query, roomID).Scan(
		&m.ID, &m.RoomID, &m.Wager, &m.Status, &m.GameGen, &m.ChainGameID,
		&m.WinnerRole, &m.WinnerAddress, &m.ResultTxHash, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // match not found
		}
		return nil, fmt.Errorf("failed to get match by room id: %w", err)
	}

	return m, nil
}

// ListNeedingReconciliation returns settlement_failed rooms plus rooms
// stuck before game start for longer than the refund timeout.
func (s *MatchStore) ListNeedingReconciliation(ctx context.Context, stuckFor time.Duration) ([]*models.MatchRecord, error) {
	query := `
		SELECT id, room_id, wager, status, game_gen, chain_game_id, winner_role, winner_address, result_tx_hash, created_at, updated_at
		FROM matches
		WHERE status = $1
		   OR (status IN ($2, $3) AND updated_at < now() - $4::interval)
		ORDER BY updated_at ASC
	`

	interval := fmt.Sprintf("%d seconds", int(stuckFor.Seconds()))
	rows, err := s.db.Query(ctx, query,
		models.RoomSettlementFailed, models.RoomWaitingPlayers, models.RoomWaitingWagerConfirm, interval)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for reconciliation: %w", err)
	}
	defer rows.Close()

	var out []*models.MatchRecord
	for rows.Next() {
		m := &models.MatchRecord{}
		err := rows.Scan(
			&m.ID, &m.RoomID, &m.Wager, &m.Status, &m.GameGen, &m.ChainGameID,
			&m.WinnerRole, &m.WinnerAddress, &m.ResultTxHash, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		out = append(out, m)
	}

	return out, rows.Err()
}

// UpdateStatus patches status and winner fields, used by reconciliation.
func (s *MatchStore) UpdateStatus(ctx context.Context, roomID, status, winnerAddress string) error {
	query := `
		UPDATE matches
		SET status = $2, winner_address = $3, updated_at = now()
		WHERE room_id = $1
	`

	_, err := s.db.Exec(ctx, query, roomID, status, winnerAddress)
	if err != nil {
		return fmt.Errorf("failed to update match %s status: %w", roomID, err)
	}
	return nil
}
