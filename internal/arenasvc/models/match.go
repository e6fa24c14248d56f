package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchRecord is the persisted row for one room, kept current by the
// coordinator and repaired by reconsvc when chain truth diverges.
type MatchRecord struct {
	ID            int64           `json:"id"`
	RoomID        string          `json:"room_id"`
	Wager         decimal.Decimal `json:"wager"`
	Status        string          `json:"status"`
	GameGen       int             `json:"game_gen"`
	ChainGameID   int64           `json:"chain_game_id"`
	WinnerRole    string          `json:"winner_role"`
	WinnerAddress string          `json:"winner_address"`
	ResultTxHash  string          `json:"result_tx_hash"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Settlement attempt statuses.
const (
	SettleSubmitted = "submitted"
	SettleConfirmed = "confirmed"
	SettleReverted  = "reverted"
	SettleFailed    = "failed"
)

// SettlementAttempt records one try at submitting a result on-chain. A
// finished game must always have at least one of these rows.
type SettlementAttempt struct {
	ID            int64     `json:"id"`
	RoomID        string    `json:"room_id"`
	GameGen       int       `json:"game_gen"`
	Attempt       int       `json:"attempt"`
	WinnerAddress string    `json:"winner_address"`
	TxHash        string    `json:"tx_hash"`
	Status        string    `json:"status"`
	Error         string    `json:"error"`
	CreatedAt     time.Time `json:"created_at"`
}

// SessionSnapshot is the non-authoritative resume hint kept in mongo with
// a TTL. The server's live state always overrides it on reconnect.
type SessionSnapshot struct {
	RoomID    string    `bson:"room_id" json:"room_id"`
	Address   string    `bson:"address" json:"address"`
	Role      string    `bson:"role" json:"role"`
	Wager     string    `bson:"wager" json:"wager"`
	Status    string    `bson:"status" json:"status"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}
