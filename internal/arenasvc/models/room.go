package models

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/puntoarena/arena-services/internal/arenasvc/game"
)

// Room status lifecycle. On-chain escrow state is tracked separately by
// the escrow client; these are the coordinator's view.
const (
	RoomWaitingPlayers      = "waiting_players"
	RoomWaitingWagerConfirm = "waiting_wager_confirm"
	RoomActive              = "active"
	RoomFinished            = "finished"
	RoomCancelled           = "cancelled"
	RoomSettlementFailed    = "settlement_failed"
)

// Player is one seat in a room. The wallet address is the identity; the
// socket id is just the current transport attachment.
type Player struct {
	Role      game.Role `json:"role"`
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	SocketID  string    `json:"socket_id"`
	Connected bool      `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// Room binds two players to one match lifecycle. Board and hand state
// lives in Game and is only ever touched by the room's session actor.
// Status and UpdatedAt are also read by the registry sweeper and the
// REST handlers, so all writes to them go through SetStatus/Touch.
type Room struct {
	mu sync.RWMutex


	ID        string                `json:"id"`
	Players   map[game.Role]*Player `json:"players"`
	Wager     decimal.Decimal       `json:"wager"`
	Status    string                `json:"status"`
	CreatedAt time.Time             `json:"created_at"`

	Game *game.Punto `json:"-"`
	// GameGen counts games played in this room; a rematch bumps it so
	// settlement idempotency is keyed per game, not per room.
	GameGen int `json:"game_gen"`

	// ChainGameID is the escrow contract's id once known.
	ChainGameID uint64 `json:"chain_game_id"`

	UpdatedAt time.Time `json:"updated_at"`
}

// PlayerByAddress finds the seat held by a wallet address, if any.
func (r *Room) PlayerByAddress(address string) *Player {
	for _, p := range r.Players {
		if p != nil && equalAddress(p.Address, address) {
			return p
		}
	}
	return nil
}

// PlayerBySocket finds the seat currently attached to a socket id.
func (r *Room) PlayerBySocket(socketID string) *Player {
	for _, p := range r.Players {
		if p != nil && p.SocketID == socketID {
			return p
		}
	}
	return nil
}

// FreeRole returns the first unassigned role, player1 first.
func (r *Room) FreeRole() (game.Role, bool) {
	if r.Players[game.RolePlayer1] == nil {
		return game.RolePlayer1, true
	}
	if r.Players[game.RolePlayer2] == nil {
		return game.RolePlayer2, true
	}
	return "", false
}

// SetStatus transitions the lifecycle and bumps the activity clock.
func (r *Room) SetStatus(status string) {
	r.mu.Lock()
	r.Status = status
	r.UpdatedAt = time.Now()
	r.mu.Unlock()
}

// StatusNow reads the lifecycle status safely off the actor goroutine.
func (r *Room) StatusNow() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// Touch bumps the activity clock without a status change.
func (r *Room) Touch() {
	r.mu.Lock()
	r.UpdatedAt = time.Now()
	r.mu.Unlock()
}

// LastUpdated reads the activity clock the sweeper expires on.
func (r *Room) LastUpdated() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.UpdatedAt
}

// Terminal reports whether the room reached an end state.
func (r *Room) Terminal() bool {
	switch r.StatusNow() {
	case RoomFinished, RoomCancelled, RoomSettlementFailed:
		return true
	}
	return false
}

// equalAddress compares wallet addresses case-insensitively; hex addresses
// arrive in mixed checksum casing.
func equalAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
