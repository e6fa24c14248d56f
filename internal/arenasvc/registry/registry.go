package registry

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/puntoarena/arena-services/internal/arenasvc/game"
	"github.com/puntoarena/arena-services/internal/arenasvc/models"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
)

const roomTokenBytes = 8

// Registry is the sole authority for room existence and role assignment.
// It guards only the room index and seat membership; board and hand state
// belongs to each room's session actor.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room

	// terminal rooms are eligible for removal after this much inactivity
	inactivityWindow time.Duration
}

func New(inactivityWindow time.Duration) *Registry {
	return &Registry{
		rooms:            make(map[string]*models.Room),
		inactivityWindow: inactivityWindow,
	}
}

// Create allocates a room with a fresh collision-checked token.
func (r *Registry) Create(wager decimal.Decimal) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var roomID string
	for {
		token, err := randomToken()
		if err != nil {
			return nil, fmt.Errorf("generate room token: %w", err)
		}
		if _, taken := r.rooms[token]; !taken {
			roomID = token
			break
		}
	}

	now := time.Now()
	room := &models.Room{
		ID:        roomID,
		Players:   make(map[game.Role]*models.Player),
		Wager:     wager,
		Status:    models.RoomWaitingPlayers,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.rooms[roomID] = room

	log.Infof("room %s created, wager %s", roomID, wager.String())
	return room, nil
}

func (r *Registry) Get(roomID string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// AddPlayer seats an identity. A free role is assigned in order; if the
// address already holds a seat the same role comes back with rejoined set,
// so a reconnect is never an error. A third identity gets ErrRoomFull.
func (r *Registry) AddPlayer(roomID, address, name, socketID string) (*models.Player, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false, ErrRoomNotFound
	}

	now := time.Now()

	if p := room.PlayerByAddress(address); p != nil {
		p.SocketID = socketID
		p.Name = name
		p.Connected = true
		p.LastSeen = now
		room.Touch()
		return p, true, nil
	}

	role, free := room.FreeRole()
	if !free {
		return nil, false, ErrRoomFull
	}

	p := &models.Player{
		Role:      role,
		Address:   address,
		Name:      name,
		SocketID:  socketID,
		Connected: true,
		LastSeen:  now,
	}
	room.Players[role] = p
	room.Touch()

	log.Infof("room %s: %s seated as %s", roomID, address, role)
	return p, false, nil
}

// Expire removes a room once it is terminal and past the inactivity
// window. Non-terminal rooms are never expired here; the refund timeout
// on-chain is the safety valve for those.
func (r *Registry) Expire(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if !room.Terminal() || time.Since(room.LastUpdated()) < r.inactivityWindow {
		return false
	}

	delete(r.rooms, roomID)
	log.Infof("room %s expired after inactivity", roomID)
	return true
}

// RoomSummary is a point-in-time copy for listings; handing out live
// *Room pointers would let HTTP handlers race the session actors.
type RoomSummary struct {
	ID      string
	Wager   decimal.Decimal
	Players int
}

// Waiting lists rooms still open for a second player.
func (r *Registry) Waiting() []RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []RoomSummary
	for _, room := range r.rooms {
		if room.StatusNow() != models.RoomWaitingPlayers {
			continue
		}
		seats := 0
		for _, p := range room.Players {
			if p != nil {
				seats++
			}
		}
		out = append(out, RoomSummary{ID: room.ID, Wager: room.Wager, Players: seats})
	}
	return out
}

// Sweep runs the expiry loop until the context ends, reporting each
// removed room id so its session actor can be stopped.
func (r *Registry) Sweep(ctx context.Context, interval time.Duration, onExpire func(roomID string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, roomID := range r.expirable() {
				if r.Expire(roomID) && onExpire != nil {
					onExpire(roomID)
				}
			}
		}
	}
}

func (r *Registry) expirable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, room := range r.rooms {
		if room.Terminal() && time.Since(room.LastUpdated()) >= r.inactivityWindow {
			ids = append(ids, id)
		}
	}
	return ids
}

func randomToken() (string, error) {
	buf := make([]byte, roomTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
