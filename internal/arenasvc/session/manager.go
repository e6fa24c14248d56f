package session

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/puntoarena/arena-services/internal/arenasvc/models"
	"github.com/puntoarena/arena-services/internal/arenasvc/registry"
	"github.com/puntoarena/arena-services/internal/arenasvc/settle"
	"github.com/puntoarena/arena-services/internal/comm"
)

// Manager owns the live sessions and the socket -> room index. It is the
// only place sessions are created or torn down; everything else holds a
// *Session only transiently.
type Manager struct {
	reg       *registry.Registry
	pub       Publisher
	chain     ChainVerifier
	settler   Settler
	matches   MatchRecorder
	snapshots SnapshotSaver

	mu          sync.RWMutex
	sessions    map[string]*Session
	socketRooms map[string]string
}

func NewManager(reg *registry.Registry, pub Publisher, chain ChainVerifier,
	settler Settler, matches MatchRecorder, snapshots SnapshotSaver) *Manager {
	return &Manager{
		reg:         reg,
		pub:         pub,
		chain:       chain,
		settler:     settler,
		matches:     matches,
		snapshots:   snapshots,
		sessions:    make(map[string]*Session),
		socketRooms: make(map[string]string),
	}
}

// CreateRoom registers a new room and spins up its actor.
func (m *Manager) CreateRoom(wager decimal.Decimal) (*models.Room, error) {
	room, err := m.reg.Create(wager)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[room.ID] = New(room, m.reg, m.pub, m.chain, m.settler, m.matches, m.snapshots)
	m.mu.Unlock()

	log.Infof("room %s session started", room.ID)
	return room, nil
}

func (m *Manager) session(roomID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[roomID]
}

// bind attaches a socket to a room for later disconnect routing.
func (m *Manager) bind(socketID, roomID string) {
	m.mu.Lock()
	m.socketRooms[socketID] = roomID
	m.mu.Unlock()
}

// Join routes a join to the room's actor, creating nothing: joining a
// room that was never created or already expired is a client error.
func (m *Manager) Join(socketID string, req *comm.JoinRoomRequest) {
	s := m.session(req.RoomId)
	if s == nil {
		m.pub.ToSocket(socketID, "error", comm.ErrorPayload{
			Code:    comm.CodeRoomNotFound,
			Message: "room not found or expired",
		})
		return
	}
	m.bind(socketID, req.RoomId)
	s.Join(socketID, req)
}

func (m *Manager) WagerConfirmed(socketID, roomID string) {
	if s := m.session(roomID); s != nil {
		s.WagerConfirmed(socketID)
	}
}

func (m *Manager) Move(socketID string, req *comm.MoveRequest) {
	if s := m.session(req.RoomId); s != nil {
		s.Move(socketID, req)
	}
}

func (m *Manager) Rematch(socketID, roomID string) {
	if s := m.session(roomID); s != nil {
		s.Rematch(socketID)
	}
}

func (m *Manager) GetState(socketID, roomID string) {
	if s := m.session(roomID); s != nil {
		s.GetState(socketID)
	}
}

// Disconnect routes the transport loss to whichever room the socket sat
// in. The seat is only marked stale; the identity can reattach later.
func (m *Manager) Disconnect(socketID string) {
	m.mu.Lock()
	roomID, ok := m.socketRooms[socketID]
	delete(m.socketRooms, socketID)
	m.mu.Unlock()
	if !ok {
		return
	}
	if s := m.session(roomID); s != nil {
		s.Disconnect(socketID)
	}
}

// SettlementResult is the worker's report callback; it re-enters the
// owning room's queue so settlement outcomes serialize with moves.
func (m *Manager) SettlementResult(res settle.Result) {
	if s := m.session(res.RoomID); s != nil {
		s.SettlementResult(res)
		return
	}
	log.Warnf("settlement result for unknown room %s dropped", res.RoomID)
}

// Expire tears down one room's actor after the registry drops it and
// clears the room's resume hints; the TTL index is only the backstop.
func (m *Manager) Expire(roomID string) {
	m.mu.Lock()
	s := m.sessions[roomID]
	delete(m.sessions, roomID)
	m.mu.Unlock()
	if s != nil {
		s.Stop()
		log.Infof("room %s expired, session stopped", roomID)
	}

	if m.snapshots == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.snapshots.Delete(ctx, roomID); err != nil {
			log.Errorf("room %s: delete session snapshots: %v", roomID, err)
		}
	}()
}

// Stop shuts down every live session.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.Stop()
		delete(m.sessions, id)
	}
}
