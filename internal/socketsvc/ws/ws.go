package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/puntoarena/arena-services/internal/comm"
	"github.com/puntoarena/arena-services/internal/socketsvc/broker"
)

// Ws tracks live connections and their room attachment. Validation here
// is structural only; the arena service owns all game rules.
type Ws struct {
	connMap sync.Map // socketId -> *websocket.Conn
	roomMap sync.Map // socketId -> roomId
	Broker  *broker.Broker
}

func NewWs() *Ws {
	return &Ws{}
}

// SocketMessage handles an incoming event from a web client.
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case "create_room":
		s.forward(socketId, message)

	case "join_wagered_room":
		var payload comm.JoinRoomRequest
		if err := json.Unmarshal(message.Data, &payload); err != nil {
			s.rejectPayload(socketId, message.Type)
			return
		}
		if payload.RoomId == "" || payload.Address == "" {
			s.rejectPayload(socketId, message.Type)
			return
		}
		// Remember the attachment so room broadcasts reach this socket.
		s.StoreRoom(socketId, payload.RoomId)
		s.forward(socketId, message)

	case "wager_confirmed", "rematch", "get_game_state":
		var payload struct {
			RoomId string `json:"room_id"`
		}
		if err := json.Unmarshal(message.Data, &payload); err != nil || payload.RoomId == "" {
			s.rejectPayload(socketId, message.Type)
			return
		}
		s.forward(socketId, message)

	case "make_move":
		var payload comm.MoveRequest
		if err := json.Unmarshal(message.Data, &payload); err != nil || payload.RoomId == "" {
			s.rejectPayload(socketId, message.Type)
			return
		}
		s.forward(socketId, message)

	default:
		log.Warnf("unknown event received from %s: %s", socketId, message.Type)
	}
}

// forward stamps the socket id and relays the event to the arena service.
func (s *Ws) forward(socketId string, msg *comm.WSMessage) {
	msg.SocketId = socketId

	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("failed to marshal %s message for nats: %v", msg.Type, err)
		return
	}

	if err := s.Broker.Publish(comm.TopicSocketService, bytes); err != nil {
		log.Errorf("failed to publish to nats topic %s: %v", comm.TopicSocketService, err)
	}
}

// rejectPayload answers a malformed client event without a round trip to
// the arena service.
func (s *Ws) rejectPayload(socketId, msgType string) {
	log.Errorf("malformed %s payload from socket %s", msgType, socketId)

	conn, ok := s.GetConnection(socketId)
	if !ok {
		return
	}

	data, err := json.Marshal(comm.ErrorPayload{
		Code:    comm.CodeInvalidPayload,
		Message: "malformed " + msgType + " payload",
	})
	if err != nil {
		return
	}

	if err := conn.WriteJSON(&comm.WSMessage{Type: "error", Data: data, SocketId: socketId}); err != nil {
		log.Errorf("failed to send error to socket %s: %v", socketId, err)
	}
}

// HandleDisconnect cleans the socket's state and tells the arena service
// so the seat can be marked stale.
func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)
	s.roomMap.Delete(socketId)

	msg := &comm.WSMessage{Type: "socket_disconnected", SocketId: socketId}
	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("failed to marshal disconnect message: %v", err)
		return
	}
	if err := s.Broker.Publish(comm.TopicSocketService, bytes); err != nil {
		log.Errorf("failed to publish disconnect for socket %s: %v", socketId, err)
	}
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, conn)
}

func (s *Ws) GetConnection(socketId string) (*websocket.Conn, bool) {
	conn, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return conn.(*websocket.Conn), true
}

func (s *Ws) StoreRoom(socketId string, roomId string) {
	s.roomMap.Store(socketId, roomId)
}

func (s *Ws) GetRoom(socketId string) (string, bool) {
	room, ok := s.roomMap.Load(socketId)
	if !ok {
		return "", false
	}
	return room.(string), true
}

// GetRoomSockets lists every socket currently attached to a room.
func (s *Ws) GetRoomSockets(roomId string) ([]string, bool) {
	var sockets []string
	found := false

	s.roomMap.Range(func(key, value interface{}) bool {
		if value.(string) == roomId {
			sockets = append(sockets, key.(string))
			found = true
		}
		return true
	})

	return sockets, found
}
