package broker

import (
	"encoding/json"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/puntoarena/arena-services/internal/arenasvc/session"
	"github.com/puntoarena/arena-services/internal/comm"
)

// Broker bridges NATS and the session manager. It is also the manager's
// Publisher: every outbound event goes through the arena topic back to
// the socket service.
type Broker struct {
	Conn    *nats.Conn
	Manager *session.Manager
}

func NewBroker(nc *nats.Conn) *Broker {
	return &Broker{Conn: nc}
}

// handleMessage consumes client events forwarded by the socket service.
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg := &comm.WSMessage{}
	if err := json.Unmarshal(msgNat.Data, msg); err != nil {
		log.Errorf("error decoding nats message: %s", err)
		return
	}

	switch msg.Type {
	case "create_room":
		b.handleCreateRoom(msg)

	case "join_wagered_room":
		req := &comm.JoinRoomRequest{}
		if !b.decode(msg, req) {
			return
		}
		if req.RoomId == "" || req.Address == "" || req.Name == "" {
			b.sendError(msg.SocketId, comm.CodeInvalidPayload, "room_id, name and address are required")
			return
		}
		b.Manager.Join(msg.SocketId, req)

	case "wager_confirmed":
		req := &comm.WagerConfirmedRequest{}
		if !b.decode(msg, req) {
			return
		}
		b.Manager.WagerConfirmed(msg.SocketId, req.RoomId)

	case "make_move":
		req := &comm.MoveRequest{}
		if !b.decode(msg, req) {
			return
		}
		b.Manager.Move(msg.SocketId, req)

	case "rematch":
		req := &comm.RematchRequest{}
		if !b.decode(msg, req) {
			return
		}
		b.Manager.Rematch(msg.SocketId, req.RoomId)

	case "get_game_state":
		req := &comm.GetGameStateRequest{}
		if !b.decode(msg, req) {
			return
		}
		b.Manager.GetState(msg.SocketId, req.RoomId)

	case "socket_disconnected":
		b.Manager.Disconnect(msg.SocketId)

	default:
		log.Warnf("unknown message type %q from socket %s", msg.Type, msg.SocketId)
	}
}

func (b *Broker) handleCreateRoom(msg *comm.WSMessage) {
	req := &comm.CreateRoomRequest{}
	if !b.decode(msg, req) {
		return
	}

	wager := decimal.Zero
	if req.Wager != "" {
		var err error
		wager, err = decimal.NewFromString(req.Wager)
		if err != nil || wager.IsNegative() {
			b.sendError(msg.SocketId, comm.CodeInvalidPayload, "wager must be a non-negative decimal")
			return
		}
	}

	room, err := b.Manager.CreateRoom(wager)
	if err != nil {
		b.sendError(msg.SocketId, comm.CodeInvalidPayload, err.Error())
		return
	}

	b.ToSocket(msg.SocketId, "room_created", comm.RoomCreated{
		RoomId:     room.ID,
		InviteLink: os.Getenv("WEB_BASE_URL") + "/room/" + room.ID,
		Wager:      room.Wager.String(),
	})
}

func (b *Broker) decode(msg *comm.WSMessage, v interface{}) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		log.Errorf("error decoding %s payload from socket %s: %s", msg.Type, msg.SocketId, err)
		b.sendError(msg.SocketId, comm.CodeInvalidPayload, "malformed "+msg.Type+" payload")
		return false
	}
	return true
}

func (b *Broker) sendError(socketID, code, message string) {
	b.ToSocket(socketID, "error", comm.ErrorPayload{Code: code, Message: message})
}

// ToSocket publishes an event addressed to one connection.
func (b *Broker) ToSocket(socketID, msgType string, payload interface{}) {
	b.publish(&comm.WSMessage{Type: msgType, SocketId: socketID}, payload)
}

// ToRoom publishes an event the socket service fans out to every
// connection attached to the room.
func (b *Broker) ToRoom(roomID, msgType string, payload interface{}) {
	b.publish(&comm.WSMessage{Type: msgType, RoomId: roomID}, payload)
}

func (b *Broker) publish(msg *comm.WSMessage, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("unable to marshal %s payload: %s", msg.Type, err)
		return
	}
	msg.Data = data

	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("unable to marshal %s message: %s", msg.Type, err)
		return
	}

	if err := b.Conn.Publish(comm.TopicArenaService, bytes); err != nil {
		log.Errorf("error publishing to topic %s: %s", comm.TopicArenaService, err)
	}
}

// SubscribeSocketService consumes the client event stream.
func (b *Broker) SubscribeSocketService() (*nats.Subscription, error) {
	return b.Conn.Subscribe(comm.TopicSocketService, b.handleMessage)
}
