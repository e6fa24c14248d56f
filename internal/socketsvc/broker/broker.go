package broker

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/puntoarena/arena-services/internal/comm"
)

// Broker consumes events from the arena service and delivers them to the
// right web sockets. Delivery is addressed either to one socket or fanned
// out to a whole room.
type Broker struct {
	Conn           *nats.Conn
	GetConnection  func(string) (*websocket.Conn, bool)
	GetRoomSockets func(string) ([]string, bool)
}

func NewBroker(conn *nats.Conn, fncGetConnection func(string) (*websocket.Conn, bool),
	fncGetRoomSockets func(string) ([]string, bool)) *Broker {
	return &Broker{
		Conn:           conn,
		GetConnection:  fncGetConnection,
		GetRoomSockets: fncGetRoomSockets,
	}
}

// SubscribeArenaService consumes the arena's outbound event stream.
func (b *Broker) SubscribeArenaService() (*nats.Subscription, error) {
	return b.Conn.Subscribe(comm.TopicArenaService, b.handleMessages)
}

// Publish relays a client event to the arena service.
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

func (b *Broker) handleMessages(msgNats *nats.Msg) {
	message := &comm.WSMessage{}
	if err := json.Unmarshal(msgNats.Data, message); err != nil {
		log.Errorf("error decoding arena message: %s", err)
		return
	}

	if message.SocketId != "" {
		b.sendToSocket(message.SocketId, message)
		return
	}

	if message.RoomId != "" {
		b.sendToRoom(message.RoomId, message)
		return
	}

	log.Warnf("arena message %q has no destination", message.Type)
}

func (b *Broker) sendToSocket(socketId string, m *comm.WSMessage) {
	conn, ok := b.GetConnection(socketId)
	if !ok {
		return
	}
	if err := conn.WriteJSON(m); err != nil {
		log.Errorf("error writing to socket %s: %s", socketId, err)
	}
}

func (b *Broker) sendToRoom(roomId string, m *comm.WSMessage) {
	sockets, ok := b.GetRoomSockets(roomId)
	if !ok {
		return
	}
	for _, socketId := range sockets {
		b.sendToSocket(socketId, m)
	}
}
