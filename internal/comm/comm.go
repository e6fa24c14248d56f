package comm

import (
	"encoding/json"
	"time"
)

// WSMessage is the envelope for every message crossing the socket boundary
// and the NATS topics between socketsvc and arenasvc. Data is kept raw so
// each layer decodes only the payloads it owns.
type WSMessage struct {
	Type     string          `json:"type"` // e.g. "join_wagered_room", "make_move"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
	RoomId   string          `json:"roomid,omitempty"` // set for room broadcasts
}

// NATS topics shared by the services.
const (
	TopicSocketService = "socket.service" // client -> arena
	TopicArenaService  = "arena.service"  // arena -> client
)

// Error codes returned to clients. Clients must never infer success from
// the absence of an error; every rejection carries one of these.
const (
	CodeInvalidPayload    = "invalid_payload"
	CodeIllegalMove       = "illegal_move"
	CodeNotYourTurn       = "not_your_turn"
	CodeRateLimited       = "rate_limited"
	CodeRoomFull          = "room_full"
	CodeRoomNotFound      = "room_not_found"
	CodeIdentityMismatch  = "identity_mismatch"
	CodeChainError        = "chain_error"
	CodeWagerNotActive    = "wager_not_active"
	CodeSettlementPending = "settlement_pending"
	CodeSettlementFailed  = "settlement_failed"
)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServiceHeartbeat struct {
	ID        string    `json:"id"` // service id
	Timestamp time.Time `json:"timestamp"`
}

// Client -> server payloads.

type CreateRoomRequest struct {
	Wager string `json:"wager"` // decimal string, native token units
}

type JoinRoomRequest struct {
	RoomId  string `json:"room_id"`
	Name    string `json:"name"`
	Address string `json:"address"` // wallet address, the player identity
}

type WagerConfirmedRequest struct {
	RoomId string `json:"room_id"`
}

type MoveRequest struct {
	RoomId    string `json:"room_id"`
	CardValue int    `json:"card_value"`
	CardColor string `json:"card_color"`
	Row       int    `json:"row"`
	Col       int    `json:"col"`
}

type RematchRequest struct {
	RoomId string `json:"room_id"`
}

type GetGameStateRequest struct {
	RoomId string `json:"room_id"`
}

// Server -> client payloads.

type RoomCreated struct {
	RoomId     string `json:"room_id"`
	InviteLink string `json:"invite_link"`
	Wager      string `json:"wager"`
}

type PlayerJoined struct {
	Role         string `json:"role"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	PlayersCount int    `json:"players_count"`
	Wager        string `json:"wager"`
}

type PlayerStatus struct {
	Role   string `json:"role"`
	Name   string `json:"name"`
	Status string `json:"status"` // connected | disconnected | reconnected
}

type WaitingForWager struct {
	Message string `json:"message"`
}

type Card struct {
	Value int    `json:"value"`
	Color string `json:"color"`
}

// BoardCell is one occupied cell as rendered to clients; empty cells are null.
type BoardCell struct {
	Card   int    `json:"card"`
	Player string `json:"player"`
	Color  string `json:"color"`
}

type HandView struct {
	Name  string `json:"name"`
	Cards []Card `json:"cards"`
}

// GameState is the full snapshot: used both for game_start and for
// game_state_restored on reconnect. YourRole/YourCards are filled only on
// the per-socket copy.
type GameState struct {
	Status      string         `json:"status"`
	Board       [][]*BoardCell `json:"board"`
	Player1     HandView       `json:"player1"`
	Player2     HandView       `json:"player2"`
	CurrentTurn string         `json:"current_turn"`
	Wager       string         `json:"wager"`
	MoveCount   int            `json:"move_count"`
	YourRole    string         `json:"your_role,omitempty"`
	YourCards   []Card         `json:"your_cards,omitempty"`
}

type MoveMade struct {
	Player       string         `json:"player"`
	Card         Card           `json:"card"`
	Position     [2]int         `json:"position"` // [row, col]
	Board        [][]*BoardCell `json:"board"`
	Player1Cards []Card         `json:"player1_cards"`
	Player2Cards []Card         `json:"player2_cards"`
	NextTurn     string         `json:"next_turn,omitempty"`
	Winner       string         `json:"winner,omitempty"`
}

type RematchPending struct {
	Role  string `json:"role"`
	Votes int    `json:"votes"`
}

type GameEnd struct {
	Winner  string `json:"winner,omitempty"` // empty on draw
	Reason  string `json:"reason"`           // five_in_line | value_tiebreak | draw | forfeit
	Payout  string `json:"payout"`
	Fee     string `json:"fee"`
	TxHash  string `json:"tx_hash,omitempty"`
	Pending bool   `json:"pending"` // true until on-chain confirmation
}

type SettlementFailed struct {
	RoomId  string `json:"room_id"`
	Message string `json:"message"`
}
