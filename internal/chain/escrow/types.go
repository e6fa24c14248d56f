package escrow

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// GameState mirrors the contract's enum. Transitions only move forward:
// PENDING -> ACTIVE -> FINISHED | CANCELLED.
type GameState uint8

const (
	StatePending GameState = iota
	StateActive
	StateFinished
	StateCancelled
)

func (s GameState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StateFinished:
		return "FINISHED"
	case StateCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// Terminal reports whether no further transition is possible on-chain.
func (s GameState) Terminal() bool {
	return s == StateFinished || s == StateCancelled
}

// GameRecord is the on-chain escrow entry for a room.
type GameRecord struct {
	GameID    uint64
	Player1   common.Address
	Player2   common.Address
	Wager     *big.Int
	State     GameState
	Winner    common.Address
	CreatedAt time.Time
	RoomID    string
}

// BothDeposited reports whether the two deposit slots are filled.
func (g *GameRecord) BothDeposited() bool {
	zero := common.Address{}
	return g.Player1 != zero && g.Player2 != zero
}

// HasPlayer checks a wallet address against both deposit slots.
func (g *GameRecord) HasPlayer(address string) bool {
	if !common.IsHexAddress(address) {
		return false
	}
	addr := common.HexToAddress(address)
	return g.Player1 == addr || g.Player2 == addr
}

// SubmitReceipt summarizes a mined settlement transaction.
type SubmitReceipt struct {
	TxHash   string
	GasUsed  uint64
	BlockNum uint64
}

var weiPerToken = decimal.New(1, 18)

// ToWei converts a token-denominated decimal amount to wei.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Mul(weiPerToken).BigInt()
}

// FromWei converts wei to a token-denominated decimal.
func FromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, 0).Div(weiPerToken)
}
