package escrow

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrReverted marks an on-chain rejection: the attempt is terminal and
	// the caller must reconcile against chain state instead of retrying.
	ErrReverted = errors.New("transaction reverted")

	// ErrNoGame means the room has no escrow entry yet.
	ErrNoGame = errors.New("no on-chain game for room")

	ErrNoSigner = errors.New("no oracle key configured")
)

const submitGasLimit = 200000

// Config is everything the client needs; the oracle key is optional for
// read-only consumers such as reconsvc.
type Config struct {
	RPCURL          string
	ContractAddress string
	OracleKeyHex    string
}

// Client is the typed wrapper around the PuntoArena escrow contract.
type Client struct {
	ec       *ethclient.Client
	bound    *bind.BoundContract
	contract common.Address
	chainID  *big.Int

	oracleKey  *ecdsa.PrivateKey
	oracleAddr common.Address
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", cfg.RPCURL, err)
	}

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(puntoArenaABI))
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}

	contract := common.HexToAddress(cfg.ContractAddress)
	c := &Client{
		ec:       ec,
		bound:    bind.NewBoundContract(contract, parsed, ec, ec, ec),
		contract: contract,
		chainID:  chainID,
	}

	if cfg.OracleKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OracleKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse oracle key: %w", err)
		}
		c.oracleKey = key
		c.oracleAddr = crypto.PubkeyToAddress(key.PublicKey)
	}

	log.Infof("escrow client ready: contract %s chain %s oracle %s",
		contract.Hex(), chainID.String(), c.oracleLabel())
	return c, nil
}

func (c *Client) oracleLabel() string {
	if c.oracleKey == nil {
		return "read-only"
	}
	return c.oracleAddr.Hex()
}

// OracleAddress returns the configured settlement signer address.
func (c *Client) OracleAddress() common.Address { return c.oracleAddr }

// GetGameByRoomID reads the escrow entry for a room. ErrNoGame when the
// room was never funded.
func (c *Client) GetGameByRoomID(ctx context.Context, roomID string) (*GameRecord, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getGameByRoomId", roomID)
	if err != nil {
		return nil, fmt.Errorf("getGameByRoomId %s: %w", roomID, err)
	}
	if len(out) != 7 {
		return nil, fmt.Errorf("getGameByRoomId %s: unexpected output arity %d", roomID, len(out))
	}

	var gameIDOut []interface{}
	err = c.bound.Call(&bind.CallOpts{Context: ctx}, &gameIDOut, "roomIdToGameId", roomID)
	if err != nil {
		return nil, fmt.Errorf("roomIdToGameId %s: %w", roomID, err)
	}
	gameID := gameIDOut[0].(*big.Int)
	if gameID.Sign() == 0 {
		return nil, ErrNoGame
	}

	createdAt := out[5].(*big.Int)
	rec := &GameRecord{
		GameID:    gameID.Uint64(),
		Player1:   out[0].(common.Address),
		Player2:   out[1].(common.Address),
		Wager:     out[2].(*big.Int),
		State:     GameState(out[3].(uint8)),
		Winner:    out[4].(common.Address),
		CreatedAt: time.Unix(createdAt.Int64(), 0),
		RoomID:    out[6].(string),
	}
	return rec, nil
}

// CanClaimRefund reports whether the refund timeout has elapsed for a game.
func (c *Client) CanClaimRefund(ctx context.Context, gameID uint64) (bool, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "canClaimRefund", new(big.Int).SetUint64(gameID))
	if err != nil {
		return false, fmt.Errorf("canClaimRefund %d: %w", gameID, err)
	}
	return out[0].(bool), nil
}

// CalculatePayout asks the contract how a pot splits into winner payout
// and protocol fee for a single-player wager amount.
func (c *Client) CalculatePayout(ctx context.Context, wagerWei *big.Int) (payout, fee *big.Int, err error) {
	var out []interface{}
	err = c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "calculatePayout", wagerWei)
	if err != nil {
		return nil, nil, fmt.Errorf("calculatePayout: %w", err)
	}
	return out[0].(*big.Int), out[1].(*big.Int), nil
}

// CreateGame opens an escrow entry for a room with the signer's deposit.
func (c *Client) CreateGame(ctx context.Context, roomID string, wagerWei *big.Int) (*SubmitReceipt, error) {
	return c.transact(ctx, wagerWei, "createGame", roomID)
}

// JoinGame deposits the second wager into an existing escrow entry.
func (c *Client) JoinGame(ctx context.Context, gameID uint64, wagerWei *big.Int) (*SubmitReceipt, error) {
	return c.transact(ctx, wagerWei, "joinGame", new(big.Int).SetUint64(gameID))
}

// SubmitResult reports the winner; the contract enforces that only the
// designated oracle may call it.
func (c *Client) SubmitResult(ctx context.Context, gameID uint64, winner common.Address) (*SubmitReceipt, error) {
	return c.transact(ctx, nil, "submitResult", new(big.Int).SetUint64(gameID), winner)
}

// ClaimRefund pulls a deposit back after the contract's refund timeout.
func (c *Client) ClaimRefund(ctx context.Context, gameID uint64) (*SubmitReceipt, error) {
	return c.transact(ctx, nil, "claimRefund", new(big.Int).SetUint64(gameID))
}

func (c *Client) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*SubmitReceipt, error) {
	if c.oracleKey == nil {
		return nil, ErrNoSigner
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.oracleKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = value
	opts.GasLimit = submitGasLimit

	tx, err := c.bound.Transact(opts, method, args...)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%s: %w: %v", method, ErrReverted, err)
		}
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	log.Infof("escrow %s sent: %s", method, tx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, c.ec, tx)
	if err != nil {
		return nil, fmt.Errorf("%s wait mined %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != 1 {
		return nil, fmt.Errorf("%s %s: %w", method, tx.Hash().Hex(), ErrReverted)
	}

	return &SubmitReceipt{
		TxHash:   tx.Hash().Hex(),
		GasUsed:  receipt.GasUsed,
		BlockNum: receipt.BlockNumber.Uint64(),
	}, nil
}

// isRevert classifies pre-mining rejections (gas estimation against a
// reverting call) as reverts rather than transient RPC trouble.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}
