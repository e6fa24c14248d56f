package settle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puntoarena/arena-services/internal/arenasvc/game"
	"github.com/puntoarena/arena-services/internal/arenasvc/models"
	"github.com/puntoarena/arena-services/internal/chain/escrow"
)

const winnerAddr = "0x1111111111111111111111111111111111111111"

type fakeWorkChain struct {
	recs    []*escrow.GameRecord
	recErr  error
	recErrs []error // consumed one per lookup before recs
	recIdx  int
	receipt *escrow.SubmitReceipt

	submitErr error
	submitted []common.Address

	payout *big.Int
	fee    *big.Int
}

func (f *fakeWorkChain) GetGameByRoomID(ctx context.Context, roomID string) (*escrow.GameRecord, error) {
	if len(f.recErrs) > 0 {
		err := f.recErrs[0]
		f.recErrs = f.recErrs[1:]
		return nil, err
	}
	if f.recErr != nil {
		return nil, f.recErr
	}
	rec := f.recs[f.recIdx]
	if f.recIdx < len(f.recs)-1 {
		f.recIdx++
	}
	return rec, nil
}

func (f *fakeWorkChain) SubmitResult(ctx context.Context, gameID uint64, winner common.Address) (*escrow.SubmitReceipt, error) {
	f.submitted = append(f.submitted, winner)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.receipt, nil
}

func (f *fakeWorkChain) CalculatePayout(ctx context.Context, wagerWei *big.Int) (*big.Int, *big.Int, error) {
	return f.payout, f.fee, nil
}

type fakeRecorder struct {
	attempts []*models.SettlementAttempt
	resolved map[int64][]string // id -> statuses
}

func (f *fakeRecorder) Record(ctx context.Context, a *models.SettlementAttempt) (int64, error) {
	f.attempts = append(f.attempts, a)
	return int64(len(f.attempts)), nil
}

func (f *fakeRecorder) Resolve(ctx context.Context, id int64, status, txHash, errText string) error {
	if f.resolved == nil {
		f.resolved = make(map[int64][]string)
	}
	f.resolved[id] = append(f.resolved[id], status)
	return nil
}

func newTestWorker(chain ChainClient, rec AttemptRecorder) (*Worker, *[]Result) {
	var results []Result
	w := &Worker{
		chain:       chain,
		attempts:    rec,
		report:      func(r Result) { results = append(results, r) },
		maxAttempts: 2,
		baseBackoff: time.Millisecond,
		jobs:        make(chan Job, 4),
	}
	return w, &results
}

func activeRecord() *escrow.GameRecord {
	return &escrow.GameRecord{
		GameID:  7,
		State:   escrow.StateActive,
		Player1: common.HexToAddress(winnerAddr),
		Player2: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Wager:   escrow.ToWei(decimal.NewFromInt(5)),
	}
}

func testJob() Job {
	return Job{
		RoomID:        "room-1",
		GameGen:       1,
		WinnerRole:    game.RolePlayer1,
		WinnerAddress: winnerAddr,
		Wager:         decimal.NewFromInt(5),
	}
}

func TestProcessConfirmsAndPaysOut(t *testing.T) {
	wager := decimal.NewFromInt(5)
	pot := wager.Mul(decimal.NewFromInt(2))
	fee := pot.Mul(decimal.RequireFromString("0.05"))
	payout := pot.Sub(fee)

	chain := &fakeWorkChain{
		recs:    []*escrow.GameRecord{activeRecord()},
		receipt: &escrow.SubmitReceipt{TxHash: "0xbeef"},
		payout:  escrow.ToWei(payout),
		fee:     escrow.ToWei(fee),
	}
	rec := &fakeRecorder{}
	w, results := newTestWorker(chain, rec)

	w.process(context.Background(), testJob())

	require.Len(t, *results, 1)
	res := (*results)[0]
	assert.True(t, res.Confirmed)
	assert.Equal(t, "0xbeef", res.TxHash)
	assert.Equal(t, common.HexToAddress(winnerAddr).Hex(), res.WinnerAddress)

	// The winner's payout plus the house fee always equals the full pot.
	assert.True(t, res.Payout.Add(res.Fee).Equal(pot),
		"payout %s + fee %s != pot %s", res.Payout, res.Fee, pot)

	require.Len(t, chain.submitted, 1)
	assert.Equal(t, common.HexToAddress(winnerAddr), chain.submitted[0])

	require.Len(t, rec.attempts, 1)
	assert.Equal(t, models.SettleSubmitted, rec.attempts[0].Status)
	assert.Equal(t, []string{models.SettleConfirmed}, rec.resolved[1])
}

func TestProcessDrawSubmitsZeroAddress(t *testing.T) {
	chain := &fakeWorkChain{
		recs:    []*escrow.GameRecord{activeRecord()},
		receipt: &escrow.SubmitReceipt{TxHash: "0xfeed"},
		payout:  escrow.ToWei(decimal.NewFromInt(5)),
		fee:     escrow.ToWei(decimal.RequireFromString("0.5")),
	}
	w, results := newTestWorker(chain, &fakeRecorder{})

	job := testJob()
	job.Draw = true
	job.WinnerAddress = ""
	w.process(context.Background(), job)

	require.Len(t, chain.submitted, 1)
	assert.Equal(t, common.Address{}, chain.submitted[0])
	require.Len(t, *results, 1)
	assert.True(t, (*results)[0].Confirmed)
}

func TestProcessNoGameFails(t *testing.T) {
	chain := &fakeWorkChain{recErr: escrow.ErrNoGame}
	rec := &fakeRecorder{}
	w, results := newTestWorker(chain, rec)

	w.process(context.Background(), testJob())

	require.Len(t, *results, 1)
	assert.True(t, (*results)[0].Failed)
	assert.Empty(t, chain.submitted)

	// Even a dead end leaves an attempt trail.
	require.Len(t, rec.attempts, 1)
	assert.Equal(t, models.SettleFailed, rec.attempts[0].Status)
}

func TestProcessLookupRetriesTransientThenConfirms(t *testing.T) {
	chain := &fakeWorkChain{
		recErrs: []error{errors.New("rpc timeout")},
		recs:    []*escrow.GameRecord{activeRecord()},
		receipt: &escrow.SubmitReceipt{TxHash: "0xcafe"},
		payout:  escrow.ToWei(decimal.RequireFromString("9.5")),
		fee:     escrow.ToWei(decimal.RequireFromString("0.5")),
	}
	rec := &fakeRecorder{}
	w, results := newTestWorker(chain, rec)

	w.process(context.Background(), testJob())

	// One flaky lookup must not burn the job before a submit is tried.
	require.Len(t, *results, 1)
	assert.True(t, (*results)[0].Confirmed)
	require.Len(t, chain.submitted, 1)
}

func TestProcessLookupExhaustionFails(t *testing.T) {
	chain := &fakeWorkChain{
		recErrs: []error{errors.New("rpc down"), errors.New("rpc down")},
	}
	rec := &fakeRecorder{}
	w, results := newTestWorker(chain, rec)

	w.process(context.Background(), testJob())

	require.Len(t, *results, 1)
	assert.True(t, (*results)[0].Failed)
	assert.Empty(t, chain.submitted)
	require.Len(t, rec.attempts, 1)
	assert.Equal(t, models.SettleFailed, rec.attempts[0].Status)
}

func TestProcessAlreadyFinishedReconciles(t *testing.T) {
	finished := activeRecord()
	finished.State = escrow.StateFinished
	finished.Winner = common.HexToAddress(winnerAddr)

	chain := &fakeWorkChain{
		recs:   []*escrow.GameRecord{finished},
		payout: escrow.ToWei(decimal.RequireFromString("9.5")),
		fee:    escrow.ToWei(decimal.RequireFromString("0.5")),
	}
	w, results := newTestWorker(chain, &fakeRecorder{})

	w.process(context.Background(), testJob())

	// Chain already settled: nothing submitted, chain truth reported.
	assert.Empty(t, chain.submitted)
	require.Len(t, *results, 1)
	res := (*results)[0]
	assert.True(t, res.Confirmed)
	assert.Equal(t, common.HexToAddress(winnerAddr).Hex(), res.WinnerAddress)
}

func TestProcessRevertReconcilesToCancelled(t *testing.T) {
	cancelled := activeRecord()
	cancelled.State = escrow.StateCancelled

	chain := &fakeWorkChain{
		recs:      []*escrow.GameRecord{activeRecord(), cancelled},
		submitErr: escrow.ErrReverted,
	}
	rec := &fakeRecorder{}
	w, results := newTestWorker(chain, rec)

	w.process(context.Background(), testJob())

	require.Len(t, *results, 1)
	assert.True(t, (*results)[0].Cancelled)

	require.Len(t, rec.attempts, 1)
	assert.Equal(t, []string{models.SettleReverted}, rec.resolved[1])
}

func TestProcessRetriesTransientThenFails(t *testing.T) {
	chain := &fakeWorkChain{
		recs:      []*escrow.GameRecord{activeRecord()},
		submitErr: errors.New("rpc timeout"),
	}
	rec := &fakeRecorder{}
	w, results := newTestWorker(chain, rec)

	w.process(context.Background(), testJob())

	require.Len(t, *results, 1)
	assert.True(t, (*results)[0].Failed)

	require.Len(t, rec.attempts, 2)
	assert.Equal(t, 1, rec.attempts[0].Attempt)
	assert.Equal(t, 2, rec.attempts[1].Attempt)
	assert.Equal(t, []string{models.SettleFailed}, rec.resolved[1])
	assert.Equal(t, []string{models.SettleFailed}, rec.resolved[2])
}
