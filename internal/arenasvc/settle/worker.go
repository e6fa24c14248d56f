package settle

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/puntoarena/arena-services/internal/arenasvc/game"
	"github.com/puntoarena/arena-services/internal/arenasvc/models"
	"github.com/puntoarena/arena-services/internal/chain/escrow"
)

// ChainClient is the slice of the escrow client the worker needs.
type ChainClient interface {
	GetGameByRoomID(ctx context.Context, roomID string) (*escrow.GameRecord, error)
	SubmitResult(ctx context.Context, gameID uint64, winner common.Address) (*escrow.SubmitReceipt, error)
	CalculatePayout(ctx context.Context, wagerWei *big.Int) (payout, fee *big.Int, err error)
}

// AttemptRecorder persists settlement attempts; a finished game must never
// be dropped without at least one recorded attempt.
type AttemptRecorder interface {
	Record(ctx context.Context, a *models.SettlementAttempt) (int64, error)
	Resolve(ctx context.Context, id int64, status, txHash, errText string) error
}

// Job is one settlement request, keyed by room and game generation.
type Job struct {
	RoomID        string
	GameGen       int
	WinnerRole    game.Role
	WinnerAddress string
	Draw          bool
	Wager         decimal.Decimal
}

// Result is what the worker reports back into the room's queue. Only a
// confirmed result may be shown to players as final.
type Result struct {
	Job

	Confirmed bool // chain says FINISHED, winner paid
	Cancelled bool // chain says CANCELLED, deposits refunded
	Failed    bool // retry ceiling hit, room needs manual reconciliation

	WinnerAddress string // chain truth, may differ from the job on reconcile
	TxHash        string
	Payout        decimal.Decimal
	Fee           decimal.Decimal
	Message       string
}

const (
	defaultMaxAttempts = 5
	defaultBaseBackoff = 2 * time.Second
)

// Worker signs and submits results through the oracle credential held by
// the escrow client it was constructed with. Jobs for different rooms run
// independently; a failure settles only its own room.
type Worker struct {
	chain    ChainClient
	attempts AttemptRecorder
	report   func(Result)

	maxAttempts int
	baseBackoff time.Duration

	jobs chan Job
}

func NewWorker(chain ChainClient, attempts AttemptRecorder, report func(Result)) *Worker {
	return &Worker{
		chain:       chain,
		attempts:    attempts,
		report:      report,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		jobs:        make(chan Job, 64),
	}
}

// Settle queues a job; safe from any goroutine.
func (w *Worker) Settle(job Job) {
	w.jobs <- job
}

// Run consumes jobs until the context ends. Each job gets its own
// goroutine so a slow chain wait on one room never stalls another.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			go w.process(ctx, job)
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	rec, err := w.lookup(ctx, job)
	if err != nil {
		if errors.Is(err, escrow.ErrNoGame) {
			// Finished game with no escrow entry: nothing to pay out, but
			// the attempt trail must still exist.
			w.recordTerminal(ctx, job, models.SettleFailed, "", "no on-chain game")
			w.report(Result{Job: job, Failed: true, Message: "no on-chain game for room"})
			return
		}
		log.Errorf("settle %s: chain lookup failed: %v", job.RoomID, err)
		w.recordTerminal(ctx, job, models.SettleFailed, "", err.Error())
		w.report(Result{Job: job, Failed: true, Message: err.Error()})
		return
	}

	// Chain may already be past us: a refund raced the finish, or a prior
	// submit landed. Chain truth wins without sending anything.
	if rec.State.Terminal() {
		w.reconcile(ctx, job, rec, "")
		return
	}

	winner := common.Address{} // zero address signals a draw split
	if !job.Draw {
		winner = common.HexToAddress(job.WinnerAddress)
	}

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		attemptID, recErr := w.attempts.Record(ctx, &models.SettlementAttempt{
			RoomID:        job.RoomID,
			GameGen:       job.GameGen,
			Attempt:       attempt,
			WinnerAddress: winner.Hex(),
			Status:        models.SettleSubmitted,
		})
		if recErr != nil {
			log.Errorf("settle %s: record attempt %d: %v", job.RoomID, attempt, recErr)
		}

		receipt, err := w.chain.SubmitResult(ctx, rec.GameID, winner)
		if err == nil {
			w.resolve(ctx, attemptID, models.SettleConfirmed, receipt.TxHash, "")
			payout, fee := w.payout(ctx, rec.Wager)
			log.Infof("settle %s: confirmed in tx %s", job.RoomID, receipt.TxHash)
			w.report(Result{
				Job:           job,
				Confirmed:     true,
				WinnerAddress: winner.Hex(),
				TxHash:        receipt.TxHash,
				Payout:        payout,
				Fee:           fee,
			})
			return
		}

		if errors.Is(err, escrow.ErrReverted) {
			w.resolve(ctx, attemptID, models.SettleReverted, "", err.Error())
			log.Warnf("settle %s: reverted, reconciling against chain: %v", job.RoomID, err)
			w.reconcileAfterRevert(ctx, job, err.Error())
			return
		}

		// Transient RPC/gas trouble: back off and try again.
		w.resolve(ctx, attemptID, models.SettleFailed, "", err.Error())
		backoff := w.baseBackoff << (attempt - 1)
		log.Warnf("settle %s: attempt %d/%d failed (%v), retrying in %s",
			job.RoomID, attempt, w.maxAttempts, err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}

	log.Errorf("settle %s: retry ceiling reached, surfacing for manual reconciliation", job.RoomID)
	w.report(Result{Job: job, Failed: true, Message: "settlement retry ceiling reached"})
}

// lookup reads the escrow entry with the same bounded backoff the submit
// loop uses; a flaky RPC node must not fail a funds-bearing job before a
// single submit was even tried. ErrNoGame is definitive, never retried.
func (w *Worker) lookup(ctx context.Context, job Job) (*escrow.GameRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		rec, err := w.chain.GetGameByRoomID(ctx, job.RoomID)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, escrow.ErrNoGame) {
			return nil, err
		}

		lastErr = err
		backoff := w.baseBackoff << (attempt - 1)
		log.Warnf("settle %s: lookup %d/%d failed (%v), retrying in %s",
			job.RoomID, attempt, w.maxAttempts, err, backoff)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

// reconcileAfterRevert re-queries chain state and reports whatever the
// chain says happened; on any conflict the chain wins.
func (w *Worker) reconcileAfterRevert(ctx context.Context, job Job, revertMsg string) {
	rec, err := w.chain.GetGameByRoomID(ctx, job.RoomID)
	if err != nil {
		w.report(Result{Job: job, Failed: true, Message: "revert + lookup failed: " + err.Error()})
		return
	}
	if !rec.State.Terminal() {
		// Reverted yet still ACTIVE on-chain: likely an oracle credential
		// problem. That halts settlement for this room only.
		w.report(Result{Job: job, Failed: true, Message: revertMsg})
		return
	}
	w.reconcile(ctx, job, rec, revertMsg)
}

func (w *Worker) reconcile(ctx context.Context, job Job, rec *escrow.GameRecord, note string) {
	switch rec.State {
	case escrow.StateFinished:
		payout, fee := w.payout(ctx, rec.Wager)
		w.report(Result{
			Job:           job,
			Confirmed:     true,
			WinnerAddress: rec.Winner.Hex(),
			Payout:        payout,
			Fee:           fee,
			Message:       note,
		})
	case escrow.StateCancelled:
		w.report(Result{Job: job, Cancelled: true, Message: note})
	}
}

func (w *Worker) payout(ctx context.Context, wagerWei *big.Int) (decimal.Decimal, decimal.Decimal) {
	payout, fee, err := w.chain.CalculatePayout(ctx, wagerWei)
	if err != nil {
		log.Warnf("calculatePayout failed, reporting pot only: %v", err)
		return escrow.FromWei(new(big.Int).Mul(wagerWei, big.NewInt(2))), decimal.Zero
	}
	return escrow.FromWei(payout), escrow.FromWei(fee)
}

func (w *Worker) recordTerminal(ctx context.Context, job Job, status, txHash, errText string) {
	_, err := w.attempts.Record(ctx, &models.SettlementAttempt{
		RoomID:        job.RoomID,
		GameGen:       job.GameGen,
		Attempt:       1,
		WinnerAddress: job.WinnerAddress,
		TxHash:        txHash,
		Status:        status,
		Error:         errText,
	})
	if err != nil {
		log.Errorf("settle %s: record terminal attempt: %v", job.RoomID, err)
	}
}

func (w *Worker) resolve(ctx context.Context, id int64, status, txHash, errText string) {
	if err := w.attempts.Resolve(ctx, id, status, txHash, errText); err != nil {
		log.Errorf("settle: resolve attempt %d: %v", id, err)
	}
}
