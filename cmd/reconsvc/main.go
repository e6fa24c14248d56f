package main

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	config "github.com/puntoarena/arena-services/configs"
	svcconfig "github.com/puntoarena/arena-services/internal/arenasvc/config"
	"github.com/puntoarena/arena-services/internal/arenasvc/db"
	"github.com/puntoarena/arena-services/internal/arenasvc/models"
	"github.com/puntoarena/arena-services/internal/arenasvc/store"
	"github.com/puntoarena/arena-services/internal/chain/escrow"
)

const SERVICE_NAME = "recon"

const (
	reconInterval = time.Minute
	stuckAfter    = 30 * time.Minute
)

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	cfg := svcconfig.Load()

	// pg connection
	dbpool, err := db.Connect(cfg.DBUrl)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	matchStore := store.NewMatchStore(dbpool)
	settlementStore := store.NewSettlementStore(dbpool)

	ctx := context.Background()
	client, err := escrow.NewClient(ctx, escrow.Config{
		RPCURL:          cfg.RPCURL,
		ContractAddress: cfg.ContractAddress,
	})
	if err != nil {
		log.Fatalf("Failed to connect to chain: %v", err)
	}
	log.Printf("escrow client connected to %s", cfg.RPCURL)

	ticker := time.NewTicker(reconInterval)
	defer ticker.Stop()

	for range ticker.C {
		if err := reconcile(ctx, matchStore, settlementStore, client); err != nil {
			log.Errorf("reconcile pass failed: %v", err)
		}
	}
}

// reconcile repairs stored match rows against on-chain escrow truth. The
// chain is authoritative for everything money related; the row only ever
// moves toward what the contract already says.
func reconcile(ctx context.Context, matches *store.MatchStore, settlements *store.SettlementStore, client *escrow.Client) error {
	stuck, err := matches.ListNeedingReconciliation(ctx, stuckAfter)
	if err != nil {
		return err
	}

	for _, m := range stuck {
		if m.Status == models.RoomSettlementFailed {
			tried, err := settlements.CountForGame(ctx, m.RoomID, m.GameGen)
			if err != nil {
				log.Errorf("room %s: count settlement attempts: %v", m.RoomID, err)
			} else {
				log.Infof("room %s: settlement failed after %d recorded attempts, checking chain", m.RoomID, tried)
			}
		}

		rec, err := client.GetGameByRoomID(ctx, m.RoomID)
		if err != nil {
			if errors.Is(err, escrow.ErrNoGame) {
				// Never escrowed: nothing to settle, the room just died.
				if m.Status == models.RoomSettlementFailed {
					log.Warnf("room %s marked settlement_failed but has no on-chain game", m.RoomID)
					continue
				}
				if err := matches.UpdateStatus(ctx, m.RoomID, models.RoomCancelled, ""); err != nil {
					log.Errorf("room %s: update status: %v", m.RoomID, err)
				}
				continue
			}
			log.Errorf("room %s: chain lookup: %v", m.RoomID, err)
			continue
		}

		switch rec.State {
		case escrow.StateFinished:
			winner := rec.Winner.Hex()
			if err := matches.UpdateStatus(ctx, m.RoomID, models.RoomFinished, winner); err != nil {
				log.Errorf("room %s: update status: %v", m.RoomID, err)
				continue
			}
			log.Infof("room %s reconciled to finished, winner %s", m.RoomID, winner)

		case escrow.StateCancelled:
			if err := matches.UpdateStatus(ctx, m.RoomID, models.RoomCancelled, ""); err != nil {
				log.Errorf("room %s: update status: %v", m.RoomID, err)
				continue
			}
			log.Infof("room %s reconciled to cancelled", m.RoomID)

		default:
			// Still PENDING or ACTIVE on-chain. Refund is player initiated;
			// we only surface when it became claimable.
			claimable, err := client.CanClaimRefund(ctx, rec.GameID)
			if err != nil {
				log.Errorf("room %s: refund check: %v", m.RoomID, err)
				continue
			}
			if claimable {
				log.Infof("room %s: escrow %s, refund claimable", m.RoomID, rec.State)
			}
		}
	}

	return nil
}
