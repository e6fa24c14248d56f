package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	config "github.com/puntoarena/arena-services/configs"
	"github.com/puntoarena/arena-services/internal/arenasvc/broker"
	svcconfig "github.com/puntoarena/arena-services/internal/arenasvc/config"
	"github.com/puntoarena/arena-services/internal/arenasvc/db"
	"github.com/puntoarena/arena-services/internal/arenasvc/handlers"
	"github.com/puntoarena/arena-services/internal/arenasvc/registry"
	"github.com/puntoarena/arena-services/internal/arenasvc/session"
	"github.com/puntoarena/arena-services/internal/arenasvc/settle"
	"github.com/puntoarena/arena-services/internal/arenasvc/store"
	"github.com/puntoarena/arena-services/internal/chain/escrow"
	mongodb "github.com/puntoarena/arena-services/internal/db"
	nats "github.com/puntoarena/arena-services/internal/nats"
)

const SERVICE_NAME = "arena"

const roomInactivityWindow = 30 * time.Minute

func init() {
	instanceId := "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	cfg := svcconfig.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// pg connection
	dbpool, err := db.Connect(cfg.DBUrl)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	matchStore := store.NewMatchStore(dbpool)
	settlementStore := store.NewSettlementStore(dbpool)

	// mongo holds the session resume snapshots
	mdb, mongoCancel, err := mongodb.ConnectToDB()
	if err != nil {
		log.Fatalf("Failed to connect to mongo: %v", err)
	}
	defer mongoCancel()
	mongodb.CreateTTLIndexForCollection(mdb, "session_snapshots")
	snapshotStore := store.NewSnapshotStore(mdb)

	// Connect to NATS
	n, err := nats.Connect()
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}

	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	reg := registry.New(roomInactivityWindow)
	b := broker.NewBroker(n.Conn)

	// Escrow is optional; without it every room plays wager-free.
	var verifier session.ChainVerifier
	var settler session.Settler
	var manager *session.Manager

	if cfg.RPCURL != "" {
		client, err := escrow.NewClient(ctx, escrow.Config{
			RPCURL:          cfg.RPCURL,
			ContractAddress: cfg.ContractAddress,
			OracleKeyHex:    cfg.OracleKey,
		})
		if err != nil {
			log.Fatalf("Failed to connect to chain: %v", err)
		}
		verifier = client

		worker := settle.NewWorker(client, settlementStore, func(res settle.Result) {
			manager.SettlementResult(res)
		})
		settler = worker
		go worker.Run(ctx)
		log.Printf("escrow client connected to %s", cfg.RPCURL)
	} else {
		log.Warn("CHAIN_RPC_URL not set, running without escrow settlement")
	}

	manager = session.NewManager(reg, b, verifier, settler, matchStore, snapshotStore)
	defer manager.Stop()
	b.Manager = manager

	go reg.Sweep(ctx, time.Minute, manager.Expire)

	// subscribe to socket service
	sub, err := b.SubscribeSocketService()
	if err != nil {
		log.Errorf("Error: unable to subscribe to queue %v", err)
		os.Exit(0)
	}

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(manager, reg, matchStore, snapshotStore)
	h.InitAuth()
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + os.Getenv("ARENA_SERVICE_PORT"),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	sub.Unsubscribe()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
