package session

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/puntoarena/arena-services/internal/arenasvc/game"
	"github.com/puntoarena/arena-services/internal/arenasvc/models"
	"github.com/puntoarena/arena-services/internal/arenasvc/registry"
	"github.com/puntoarena/arena-services/internal/arenasvc/settle"
	"github.com/puntoarena/arena-services/internal/chain/escrow"
	"github.com/puntoarena/arena-services/internal/comm"
)

// moveCooldown is the per-identity fixed window between accepted moves.
// It is a UX guard against click-spam; turn ownership is the real gate.
const moveCooldown = 500 * time.Millisecond

const chainVerifyTimeout = 30 * time.Second

// Publisher pushes events out to clients; implementations publish over
// NATS to the socket service.
type Publisher interface {
	ToSocket(socketID, msgType string, payload interface{})
	ToRoom(roomID, msgType string, payload interface{})
}

// ChainVerifier is the read side of the escrow client used to confirm
// wagers before any funds-bearing action.
type ChainVerifier interface {
	GetGameByRoomID(ctx context.Context, roomID string) (*escrow.GameRecord, error)
}

// Settler accepts settlement jobs for terminal games.
type Settler interface {
	Settle(job settle.Job)
}

// MatchRecorder persists the room's match record.
type MatchRecorder interface {
	Upsert(ctx context.Context, m *models.MatchRecord) error
}

// SnapshotSaver keeps the non-authoritative resume hints; Delete clears
// a room's hints once the room itself is gone.
type SnapshotSaver interface {
	Save(ctx context.Context, snap *models.SessionSnapshot) error
	Delete(ctx context.Context, roomID string) error
}

type reqKind int

const (
	reqJoin reqKind = iota
	reqWagerConfirmed
	reqMove
	reqRematch
	reqGetState
	reqDisconnect
	reqChainOutcome
	reqSettleResult
)

type chainOutcome struct {
	rec *escrow.GameRecord
	err error
}

type request struct {
	kind     reqKind
	socketID string
	join     *comm.JoinRoomRequest
	move     *comm.MoveRequest
	chain    *chainOutcome
	settle   *settle.Result
}

// Session is the per-room actor. Every mutating request funnels through
// its single queue, so a reconnect can never race a move on the same
// room; distinct rooms run fully independently.
type Session struct {
	room *models.Room

	reg       *registry.Registry
	pub       Publisher
	chain     ChainVerifier
	settler   Settler
	matches   MatchRecorder
	snapshots SnapshotSaver

	requests chan request
	stop     chan struct{}

	lastMove    map[string]time.Time // address -> last accepted move
	rematchWant map[game.Role]bool
	settleArmed map[int]bool // game generation -> finish handled
	settleGen   int          // generation the escrow settles; 0 until dispatched

	wagerConfirmed bool
	verifying      bool
}

func New(room *models.Room, reg *registry.Registry, pub Publisher, chain ChainVerifier,
	settler Settler, matches MatchRecorder, snapshots SnapshotSaver) *Session {
	s := &Session{
		room:        room,
		reg:         reg,
		pub:         pub,
		chain:       chain,
		settler:     settler,
		matches:     matches,
		snapshots:   snapshots,
		requests:    make(chan request, 32),
		stop:        make(chan struct{}),
		lastMove:    make(map[string]time.Time),
		rematchWant: make(map[game.Role]bool),
		settleArmed: make(map[int]bool),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case <-s.stop:
			return
		case req := <-s.requests:
			s.handle(req)
		}
	}
}

// Stop shuts the actor down; pending requests are dropped.
func (s *Session) Stop() {
	close(s.stop)
}

func (s *Session) enqueue(req request) {
	select {
	case s.requests <- req:
	case <-s.stop:
	}
}

// Join seats or re-attaches an identity.
func (s *Session) Join(socketID string, req *comm.JoinRoomRequest) {
	s.enqueue(request{kind: reqJoin, socketID: socketID, join: req})
}

// WagerConfirmed is the client's hint that both deposits landed; it is
// verified against the chain before anything starts.
func (s *Session) WagerConfirmed(socketID string) {
	s.enqueue(request{kind: reqWagerConfirmed, socketID: socketID})
}

func (s *Session) Move(socketID string, req *comm.MoveRequest) {
	s.enqueue(request{kind: reqMove, socketID: socketID, move: req})
}

func (s *Session) Rematch(socketID string) {
	s.enqueue(request{kind: reqRematch, socketID: socketID})
}

func (s *Session) GetState(socketID string) {
	s.enqueue(request{kind: reqGetState, socketID: socketID})
}

func (s *Session) Disconnect(socketID string) {
	s.enqueue(request{kind: reqDisconnect, socketID: socketID})
}

// SettlementResult feeds the worker's outcome back into the room queue.
func (s *Session) SettlementResult(res settle.Result) {
	s.enqueue(request{kind: reqSettleResult, settle: &res})
}

func (s *Session) handle(req request) {
	switch req.kind {
	case reqJoin:
		s.handleJoin(req.socketID, req.join)
	case reqWagerConfirmed:
		s.handleWagerConfirmed(req.socketID)
	case reqMove:
		s.handleMove(req.socketID, req.move)
	case reqRematch:
		s.handleRematch(req.socketID)
	case reqGetState:
		s.handleGetState(req.socketID)
	case reqDisconnect:
		s.handleDisconnect(req.socketID)
	case reqChainOutcome:
		s.handleChainOutcome(req.chain)
	case reqSettleResult:
		s.handleSettlementResult(req.settle)
	}
}

func (s *Session) handleJoin(socketID string, join *comm.JoinRoomRequest) {
	player, rejoined, err := s.reg.AddPlayer(s.room.ID, join.Address, join.Name, socketID)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrRoomFull):
			s.sendError(socketID, comm.CodeRoomFull, "room is full")
		case errors.Is(err, registry.ErrRoomNotFound):
			s.sendError(socketID, comm.CodeRoomNotFound, "room not found or expired")
		default:
			s.sendError(socketID, comm.CodeInvalidPayload, err.Error())
		}
		return
	}

	s.saveSnapshot(player)

	if rejoined {
		log.Infof("room %s: %s reconnected as %s", s.room.ID, player.Address, player.Role)
		s.pub.ToRoom(s.room.ID, "player_status", comm.PlayerStatus{
			Role:   string(player.Role),
			Name:   player.Name,
			Status: "reconnected",
		})

		if s.room.Game != nil {
			s.pub.ToSocket(socketID, "game_state_restored", s.stateFor(player))
			return
		}
		// No game yet: a reconnect may be what completes the start
		// conditions after a page refresh mid-deposit.
		s.maybeStart()
		if s.room.Game != nil {
			s.pub.ToSocket(socketID, "game_state_restored", s.stateFor(player))
		}
		return
	}

	count := 0
	for _, p := range s.room.Players {
		if p != nil {
			count++
		}
	}

	s.pub.ToRoom(s.room.ID, "player_joined", comm.PlayerJoined{
		Role:         string(player.Role),
		Name:         player.Name,
		Address:      player.Address,
		PlayersCount: count,
		Wager:        s.room.Wager.String(),
	})
	s.pub.ToRoom(s.room.ID, "player_status", comm.PlayerStatus{
		Role:   string(player.Role),
		Name:   player.Name,
		Status: "connected",
	})

	s.maybeStart()
}

func (s *Session) handleWagerConfirmed(socketID string) {
	if s.room.Terminal() {
		return
	}
	if s.room.Game != nil {
		// Duplicate confirmation after start: idempotent, never a second game.
		return
	}

	if !s.wagered() {
		s.wagerConfirmed = true
		s.maybeStart()
		return
	}

	s.verifyWager()
}

// wagered reports whether this room has funds on the line.
func (s *Session) wagered() bool {
	return s.room.Wager.IsPositive() && s.chain != nil
}

// verifyWager runs the chain read off the actor goroutine and feeds the
// outcome back as a message; the decision itself happens on the actor.
func (s *Session) verifyWager() {
	if s.verifying {
		return
	}
	s.verifying = true

	roomID := s.room.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), chainVerifyTimeout)
		defer cancel()
		rec, err := s.chain.GetGameByRoomID(ctx, roomID)
		s.enqueue(request{kind: reqChainOutcome, chain: &chainOutcome{rec: rec, err: err}})
	}()
}

func (s *Session) handleChainOutcome(out *chainOutcome) {
	s.verifying = false

	if s.room.Terminal() || s.room.Game != nil {
		return
	}

	if out.err != nil {
		log.Warnf("room %s: wager verification failed: %v", s.room.ID, out.err)
		s.pub.ToRoom(s.room.ID, "waiting_for_wager", comm.WaitingForWager{
			Message: "Waiting for blockchain confirmation...",
		})
		return
	}

	rec := out.rec
	if rec.State != escrow.StateActive || !rec.BothDeposited() {
		s.pub.ToRoom(s.room.ID, "waiting_for_wager", comm.WaitingForWager{
			Message: "Waiting for both wager deposits...",
		})
		return
	}

	// The depositors must be the seated identities.
	for _, p := range s.room.Players {
		if p != nil && !rec.HasPlayer(p.Address) {
			log.Warnf("room %s: %s is seated but did not deposit", s.room.ID, p.Address)
			s.pub.ToRoom(s.room.ID, "error", comm.ErrorPayload{
				Code:    comm.CodeIdentityMismatch,
				Message: "on-chain game participants mismatch",
			})
			return
		}
	}

	s.wagerConfirmed = true
	s.room.ChainGameID = rec.GameID
	log.Infof("room %s: wager confirmed on-chain, game id %d", s.room.ID, rec.GameID)
	s.maybeStart()
}

// maybeStart begins the game once both seats are filled and the wager is
// settled as confirmed. Double triggers are harmless: the Game == nil
// guard means exactly one start per generation.
func (s *Session) maybeStart() {
	if s.room.Game != nil || s.room.Terminal() {
		return
	}

	p1 := s.room.Players[game.RolePlayer1]
	p2 := s.room.Players[game.RolePlayer2]
	if p1 == nil || p2 == nil {
		return
	}

	if s.wagered() && !s.wagerConfirmed {
		s.room.SetStatus(models.RoomWaitingWagerConfirm)
		s.pub.ToRoom(s.room.ID, "waiting_for_wager", comm.WaitingForWager{
			Message: "Waiting for blockchain confirmation...",
		})
		s.verifyWager()
		return
	}

	s.startGame()
}

func (s *Session) startGame() {
	s.room.GameGen++
	seed := game.Seed(s.room.ID, s.room.GameGen)
	s.room.Game = game.New(seed)
	s.room.SetStatus(models.RoomActive)
	s.rematchWant = make(map[game.Role]bool)
	s.lastMove = make(map[string]time.Time)

	log.Infof("room %s: game %d started, seed %d, %s first",
		s.room.ID, s.room.GameGen, seed, s.room.Game.Turn())

	for _, p := range s.room.Players {
		if p != nil && p.Connected {
			s.pub.ToSocket(p.SocketID, "game_start", s.stateFor(p))
		}
		s.saveSnapshot(p)
	}

	s.recordMatch()
}

func (s *Session) handleMove(socketID string, mv *comm.MoveRequest) {
	player := s.room.PlayerBySocket(socketID)
	if player == nil {
		s.sendError(socketID, comm.CodeIdentityMismatch, "not a player in this room")
		return
	}

	g := s.room.Game
	if g == nil {
		s.pub.ToSocket(socketID, "waiting_for_wager", comm.WaitingForWager{Message: "Game not started yet"})
		return
	}
	if g.Result() != nil {
		s.sendError(socketID, comm.CodeIllegalMove, "game is already over")
		return
	}

	if player.Role != g.Turn() {
		s.sendError(socketID, comm.CodeNotYourTurn, "not your turn")
		return
	}

	now := time.Now()
	if last, ok := s.lastMove[player.Address]; ok && now.Sub(last) < moveCooldown {
		s.sendError(socketID, comm.CodeRateLimited, "too fast, wait a moment")
		return
	}

	card := game.Card{Value: mv.CardValue, Color: game.Color(mv.CardColor)}
	if err := g.Place(player.Role, card, mv.Row, mv.Col); err != nil {
		s.sendError(socketID, comm.CodeIllegalMove, "invalid move: "+err.Error())
		return
	}

	s.lastMove[player.Address] = now
	player.LastSeen = now
	s.touch()

	result := g.Result()

	made := comm.MoveMade{
		Player:       string(player.Role),
		Card:         comm.Card{Value: card.Value, Color: string(card.Color)},
		Position:     [2]int{mv.Row, mv.Col},
		Board:        s.boardView(),
		Player1Cards: cardViews(g.Hand(game.RolePlayer1)),
		Player2Cards: cardViews(g.Hand(game.RolePlayer2)),
	}
	if result == nil {
		made.NextTurn = string(g.Turn())
	} else if !result.Draw {
		made.Winner = string(result.Winner)
	}
	s.pub.ToRoom(s.room.ID, "move_made", made)

	if result != nil {
		s.finishGame(result)
	}
}

// finishGame transitions the room and arms settlement exactly once per
// room: the escrow funds only the first game, so rematch generations
// end locally with no payout instead of touching the chain again.
func (s *Session) finishGame(result *game.Result) {
	s.room.SetStatus(models.RoomFinished)

	gen := s.room.GameGen
	if s.settleArmed[gen] {
		return
	}
	s.settleArmed[gen] = true

	var winner *models.Player
	if !result.Draw {
		winner = s.room.Players[result.Winner]
	}

	if !s.wagered() || s.settler == nil || s.settleGen != 0 {
		end := comm.GameEnd{Reason: result.Reason, Payout: "0", Fee: "0"}
		if winner != nil {
			end.Winner = string(winner.Role)
		}
		s.pub.ToRoom(s.room.ID, "game_end", end)
		s.recordMatch()
		return
	}

	// A win is shown as pending until the chain confirms the payout.
	s.settleGen = gen
	end := comm.GameEnd{Reason: result.Reason, Payout: "0", Fee: "0", Pending: true}
	job := settle.Job{
		RoomID:  s.room.ID,
		GameGen: gen,
		Wager:   s.room.Wager,
		Draw:    result.Draw,
	}
	if winner != nil {
		end.Winner = string(winner.Role)
		job.WinnerRole = winner.Role
		job.WinnerAddress = winner.Address
	}
	s.pub.ToRoom(s.room.ID, "game_end", end)
	s.recordMatch()

	log.Infof("room %s: game %d finished (%s), settlement dispatched", s.room.ID, gen, result.Reason)
	s.settler.Settle(job)
}

func (s *Session) handleSettlementResult(res *settle.Result) {
	if res.GameGen != s.room.GameGen {
		log.Warnf("room %s: stale settlement result for game %d (now %d)",
			s.room.ID, res.GameGen, s.room.GameGen)
		return
	}

	switch {
	case res.Confirmed:
		s.room.SetStatus(models.RoomFinished)
		end := comm.GameEnd{
			Payout: res.Payout.String(),
			Fee:    res.Fee.String(),
			TxHash: res.TxHash,
		}
		if g := s.room.Game; g != nil && g.Result() != nil {
			end.Reason = g.Result().Reason
		}
		// Chain truth wins: resolve the paid address back to a seat, even
		// if it is not the winner we submitted.
		if p := s.room.PlayerByAddress(res.WinnerAddress); p != nil {
			end.Winner = string(p.Role)
		}
		s.pub.ToRoom(s.room.ID, "game_end", end)
		log.Infof("room %s: settlement confirmed, payout %s fee %s tx %s",
			s.room.ID, res.Payout, res.Fee, res.TxHash)

	case res.Cancelled:
		s.room.SetStatus(models.RoomCancelled)
		s.pub.ToRoom(s.room.ID, "game_end", comm.GameEnd{
			Reason: "cancelled",
			Payout: "0",
			Fee:    "0",
		})
		log.Warnf("room %s: escrow cancelled on-chain, room reconciled", s.room.ID)

	case res.Failed:
		s.room.SetStatus(models.RoomSettlementFailed)
		s.pub.ToRoom(s.room.ID, "settlement_failed", comm.SettlementFailed{
			RoomId:  s.room.ID,
			Message: res.Message,
		})
		log.Errorf("room %s: settlement failed: %s", s.room.ID, res.Message)
	}

	s.recordMatch()
}

func (s *Session) handleDisconnect(socketID string) {
	player := s.room.PlayerBySocket(socketID)
	if player == nil {
		return
	}

	// Never mutates game or turn state; the seat survives for reconnect.
	player.Connected = false
	player.LastSeen = time.Now()

	s.pub.ToRoom(s.room.ID, "player_status", comm.PlayerStatus{
		Role:   string(player.Role),
		Name:   player.Name,
		Status: "disconnected",
	})
}

func (s *Session) handleRematch(socketID string) {
	player := s.room.PlayerBySocket(socketID)
	if player == nil {
		s.sendError(socketID, comm.CodeIdentityMismatch, "not a player in this room")
		return
	}

	if s.room.StatusNow() == models.RoomSettlementFailed {
		s.sendError(socketID, comm.CodeSettlementFailed, "room awaits settlement reconciliation")
		return
	}
	if s.room.Game == nil || s.room.Game.Result() == nil {
		s.sendError(socketID, comm.CodeIllegalMove, "game is not finished")
		return
	}

	s.rematchWant[player.Role] = true
	votes := len(s.rematchWant)

	if !s.rematchWant[game.RolePlayer1] || !s.rematchWant[game.RolePlayer2] {
		s.pub.ToRoom(s.room.ID, "rematch_pending", comm.RematchPending{
			Role:  string(player.Role),
			Votes: votes,
		})
		return
	}

	log.Infof("room %s: rematch agreed, starting game %d", s.room.ID, s.room.GameGen+1)
	s.room.Game = nil
	s.room.SetStatus(models.RoomWaitingPlayers)
	s.startGame()
}

func (s *Session) handleGetState(socketID string) {
	player := s.room.PlayerBySocket(socketID)
	if player == nil {
		s.sendError(socketID, comm.CodeIdentityMismatch, "not a player in this room")
		return
	}
	if s.room.Game == nil {
		s.pub.ToSocket(socketID, "waiting_for_wager", comm.WaitingForWager{Message: "Game not started yet"})
		return
	}
	s.pub.ToSocket(socketID, "game_state_restored", s.stateFor(player))
}

// stateFor builds the full snapshot with the receiver's own seat filled
// in. The same builder serves game_start and reconnect restore, so a
// restored state is identical to what a connected client already holds.
func (s *Session) stateFor(p *models.Player) comm.GameState {
	g := s.room.Game

	state := comm.GameState{
		Status:      s.room.StatusNow(),
		Board:       s.boardView(),
		CurrentTurn: string(g.Turn()),
		Wager:       s.room.Wager.String(),
		MoveCount:   g.MoveCount(),
		YourRole:    string(p.Role),
		YourCards:   cardViews(g.Hand(p.Role)),
	}

	if p1 := s.room.Players[game.RolePlayer1]; p1 != nil {
		state.Player1 = comm.HandView{Name: p1.Name, Cards: cardViews(g.Hand(game.RolePlayer1))}
	}
	if p2 := s.room.Players[game.RolePlayer2]; p2 != nil {
		state.Player2 = comm.HandView{Name: p2.Name, Cards: cardViews(g.Hand(game.RolePlayer2))}
	}

	return state
}

func (s *Session) boardView() [][]*comm.BoardCell {
	g := s.room.Game
	view := make([][]*comm.BoardCell, game.BoardSize)
	for r := 0; r < game.BoardSize; r++ {
		view[r] = make([]*comm.BoardCell, game.BoardSize)
		for c := 0; c < game.BoardSize; c++ {
			if cell := g.Cell(r, c); cell != nil {
				view[r][c] = &comm.BoardCell{
					Card:   cell.Value,
					Player: string(cell.Owner),
					Color:  string(cell.Color),
				}
			}
		}
	}
	return view
}

func cardViews(cards []game.Card) []comm.Card {
	out := make([]comm.Card, len(cards))
	for i, c := range cards {
		out[i] = comm.Card{Value: c.Value, Color: string(c.Color)}
	}
	return out
}

func (s *Session) sendError(socketID, code, message string) {
	s.pub.ToSocket(socketID, "error", comm.ErrorPayload{Code: code, Message: message})
}

func (s *Session) touch() {
	s.room.Touch()
}

// recordMatch persists off the actor goroutine; the store is best-effort
// and never gates play.
func (s *Session) recordMatch() {
	if s.matches == nil {
		return
	}

	rec := &models.MatchRecord{
		RoomID:      s.room.ID,
		Wager:       s.room.Wager,
		Status:      s.room.StatusNow(),
		GameGen:     s.room.GameGen,
		ChainGameID: int64(s.room.ChainGameID),
	}
	if g := s.room.Game; g != nil && g.Result() != nil && !g.Result().Draw {
		rec.WinnerRole = string(g.Result().Winner)
		if p := s.room.Players[g.Result().Winner]; p != nil {
			rec.WinnerAddress = p.Address
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.matches.Upsert(ctx, rec); err != nil {
			log.Errorf("room %s: persist match record: %v", rec.RoomID, err)
		}
	}()
}

func (s *Session) saveSnapshot(p *models.Player) {
	if s.snapshots == nil || p == nil {
		return
	}

	snap := &models.SessionSnapshot{
		RoomID:  s.room.ID,
		Address: p.Address,
		Role:    string(p.Role),
		Wager:   s.room.Wager.String(),
		Status:  s.room.StatusNow(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.snapshots.Save(ctx, snap); err != nil {
			log.Errorf("room %s: save session snapshot: %v", snap.RoomID, err)
		}
	}()
}
