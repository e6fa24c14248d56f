package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/puntoarena/arena-services/internal/arenasvc/models"
	"github.com/puntoarena/arena-services/internal/arenasvc/registry"
	"github.com/puntoarena/arena-services/internal/arenasvc/session"
)

// MatchFinder reads persisted match records for the REST surface.
type MatchFinder interface {
	GetByRoomID(ctx context.Context, roomID string) (*models.MatchRecord, error)
}

// SnapshotFinder reads the newest resume hint for a wallet address.
type SnapshotFinder interface {
	Find(ctx context.Context, address string) (*models.SessionSnapshot, error)
}

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	manager   *session.Manager
	reg       *registry.Registry
	matches   MatchFinder
	snapshots SnapshotFinder
}

func NewHandler(manager *session.Manager, reg *registry.Registry, matches MatchFinder, snapshots SnapshotFinder) *Handler {
	return &Handler{manager: manager, reg: reg, matches: matches, snapshots: snapshots}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

// CreateRoomHandler opens a room over REST; the creator still joins over
// the socket like everyone else.
func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wager string `json:"wager"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid request body"})
		return
	}

	wager := decimal.Zero
	if req.Wager != "" {
		var err error
		wager, err = decimal.NewFromString(req.Wager)
		if err != nil || wager.IsNegative() {
			h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "wager must be a non-negative decimal"})
			return
		}
	}

	room, err := h.manager.CreateRoom(wager)
	if err != nil {
		log.Errorf("create room failed: %v", err)
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "unable to create room"})
		return
	}

	h.CreateResponse(w, Response{
		Message: "room created",
		Code:    http.StatusCreated,
		Data: map[string]string{
			"room_id":     room.ID,
			"wager":       room.Wager.String(),
			"invite_link": os.Getenv("WEB_BASE_URL") + "/room/" + room.ID,
		},
	})
}

// ListRoomsHandler returns rooms still waiting for a second player.
func (h *Handler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	type roomView struct {
		RoomId  string `json:"room_id"`
		Wager   string `json:"wager"`
		Players int    `json:"players"`
	}

	waiting := h.reg.Waiting()
	views := make([]roomView, 0, len(waiting))
	for _, room := range waiting {
		views = append(views, roomView{RoomId: room.ID, Wager: room.Wager.String(), Players: room.Players})
	}

	h.CreateResponse(w, Response{Code: http.StatusOK, Data: views})
}

// GetMatchHandler returns the persisted record for a room, including the
// settled winner and tx hash once settlement ran.
func (h *Handler) GetMatchHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" || h.matches == nil {
		h.CreateResponse(w, Response{Code: http.StatusNotFound, Error: "match not found"})
		return
	}

	m, err := h.matches.GetByRoomID(r.Context(), roomID)
	if err != nil {
		log.Errorf("get match %s failed: %v", roomID, err)
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "unable to load match"})
		return
	}
	if m == nil {
		h.CreateResponse(w, Response{Code: http.StatusNotFound, Error: "match not found"})
		return
	}

	h.CreateResponse(w, Response{Code: http.StatusOK, Data: m})
}

// GetSessionHandler returns the newest resume hint for a wallet address,
// so a fresh page load can offer to rejoin the room it was in.
func (h *Handler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if address == "" || h.snapshots == nil {
		h.CreateResponse(w, Response{Code: http.StatusNotFound, Error: "no session found"})
		return
	}

	snap, err := h.snapshots.Find(r.Context(), address)
	if err != nil {
		log.Errorf("find session for %s failed: %v", address, err)
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "unable to load session"})
		return
	}
	if snap == nil {
		h.CreateResponse(w, Response{Code: http.StatusNotFound, Error: "no session found"})
		return
	}

	h.CreateResponse(w, Response{Code: http.StatusOK, Data: snap})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	rsp := Response{
		Message: "arena service is running at port " + os.Getenv("SERVICE_PORT"),
		Code:    200,
		Data:    nil,
	}
	json.NewEncoder(w).Encode(rsp)
}
