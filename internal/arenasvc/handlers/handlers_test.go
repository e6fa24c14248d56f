package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puntoarena/arena-services/internal/arenasvc/models"
)

type fakeMatches struct {
	rec *models.MatchRecord
	err error
}

func (f *fakeMatches) GetByRoomID(ctx context.Context, roomID string) (*models.MatchRecord, error) {
	return f.rec, f.err
}

type fakeSnapshots struct {
	snap *models.SessionSnapshot
	err  error
}

func (f *fakeSnapshots) Find(ctx context.Context, address string) (*models.SessionSnapshot, error) {
	return f.snap, f.err
}

func newTestRouter(matches MatchFinder, snapshots SnapshotFinder) *chi.Mux {
	h := &Handler{matches: matches, snapshots: snapshots}
	r := chi.NewRouter()
	r.Get("/v1/rooms/{roomID}/match", h.GetMatchHandler)
	r.Get("/v1/sessions/{address}", h.GetSessionHandler)
	return r
}

func TestGetMatchReturnsRecord(t *testing.T) {
	matches := &fakeMatches{rec: &models.MatchRecord{
		RoomID:        "abc123",
		Wager:         decimal.NewFromInt(5),
		Status:        models.RoomFinished,
		GameGen:       1,
		WinnerRole:    "player1",
		WinnerAddress: "0x1111111111111111111111111111111111111111",
	}}
	r := newTestRouter(matches, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/rooms/abc123/match", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var rsp struct {
		Data models.MatchRecord `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rsp))
	assert.Equal(t, "abc123", rsp.Data.RoomID)
	assert.Equal(t, models.RoomFinished, rsp.Data.Status)
	assert.Equal(t, "player1", rsp.Data.WinnerRole)
}

func TestGetMatchUnknownRoom(t *testing.T) {
	r := newTestRouter(&fakeMatches{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/rooms/nope/match", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSessionReturnsNewestHint(t *testing.T) {
	snaps := &fakeSnapshots{snap: &models.SessionSnapshot{
		RoomID:  "abc123",
		Address: "0x2222222222222222222222222222222222222222",
		Role:    "player2",
		Status:  models.RoomActive,
	}}
	r := newTestRouter(nil, snaps)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/0x2222222222222222222222222222222222222222", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var rsp struct {
		Data models.SessionSnapshot `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rsp))
	assert.Equal(t, "abc123", rsp.Data.RoomID)
	assert.Equal(t, "player2", rsp.Data.Role)
}

func TestGetSessionNoneFound(t *testing.T) {
	r := newTestRouter(nil, &fakeSnapshots{})

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/0xdead", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
