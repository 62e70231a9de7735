package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/game-progress/internal/progress"
)

func decodeProgress(t *testing.T, resp Response) progressBody {
	t.Helper()
	var body progressBody
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	return body
}

func requireJSONHeaders(t *testing.T, resp Response) {
	t.Helper()
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
}

func TestHandleOptionsReturnsPreflightWithoutStore(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.openErr = errors.New("store must not be opened")
	h := New(store, zap.NewNop())

	resp, err := h.Handle(context.Background(), Request{Method: http.MethodOptions, Body: `{"kills":1}`})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Body)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	assert.Equal(t, "GET, POST, OPTIONS", resp.Headers["Access-Control-Allow-Methods"])
	assert.Equal(t, "Content-Type", resp.Headers["Access-Control-Allow-Headers"])
	assert.Equal(t, "86400", resp.Headers["Access-Control-Max-Age"])
	opens, _ := store.sessions()
	assert.Zero(t, opens)
}

// A first GET without player_id provisions the guest row.
func TestHandleGetWithoutPlayerCreatesGuest(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	h := New(store, zap.NewNop())

	resp, err := h.Handle(context.Background(), Request{Method: http.MethodGet})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	requireJSONHeaders(t, resp)

	body := decodeProgress(t, resp)
	assert.Equal(t, progressBody{PlayerID: "guest"}, body)
	_, ok := store.row("guest")
	assert.True(t, ok, "guest row should have been provisioned")
	opens, closes := store.sessions()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes)
}

func TestHandleGetEmptyPlayerIDUsesGuest(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	h := New(store, zap.NewNop())

	resp, err := h.Handle(context.Background(), Request{
		Method:          http.MethodGet,
		QueryParameters: map[string]string{"player_id": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "guest", decodeProgress(t, resp).PlayerID)
}

func TestHandleEmptyMethodIsGet(t *testing.T) {
	t.Parallel()

	h := New(newFakeStore(), zap.NewNop())
	resp, err := h.Handle(context.Background(), Request{QueryParameters: map[string]string{"player_id": "p9"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "p9", decodeProgress(t, resp).PlayerID)
}

func TestHandleGetExistingRowIsReturnedUnchanged(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	store.rows["p1"] = progress.PlayerProgress{
		PlayerID: "p1", TotalKills: 7, TotalDeaths: 3, Wins: 2, Losses: 1, Experience: 70, UpdatedAt: &ts,
	}
	h := New(store, zap.NewNop())

	resp, err := h.Handle(context.Background(), Request{
		Method:          http.MethodGet,
		QueryParameters: map[string]string{"player_id": "p1"},
	})
	require.NoError(t, err)
	body := decodeProgress(t, resp)
	assert.Equal(t, int64(7), body.TotalKills)
	assert.Equal(t, int64(70), body.Experience)
	require.NotNil(t, body.UpdatedAt)
	assert.Equal(t, "2024-02-03T04:05:06Z", *body.UpdatedAt)
}

// A provisioned player accumulates the reported match.
func TestHandlePostAfterGetAppliesMatch(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	pub := &fakePublisher{}
	eventTime := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	h := New(store, zap.NewNop(), WithPublisher(pub, "progress-updates"), WithClock(func() time.Time { return eventTime }))

	_, err := h.Handle(context.Background(), Request{Method: http.MethodGet})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), Request{
		Method: http.MethodPost,
		Body:   `{"player_id":"guest","kills":5,"deaths":2,"won":true}`,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	requireJSONHeaders(t, resp)

	body := decodeProgress(t, resp)
	assert.Equal(t, "guest", body.PlayerID)
	assert.Equal(t, int64(5), body.TotalKills)
	assert.Equal(t, int64(2), body.TotalDeaths)
	assert.Equal(t, int64(1), body.Wins)
	assert.Equal(t, int64(0), body.Losses)
	assert.Equal(t, int64(50), body.Experience)
	require.NotNil(t, body.UpdatedAt)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "progress-updates", pub.topics[0])
	assert.Equal(t, progress.EventTypeUpdated, pub.events[0].Type)
	assert.Equal(t, progress.Delta{Kills: 5, Deaths: 2, Wins: 1, Experience: 50}, pub.events[0].Delta)
	assert.Equal(t, eventTime, pub.events[0].OccurredAt)

	opens, closes := store.sessions()
	assert.Equal(t, 2, opens)
	assert.Equal(t, 2, closes)
}

// POST never creates a row.
func TestHandlePostMissingPlayerReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	pub := &fakePublisher{}
	h := New(store, zap.NewNop(), WithPublisher(pub, "t"))

	resp, err := h.Handle(context.Background(), Request{Method: http.MethodPost, Body: `{"player_id":"nobody"}`})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Player not found"}`, resp.Body)
	requireJSONHeaders(t, resp)
	assert.Empty(t, store.snapshot(), "update must not create a row")
	assert.Empty(t, pub.events)
	_, closes := store.sessions()
	assert.Equal(t, 1, closes)
}

func TestHandleUnsupportedMethods(t *testing.T) {
	t.Parallel()

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead, "get"} {
		store := newFakeStore()
		h := New(store, zap.NewNop())
		resp, err := h.Handle(context.Background(), Request{
			Method:          method,
			QueryParameters: map[string]string{"player_id": "p1"},
			Body:            `{"kills":3}`,
		})
		require.NoError(t, err, method)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
		assert.JSONEq(t, `{"error":"Method not allowed"}`, resp.Body, method)
		requireJSONHeaders(t, resp)
		opens, _ := store.sessions()
		assert.Zero(t, opens, method)
	}
}

func TestHandlePostDefaultsToGuest(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.rows["guest"] = progress.PlayerProgress{PlayerID: "guest"}
	h := New(store, zap.NewNop())

	resp, err := h.Handle(context.Background(), Request{Method: http.MethodPost})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeProgress(t, resp)
	assert.Equal(t, "guest", body.PlayerID)
	assert.Equal(t, int64(1), body.Losses, "an empty report counts as a lost match")
	assert.Equal(t, int64(0), body.Wins)
}

func TestHandlePostNegativeValuesDecrement(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.rows["p1"] = progress.PlayerProgress{PlayerID: "p1", TotalKills: 10, TotalDeaths: 4, Experience: 100}
	h := New(store, zap.NewNop())

	resp, err := h.Handle(context.Background(), Request{Method: http.MethodPost, Body: `{"player_id":"p1","kills":-2,"deaths":-1,"won":true}`})
	require.NoError(t, err)
	body := decodeProgress(t, resp)
	assert.Equal(t, int64(8), body.TotalKills)
	assert.Equal(t, int64(3), body.TotalDeaths)
	assert.Equal(t, int64(80), body.Experience)
}

func TestHandlePostMalformedBody(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	h := New(store, zap.NewNop())

	resp, err := h.Handle(context.Background(), Request{Method: http.MethodPost, Body: `{"kills":"lots"}`})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Invalid request body"}`, resp.Body)
	opens, _ := store.sessions()
	assert.Zero(t, opens, "a rejected body must not open the store")
}

func TestHandleStoreFaultsPropagate(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")

	t.Run("open", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.openErr = boom
		_, err := New(store, nil).Handle(context.Background(), Request{Method: http.MethodGet})
		require.ErrorIs(t, err, boom)
	})

	t.Run("find", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.findErr = boom
		_, err := New(store, nil).Handle(context.Background(), Request{Method: http.MethodGet})
		require.ErrorIs(t, err, boom)
		_, closes := store.sessions()
		assert.Equal(t, 1, closes, "session must be closed on the error path")
	})

	t.Run("apply", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.applyErr = boom
		_, err := New(store, nil).Handle(context.Background(), Request{Method: http.MethodPost, Body: `{}`})
		require.ErrorIs(t, err, boom)
		_, closes := store.sessions()
		assert.Equal(t, 1, closes, "session must be closed on the error path")
	})

	t.Run("close", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		store.closeErr = boom
		_, err := New(store, nil).Handle(context.Background(), Request{Method: http.MethodGet})
		require.ErrorIs(t, err, boom)
	})
}

func TestHandlePublishFailureDoesNotFailUpdate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.rows["p1"] = progress.PlayerProgress{PlayerID: "p1"}
	pub := &fakePublisher{err: errors.New("topic gone")}
	core, logs := observer.New(zapcore.WarnLevel)
	h := New(store, zap.New(core), WithPublisher(pub, "t"))

	resp, err := h.Handle(context.Background(), Request{Method: http.MethodPost, Body: `{"player_id":"p1","kills":1,"won":true}`})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), decodeProgress(t, resp).Wins)

	warnings := logs.FilterMessage("publish progress event failed").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "p1", warnings[0].ContextMap()["player_id"])
}

func TestResponseRecordJSONShape(t *testing.T) {
	t.Parallel()

	var req Request
	require.NoError(t, json.Unmarshal(
		[]byte(`{"httpMethod":"GET","queryStringParameters":{"player_id":"p1"},"body":""}`), &req))
	assert.Equal(t, Request{Method: "GET", QueryParameters: map[string]string{"player_id": "p1"}}, req)

	out, err := json.Marshal(Response{StatusCode: 200, Headers: map[string]string{"A": "b"}, Body: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"statusCode":200,"headers":{"A":"b"},"body":"x"}`, string(out))
}
