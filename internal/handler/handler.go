package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/game-progress/internal/logging"
	"github.com/JakeFAU/game-progress/internal/metrics"
	"github.com/JakeFAU/game-progress/internal/progress"
)

// Error messages returned in structured error bodies.
const (
	msgPlayerNotFound   = "Player not found"
	msgMethodNotAllowed = "Method not allowed"
	msgInvalidBody      = "Invalid request body"
)

// Operation labels recorded in metrics.
const (
	opPreflight = "preflight"
	opRead      = "read"
	opCreate    = "create"
	opUpdate    = "update"
	opRejected  = "rejected"
)

var preflightHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type",
	"Access-Control-Max-Age":       "86400",
}

// Handler serves progress invocations against a Store.
type Handler struct {
	store     progress.Store
	publisher progress.Publisher
	topic     string
	now       func() time.Time
	logger    *zap.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithPublisher publishes a progress.Event to topic after every applied
// match report.
func WithPublisher(publisher progress.Publisher, topic string) Option {
	return func(h *Handler) {
		h.publisher = publisher
		h.topic = topic
	}
}

// WithClock overrides the clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// New wires the store and logger.
func New(store progress.Store, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle dispatches one invocation. Expected failures (unknown method,
// malformed body, missing player) become structured responses; store
// faults are returned as errors.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodOptions:
		metrics.ObserveOperation(opPreflight, metrics.OutcomeOK)
		return Response{StatusCode: http.StatusOK, Headers: cloneHeaders(preflightHeaders), Body: ""}, nil
	case http.MethodGet:
		return h.readOrCreate(ctx, progress.PlayerIDOrDefault(req.QueryParameters["player_id"]))
	case http.MethodPost:
		return h.applyMatch(ctx, req.Body)
	default:
		metrics.ObserveOperation(opRejected, metrics.OutcomeOK)
		return jsonResponse(http.StatusMethodNotAllowed, errorBody{Error: msgMethodNotAllowed})
	}
}

func (h *Handler) readOrCreate(ctx context.Context, playerID string) (resp Response, err error) {
	sess, err := h.store.Open(ctx)
	if err != nil {
		metrics.ObserveOperation(opRead, metrics.OutcomeError)
		return Response{}, fmt.Errorf("open store session: %w", err)
	}
	defer h.closeSession(ctx, sess, &err)

	row, err := sess.Find(ctx, playerID)
	switch {
	case err == nil:
		metrics.ObserveOperation(opRead, metrics.OutcomeOK)
	case errors.Is(err, progress.ErrNotFound):
		metrics.ObserveOperation(opRead, metrics.OutcomeNotFound)
		row, err = sess.Create(ctx, playerID)
		if err != nil {
			metrics.ObserveOperation(opCreate, metrics.OutcomeError)
			return Response{}, fmt.Errorf("create progress for %q: %w", playerID, err)
		}
		metrics.ObserveOperation(opCreate, metrics.OutcomeOK)
		h.logger.Info("provisioned player progress", zap.String("player_id", playerID))
	default:
		metrics.ObserveOperation(opRead, metrics.OutcomeError)
		return Response{}, fmt.Errorf("read progress for %q: %w", playerID, err)
	}
	return jsonResponse(http.StatusOK, toProgressBody(row))
}

func (h *Handler) applyMatch(ctx context.Context, body string) (resp Response, err error) {
	report, err := progress.DecodeMatchReport(body)
	if err != nil {
		metrics.ObserveOperation(opUpdate, metrics.OutcomeBadRequest)
		h.logger.Debug("rejected match report", zap.Error(err))
		return jsonResponse(http.StatusBadRequest, errorBody{Error: msgInvalidBody})
	}

	sess, err := h.store.Open(ctx)
	if err != nil {
		metrics.ObserveOperation(opUpdate, metrics.OutcomeError)
		return Response{}, fmt.Errorf("open store session: %w", err)
	}
	defer h.closeSession(ctx, sess, &err)

	delta := report.Delta()
	row, err := sess.ApplyDelta(ctx, report.PlayerID, delta)
	if errors.Is(err, progress.ErrNotFound) {
		metrics.ObserveOperation(opUpdate, metrics.OutcomeNotFound)
		return jsonResponse(http.StatusNotFound, errorBody{Error: msgPlayerNotFound})
	}
	if err != nil {
		metrics.ObserveOperation(opUpdate, metrics.OutcomeError)
		return Response{}, fmt.Errorf("apply match report for %q: %w", report.PlayerID, err)
	}
	metrics.ObserveOperation(opUpdate, metrics.OutcomeOK)
	h.logger.Info("applied match report",
		zap.String("player_id", report.PlayerID),
		zap.Int64("kills", report.Kills),
		zap.Int64("deaths", report.Deaths),
		zap.Bool("won", report.Won),
	)
	h.publish(ctx, report, delta, row)
	return jsonResponse(http.StatusOK, toProgressBody(row))
}

// publish is best effort: the update is already committed.
func (h *Handler) publish(ctx context.Context, report progress.MatchReport, delta progress.Delta, row progress.PlayerProgress) {
	if h.publisher == nil {
		return
	}
	event := progress.Event{
		Type:       progress.EventTypeUpdated,
		PlayerID:   row.PlayerID,
		Report:     report,
		Delta:      delta,
		Progress:   row,
		OccurredAt: h.now(),
	}
	id, err := h.publisher.Publish(ctx, h.topic, event)
	if err != nil {
		metrics.ObserveEvent(metrics.OutcomeError)
		h.logger.Warn("publish progress event failed", zap.String("player_id", row.PlayerID), zap.Error(err))
		return
	}
	metrics.ObserveEvent(metrics.OutcomeOK)
	h.logger.Debug("published progress event", zap.String("message_id", id))
}

// closeSession releases sess and surfaces a close failure only when the
// operation itself succeeded.
func (h *Handler) closeSession(ctx context.Context, sess progress.Session, errp *error) {
	if cerr := sess.Close(context.WithoutCancel(ctx)); cerr != nil {
		if *errp == nil {
			*errp = fmt.Errorf("close store session: %w", cerr)
			return
		}
		h.logger.Warn("close store session failed", zap.Error(cerr))
	}
}

func jsonResponse(status int, payload any) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encode response: %w", err)
	}
	return Response{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":                "application/json",
			"Access-Control-Allow-Origin": "*",
		},
		Body: string(body),
	}, nil
}

func cloneHeaders(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
