package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/storescan/internal/events"
	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/presence"
	"github.com/alfredjeanlab/storescan/internal/store"
)

// Request headers identifying the calling client.
const (
	HeaderActor  = "X-Storescan-Actor"
	HeaderOrigin = "X-Storescan-Origin"
)

// ScanServer owns the durable scanned-code store and fans every mutation
// out to the event bus and SSE clients. It backs both the HTTP API and the
// gRPC ScanService.
type ScanServer struct {
	store     store.Store
	publisher events.Publisher
	sseHub    *streamHub
	Presence  *presence.Tracker
}

// NewScanServer returns a new ScanServer backed by the given store and publisher.
func NewScanServer(s store.Store, p events.Publisher) *ScanServer {
	return &ScanServer{
		store:     s,
		publisher: p,
		sseHub:    newStreamHub(),
		Presence:  presence.New(),
	}
}

// recordAndPublish persists an event to the store, publishes it to NATS and
// broadcasts it to SSE clients. All three are best-effort; failures are
// logged but do not fail the mutation that caused them.
func (s *ScanServer) recordAndPublish(ctx context.Context, scope, topic, codeID, actor string, event any) {
	// The mutation has happened; a caller hanging up must not lose its event.
	ctx = context.WithoutCancel(ctx)
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event", "topic", topic, "code_id", codeID, "error", err)
		return
	}
	if err := s.store.RecordEvent(ctx, &model.Event{
		Topic:   topic,
		Scope:   scope,
		CodeID:  codeID,
		Actor:   actor,
		Payload: payload,
	}); err != nil {
		slog.Warn("failed to record event", "topic", topic, "code_id", codeID, "error", err)
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "code_id", codeID, "error", err)
	}
	if s.sseHub != nil {
		s.sseHub.publish(topic, scope, payload)
	}
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// httpStatus maps a service error to an HTTP status code.
func httpStatus(err error) int {
	var ie inputError
	if errors.As(err, &ie) {
		return http.StatusBadRequest
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	if kind := model.KindOf(err); kind != "" {
		return kind.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// grpcError maps a service error to a gRPC status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	var (
		ie inputError
		ve *model.ValidationError
	)
	switch {
	case errors.As(err, &ie), errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	switch model.KindOf(err) {
	case model.KindInvalid:
		return status.Error(codes.InvalidArgument, err.Error())
	case model.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case model.KindWriteConflict, model.KindPermissionDenied:
		return status.Error(codes.PermissionDenied, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
