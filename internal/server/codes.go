package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/storescan/internal/events"
	"github.com/alfredjeanlab/storescan/internal/idgen"
	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/presence"
)

// maxListLimit caps a single page of scanned codes.
const maxListLimit = 500

// createCodeInput holds transport-agnostic parameters for writing a scanned code.
type createCodeInput struct {
	Payload   string `json:"payload"`
	Symbology string `json:"symbology"`
	CreatedBy string `json:"created_by"`
	Origin    string `json:"origin"`
}

// caller identifies who issued a request.
type caller struct {
	Actor  string
	Origin string
}

// checkScope validates scope and verifies the caller's token grants it.
func checkScope(ctx context.Context, scope string) error {
	if err := model.ValidateScope(scope); err != nil {
		return inputError("store_scope " + err.Error())
	}
	if !scopeAllowed(ctx, scope) {
		return model.NewError(model.KindPermissionDenied, "scope",
			fmt.Errorf("token is not granted store scope %q", scope))
	}
	return nil
}

// createCode validates input, persists a new scanned code with a server ID
// and server capture time, and publishes a CodeCreated event.
func (s *ScanServer) createCode(ctx context.Context, scope string, in createCodeInput) (*model.ScannedCode, error) {
	if err := checkScope(ctx, scope); err != nil {
		return nil, err
	}
	if in.Payload == "" {
		return nil, inputError("payload is required")
	}

	id, err := idgen.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}

	code := &model.ScannedCode{
		ID:         id,
		Payload:    in.Payload,
		Symbology:  model.NormalizeSymbology(in.Symbology),
		CapturedAt: time.Now().UTC(),
		StoreScope: scope,
		CreatedBy:  in.CreatedBy,
		Origin:     in.Origin,
	}
	if err := model.ValidateScannedCode(code); err != nil {
		return nil, err
	}

	if err := s.store.CreateCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to create scanned code: %w", err)
	}

	s.recordAndPublish(ctx, scope, events.Topic(scope, events.CategoryScannedCodes, events.ActionCreated),
		code.ID, code.CreatedBy, events.CodeCreated{Code: code})
	s.Presence.Record(presence.Activity{Scope: scope, Origin: in.Origin, Actor: in.CreatedBy, Action: presence.ActionInsert})

	return code, nil
}

// getCode returns a scanned code by ID.
func (s *ScanServer) getCode(ctx context.Context, id string) (*model.ScannedCode, error) {
	if id == "" {
		return nil, inputError("id is required")
	}
	code, err := s.store.GetCode(ctx, id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && code == nil) {
		return nil, model.NewError(model.KindNotFound, "get", fmt.Errorf("scanned code %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scanned code: %w", err)
	}
	if !scopeAllowed(ctx, code.StoreScope) {
		// Hide records of scopes the caller cannot see.
		return nil, model.NewError(model.KindNotFound, "get", fmt.Errorf("scanned code %s not found", id))
	}
	return code, nil
}

// listCodes returns one page of a scope's codes, newest first.
func (s *ScanServer) listCodes(ctx context.Context, filter model.ScanFilter, c caller) ([]*model.ScannedCode, int, error) {
	if err := checkScope(ctx, filter.Scope); err != nil {
		return nil, 0, err
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, 0, inputError("limit and offset must not be negative")
	}
	if filter.Limit == 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	codes, total, err := s.store.ListCodes(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scanned codes: %w", err)
	}
	if codes == nil {
		codes = []*model.ScannedCode{}
	}
	s.Presence.Record(presence.Activity{Scope: filter.Scope, Origin: c.Origin, Actor: c.Actor, Action: presence.ActionList})
	return codes, total, nil
}

// deleteCode removes a scanned code that belongs to scope. Deleting a code
// of another scope is refused as a write conflict.
func (s *ScanServer) deleteCode(ctx context.Context, scope, id string, c caller) error {
	if err := checkScope(ctx, scope); err != nil {
		return err
	}
	if id == "" {
		return inputError("id is required")
	}

	code, err := s.store.GetCode(ctx, id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && code == nil) {
		return model.NewError(model.KindNotFound, "delete", fmt.Errorf("scanned code %s not found", id))
	}
	if err != nil {
		return fmt.Errorf("failed to get scanned code: %w", err)
	}
	if code.StoreScope != scope {
		return model.NewError(model.KindWriteConflict, "delete",
			fmt.Errorf("scanned code %s does not belong to store scope %q", id, scope))
	}

	if err := s.store.DeleteCode(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewError(model.KindNotFound, "delete", fmt.Errorf("scanned code %s not found", id))
		}
		return fmt.Errorf("failed to delete scanned code: %w", err)
	}

	s.recordAndPublish(ctx, scope, events.Topic(scope, events.CategoryScannedCodes, events.ActionDeleted),
		id, c.Actor, events.CodeDeleted{CodeID: id, Scope: scope, Origin: c.Origin})
	s.Presence.Record(presence.Activity{Scope: scope, Origin: c.Origin, Actor: c.Actor, Action: presence.ActionDelete})
	return nil
}

// clearScope removes every scanned code of scope and reports how many went.
func (s *ScanServer) clearScope(ctx context.Context, scope string, c caller) (int64, error) {
	if err := checkScope(ctx, scope); err != nil {
		return 0, err
	}

	n, err := s.store.ClearScope(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to clear store scope: %w", err)
	}

	s.recordAndPublish(ctx, scope, events.Topic(scope, events.CategoryScannedCodes, events.ActionCleared),
		"", c.Actor, events.ScopeCleared{Scope: scope, Deleted: n, Origin: c.Origin})
	s.Presence.Record(presence.Activity{Scope: scope, Origin: c.Origin, Actor: c.Actor, Action: presence.ActionClear})
	return n, nil
}

// listEvents returns persisted events of scope after the given event ID.
func (s *ScanServer) listEvents(ctx context.Context, scope string, afterID int64, limit int) ([]*model.Event, error) {
	if err := checkScope(ctx, scope); err != nil {
		return nil, err
	}
	evts, err := s.store.ListEvents(ctx, scope, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	return evts, nil
}
