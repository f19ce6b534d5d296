// Package client provides the client side of the durable scanned-code store:
// an HTTP/JSON implementation talking to the storescan REST API and a gRPC
// implementation talking to storescan.v1.ScanService. Both map transport
// failures onto the model error taxonomy.
package client

import (
	"context"

	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/presence"
)

// ScanClient is the interface the CLI and the capture pipeline use to talk
// to the storescan server. It is implemented by HTTPClient (default) and
// GRPCClient.
type ScanClient interface {
	// Scanned codes
	Insert(ctx context.Context, code model.ScannedCode) (*model.ScannedCode, error)
	Delete(ctx context.Context, scope, id string) error
	ListByScope(ctx context.Context, scope string) ([]*model.ScannedCode, error)
	ListCodes(ctx context.Context, req *ListCodesRequest) (*ListCodesResponse, error)
	ClearScope(ctx context.Context, scope string) (int64, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// Identity names the calling client. It is sent with every request so the
// server can attribute writes and keep its presence roster.
type Identity struct {
	Actor  string // person or account, e.g. "alice"
	Origin string // client instance, typically a UUID
}

// ListCodesRequest holds parameters for listing one page of a scope.
type ListCodesRequest struct {
	Scope  string
	Limit  int
	Offset int
}

// ListCodesResponse is one page of codes plus the scope's total count.
type ListCodesResponse struct {
	Codes []*model.ScannedCode `json:"codes"`
	Total int                  `json:"total"`
}

// ClientInfo is one entry of a scope's presence roster.
type ClientInfo = presence.Entry

// pageSize is the page size ListByScope uses when walking a scope.
const pageSize = 500

// listAll walks every page of a scope via list.
func listAll(ctx context.Context, scope string, list func(ctx context.Context, req *ListCodesRequest) (*ListCodesResponse, error)) ([]*model.ScannedCode, error) {
	var all []*model.ScannedCode
	for offset := 0; ; {
		resp, err := list(ctx, &ListCodesRequest{Scope: scope, Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Codes...)
		offset += len(resp.Codes)
		if len(resp.Codes) == 0 || offset >= resp.Total {
			break
		}
	}
	if all == nil {
		all = []*model.ScannedCode{}
	}
	return all, nil
}
