package client

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/scanpb"
)

// GRPCClient implements ScanClient using the gRPC transport.
type GRPCClient struct {
	conn   *grpc.ClientConn
	client scanpb.ScanServiceClient
}

var _ ScanClient = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
// The token and identity are attached to every call as metadata. Extra dial
// options are appended after the defaults.
func NewGRPCClient(addr, token string, id Identity, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(identityInterceptor(token, id)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{
		conn:   conn,
		client: scanpb.NewScanServiceClient(conn),
	}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// identityInterceptor appends the bearer token and client identity to the
// outgoing metadata of every unary call.
func identityInterceptor(token string, id Identity) grpc.UnaryClientInterceptor {
	var kv []string
	if token != "" {
		kv = append(kv, "authorization", "Bearer "+token)
	}
	if id.Actor != "" {
		kv = append(kv, strings.ToLower(headerActor), id.Actor)
	}
	if id.Origin != "" {
		kv = append(kv, strings.ToLower(headerOrigin), id.Origin)
	}
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if len(kv) > 0 {
			ctx = metadata.AppendToOutgoingContext(ctx, kv...)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// --- Scanned codes ---

func (c *GRPCClient) Insert(ctx context.Context, code model.ScannedCode) (*model.ScannedCode, error) {
	in, err := scanpb.Encode(scanpb.InsertRequest{
		Scope:     code.StoreScope,
		Payload:   code.Payload,
		Symbology: string(code.Symbology),
		CreatedBy: code.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Insert(ctx, in)
	if err != nil {
		return nil, grpcErr("insert", err)
	}
	var out model.ScannedCode
	if err := scanpb.Decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GRPCClient) Delete(ctx context.Context, scope, id string) error {
	in, err := scanpb.Encode(scanpb.DeleteRequest{Scope: scope, ID: id})
	if err != nil {
		return err
	}
	if _, err := c.client.Delete(ctx, in); err != nil {
		return grpcErr("delete", err)
	}
	return nil
}

func (c *GRPCClient) ListCodes(ctx context.Context, req *ListCodesRequest) (*ListCodesResponse, error) {
	in, err := scanpb.Encode(scanpb.ListRequest{Scope: req.Scope, Limit: req.Limit, Offset: req.Offset})
	if err != nil {
		return nil, err
	}
	resp, err := c.client.List(ctx, in)
	if err != nil {
		return nil, grpcErr("list", err)
	}
	var out ListCodesResponse
	if err := scanpb.Decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByScope returns every code of scope, newest first.
func (c *GRPCClient) ListByScope(ctx context.Context, scope string) ([]*model.ScannedCode, error) {
	return listAll(ctx, scope, c.ListCodes)
}

func (c *GRPCClient) ClearScope(ctx context.Context, scope string) (int64, error) {
	in, err := scanpb.Encode(scanpb.ClearRequest{Scope: scope})
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Clear(ctx, in)
	if err != nil {
		return 0, grpcErr("clear", err)
	}
	var out scanpb.ClearResponse
	if err := scanpb.Decode(resp, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// --- Health ---

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	resp, err := c.client.Health(ctx, &structpb.Struct{})
	if err != nil {
		return "", grpcErr("health", err)
	}
	return resp.GetFields()["status"].GetStringValue(), nil
}

// grpcErr maps a gRPC status error onto the model error taxonomy.
func grpcErr(op string, err error) error {
	var kind model.ErrorKind
	switch status.Code(err) {
	case codes.NotFound:
		kind = model.KindNotFound
	case codes.PermissionDenied:
		kind = model.KindWriteConflict
	case codes.Unauthenticated:
		kind = model.KindPermissionDenied
	case codes.InvalidArgument:
		kind = model.KindInvalid
	default:
		kind = model.KindNetworkFailure
	}
	return model.NewError(kind, op, err)
}
