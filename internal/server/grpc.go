package server

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/storescan/internal/model"
	"github.com/alfredjeanlab/storescan/internal/scanpb"
)

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the ScanService, and returns the server ready to serve.
func NewGRPCServer(scanServer *ScanServer, auth Auth) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(nil),
			LoggingInterceptor(nil),
			AuthInterceptor(auth),
		),
	)

	scanpb.RegisterScanServiceServer(srv, &grpcService{s: scanServer})

	return srv
}

// grpcService adapts ScanServer to scanpb.ScanServiceServer.
type grpcService struct {
	s *ScanServer
}

var _ scanpb.ScanServiceServer = (*grpcService)(nil)

// grpcCaller reads the client identity from incoming metadata, letting
// explicit message fields win.
func grpcCaller(ctx context.Context, actor, origin string) caller {
	c := caller{Actor: actor, Origin: origin}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return c
	}
	if vals := md.Get(strings.ToLower(HeaderActor)); c.Actor == "" && len(vals) > 0 {
		c.Actor = vals[0]
	}
	if vals := md.Get(strings.ToLower(HeaderOrigin)); c.Origin == "" && len(vals) > 0 {
		c.Origin = vals[0]
	}
	return c
}

// Insert writes a scanned code.
func (g *grpcService) Insert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req scanpb.InsertRequest
	if err := scanpb.Decode(in, &req); err != nil {
		return nil, grpcError(inputError(err.Error()))
	}
	c := grpcCaller(ctx, req.CreatedBy, req.Origin)
	code, err := g.s.createCode(ctx, req.Scope, createCodeInput{
		Payload:   req.Payload,
		Symbology: req.Symbology,
		CreatedBy: c.Actor,
		Origin:    c.Origin,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeReply(code)
}

// Delete removes a scanned code from its scope.
func (g *grpcService) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req scanpb.DeleteRequest
	if err := scanpb.Decode(in, &req); err != nil {
		return nil, grpcError(inputError(err.Error()))
	}
	if err := g.s.deleteCode(ctx, req.Scope, req.ID, grpcCaller(ctx, req.Actor, req.Origin)); err != nil {
		return nil, grpcError(err)
	}
	return &structpb.Struct{}, nil
}

// List returns one page of a scope's codes, newest first.
func (g *grpcService) List(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req scanpb.ListRequest
	if err := scanpb.Decode(in, &req); err != nil {
		return nil, grpcError(inputError(err.Error()))
	}
	codes, total, err := g.s.listCodes(ctx, model.ScanFilter{
		Scope:  req.Scope,
		Limit:  req.Limit,
		Offset: req.Offset,
	}, grpcCaller(ctx, "", req.Origin))
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeReply(map[string]any{"codes": codes, "total": total})
}

// Clear removes every code of a scope.
func (g *grpcService) Clear(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req scanpb.ClearRequest
	if err := scanpb.Decode(in, &req); err != nil {
		return nil, grpcError(inputError(err.Error()))
	}
	n, err := g.s.clearScope(ctx, req.Scope, grpcCaller(ctx, req.Actor, req.Origin))
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeReply(scanpb.ClearResponse{Deleted: n})
}

// Health returns the service health status.
func (g *grpcService) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encodeReply(map[string]string{"status": "ok"})
}

func encodeReply(v any) (*structpb.Struct, error) {
	s, err := scanpb.Encode(v)
	if err != nil {
		return nil, grpcError(err)
	}
	return s, nil
}
