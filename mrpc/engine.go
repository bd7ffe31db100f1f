// Package mrpc provides JSON-RPC backed implementations of the
// collaborator contracts in mengine and mrelay:
// an engine API client for the consensus engine and payload builder,
// and a chain client for best-block reads and remote block streams.
package mrpc

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/monarch-engine/monarch/mengine"
)

// EngineClient speaks the engine API over JSON-RPC.
// It implements [mengine.EngineHandle] and [mengine.PayloadBuilder].
//
// The underlying rpc.Client is internally synchronized,
// so an EngineClient may be shared freely across tasks.
type EngineClient struct {
	log *slog.Logger
	c   *rpc.Client

	// version used for calls that do not take one explicitly (Resolve).
	version mengine.Version
}

// NewEngineClient wraps an established rpc connection.
func NewEngineClient(log *slog.Logger, c *rpc.Client, v mengine.Version) *EngineClient {
	if log == nil {
		log = slog.Default()
	}
	if v == 0 {
		v = mengine.DefaultVersion
	}
	return &EngineClient{log: log, c: c, version: v}
}

// DialEngine connects to the engine API endpoint at url.
func DialEngine(ctx context.Context, log *slog.Logger, url string, v mengine.Version) (*EngineClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial engine %s: %w", url, err)
	}
	return NewEngineClient(log, c, v), nil
}

func (e *EngineClient) NewPayload(ctx context.Context, payload mengine.ExecutionPayload) (mengine.PayloadStatus, error) {
	var status mengine.PayloadStatus
	method := fmt.Sprintf("engine_newPayloadV%d", e.version)
	if err := e.c.CallContext(ctx, &status, method, payload); err != nil {
		return mengine.PayloadStatus{}, fmt.Errorf("%s: %w", method, err)
	}
	return status, nil
}

func (e *EngineClient) ForkchoiceUpdated(
	ctx context.Context,
	state mengine.ForkchoiceState,
	attrs *mengine.PayloadAttributes,
	v mengine.Version,
) (mengine.ForkchoiceResult, error) {
	if v == 0 {
		v = e.version
	}
	var res mengine.ForkchoiceResult
	method := fmt.Sprintf("engine_forkchoiceUpdatedV%d", v)
	if err := e.c.CallContext(ctx, &res, method, state, attrs); err != nil {
		return mengine.ForkchoiceResult{}, fmt.Errorf("%s: %w", method, err)
	}
	return res, nil
}

// getPayloadResponse is the engine_getPayload result envelope.
type getPayloadResponse struct {
	ExecutionPayload mengine.ExecutionPayload `json:"executionPayload"`
	BlockValue       *hexutil.Big             `json:"blockValue"`
}

// Resolve retrieves the built payload for a build job.
//
// The engine API resolves whatever the builder has at call time,
// which matches [mengine.ResolveWaitForPending]; the kind argument
// exists to honor the contract and is not sent over the wire.
func (e *EngineClient) Resolve(ctx context.Context, id mengine.PayloadID, _ mengine.ResolveKind) (*mengine.BuiltPayload, error) {
	var resp getPayloadResponse
	method := fmt.Sprintf("engine_getPayloadV%d", e.version)
	if err := e.c.CallContext(ctx, &resp, method, id); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return &mengine.BuiltPayload{
		Payload:    resp.ExecutionPayload,
		BlockValue: (*big.Int)(resp.BlockValue),
	}, nil
}

// Close tears down the underlying connection.
func (e *EngineClient) Close() {
	e.c.Close()
}
