// Package menginetest provides in-memory fakes for the mengine contracts,
// for use in tests of the scheduler and relay loops.
package menginetest

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/blake2b"

	"github.com/monarch-engine/monarch/mengine"
)

// ForkchoiceCall records a single forkchoice-updated call observed by [Engine].
type ForkchoiceCall struct {
	State   mengine.ForkchoiceState
	Attrs   *mengine.PayloadAttributes
	Version mengine.Version
}

// Engine is a scripted fake implementing both [mengine.EngineHandle]
// and [mengine.PayloadBuilder].
//
// By default every call succeeds: forkchoice updates are valid and grant
// payload ids, build jobs resolve, and new payloads are valid.
// Tests flip the failure fields to script a particular tick failure.
//
// All methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	// Failure scripting. The zero value of each means "succeed".
	ForkchoiceStatus  mengine.Status // overrides the valid verdict when set
	NewPayloadStatus  mengine.Status
	WithholdPayloadID bool // respond valid but with no payload id
	WithholdPayload   bool // Resolve returns nil

	seq  uint64
	jobs map[mengine.PayloadID]pendingJob
	fcus []ForkchoiceCall
	pays []mengine.ExecutionPayload
}

type pendingJob struct {
	parent common.Hash
	attrs  mengine.PayloadAttributes
	number uint64
}

// NewEngine returns a fake engine with all calls succeeding.
func NewEngine() *Engine {
	return &Engine{jobs: make(map[mengine.PayloadID]pendingJob)}
}

func (e *Engine) NewPayload(_ context.Context, payload mengine.ExecutionPayload) (mengine.PayloadStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pays = append(e.pays, payload)

	st := mengine.StatusValid
	if e.NewPayloadStatus != "" {
		st = e.NewPayloadStatus
	}
	return mengine.PayloadStatus{Status: st}, nil
}

func (e *Engine) ForkchoiceUpdated(
	_ context.Context,
	state mengine.ForkchoiceState,
	attrs *mengine.PayloadAttributes,
	v mengine.Version,
) (mengine.ForkchoiceResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.fcus = append(e.fcus, ForkchoiceCall{State: state, Attrs: attrs, Version: v})

	st := mengine.StatusValid
	if e.ForkchoiceStatus != "" {
		st = e.ForkchoiceStatus
	}
	res := mengine.ForkchoiceResult{
		PayloadStatus: mengine.PayloadStatus{Status: st},
	}
	if st != mengine.StatusValid || attrs == nil || e.WithholdPayloadID {
		return res, nil
	}

	e.seq++
	var id mengine.PayloadID
	binary.BigEndian.PutUint64(id[:], e.seq)
	e.jobs[id] = pendingJob{
		parent: state.HeadBlockHash,
		attrs:  *attrs,
		number: e.seq,
	}
	res.PayloadID = &id
	return res, nil
}

// Resolve builds a deterministic empty payload for the given job:
// the block hash is derived from the payload id and timestamp,
// and the parent is the head the job was started on.
func (e *Engine) Resolve(_ context.Context, id mengine.PayloadID, _ mengine.ResolveKind) (*mengine.BuiltPayload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.WithholdPayload {
		return nil, nil
	}
	job, ok := e.jobs[id]
	if !ok {
		return nil, nil
	}

	var seed [16]byte
	copy(seed[:8], id[:])
	binary.BigEndian.PutUint64(seed[8:], uint64(job.attrs.Timestamp))

	return &mengine.BuiltPayload{
		Payload: mengine.ExecutionPayload{
			ParentHash:   job.parent,
			FeeRecipient: job.attrs.SuggestedFeeRecipient,
			PrevRandao:   job.attrs.PrevRandao,
			BlockNumber:  hexutil.Uint64(job.number),
			Timestamp:    job.attrs.Timestamp,
			BlockHash:    common.Hash(blake2b.Sum256(seed[:])),
		},
	}, nil
}

// ForkchoiceCalls returns a copy of every recorded forkchoice-updated call.
func (e *Engine) ForkchoiceCalls() []ForkchoiceCall {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ForkchoiceCall, len(e.fcus))
	copy(out, e.fcus)
	return out
}

// NewPayloads returns a copy of every payload submitted through NewPayload.
func (e *Engine) NewPayloads() []mengine.ExecutionPayload {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]mengine.ExecutionPayload, len(e.pays))
	copy(out, e.pays)
	return out
}
