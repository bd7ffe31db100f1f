// Package mengine defines the boundary between the monarch control core
// and the consensus engine that validates and commits payloads.
//
// The core never inspects payload contents.
// It threads block identity (hashes) through the [EngineHandle] contract
// and triggers payload construction through [PayloadBuilder].
// Concrete implementations live elsewhere
// (see the mrpc package for the JSON-RPC clients,
// and menginetest for in-memory fakes).
package mengine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Status is the engine's verdict on a payload or forkchoice update.
type Status string

const (
	StatusValid   Status = "VALID"
	StatusInvalid Status = "INVALID"
	StatusSyncing Status = "SYNCING"
)

// PayloadStatus is the engine's response to a new payload
// or to the payload-status half of a forkchoice update.
type PayloadStatus struct {
	Status          Status       `json:"status"`
	LatestValidHash *common.Hash `json:"latestValidHash"`
	ValidationError *string      `json:"validationError"`
}

// IsValid reports whether the engine accepted the payload outright.
// Syncing is not valid for the purposes of this core:
// a producing authority must never build on a head the engine has not executed.
func (s PayloadStatus) IsValid() bool {
	return s.Status == StatusValid
}

// ForkchoiceState is the (head, safe, finalized) triple
// the engine uses to determine the canonical tip and reorg safety boundaries.
type ForkchoiceState struct {
	HeadBlockHash      common.Hash `json:"headBlockHash"`
	SafeBlockHash      common.Hash `json:"safeBlockHash"`
	FinalizedBlockHash common.Hash `json:"finalizedBlockHash"`
}

// PayloadID identifies an in-flight payload build job on the engine side.
type PayloadID [8]byte

// MarshalText encodes the id as a 0x-prefixed hex string,
// matching the engine wire encoding.
func (id PayloadID) MarshalText() ([]byte, error) {
	return hexutil.Bytes(id[:]).MarshalText()
}

// UnmarshalText decodes a 0x-prefixed hex string of exactly 8 bytes.
func (id *PayloadID) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("PayloadID", input, id[:])
}

// ForkchoiceResult is the engine's response to a forkchoice update.
// PayloadID is only set when the update carried payload attributes
// and the engine accepted them for building.
type ForkchoiceResult struct {
	PayloadStatus PayloadStatus `json:"payloadStatus"`
	PayloadID     *PayloadID    `json:"payloadId"`
}

// IsValid reports whether the forkchoice update was accepted.
func (r ForkchoiceResult) IsValid() bool {
	return r.PayloadStatus.IsValid()
}

// PayloadAttributes describe the block to be built next.
type PayloadAttributes struct {
	Timestamp             hexutil.Uint64 `json:"timestamp"`
	PrevRandao            common.Hash    `json:"prevRandao"`
	SuggestedFeeRecipient common.Address `json:"suggestedFeeRecipient"`
}

// Version selects the engine API message version for a call.
type Version uint8

const (
	V1 Version = 1
	V2 Version = 2
	V3 Version = 3
)

// DefaultVersion is used wherever the caller has no reason to pick.
const DefaultVersion = V3
