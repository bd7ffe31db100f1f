package mchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Header is the local typed block header.
//
// The JSON field names match the wire schema the relay consumes,
// so a normalized wire block can be unmarshaled directly into a Header.
type Header struct {
	ParentHash       common.Hash    `json:"parentHash"`
	OmmersHash       common.Hash    `json:"sha3Uncles"`
	Beneficiary      common.Address `json:"miner"`
	StateRoot        common.Hash    `json:"stateRoot"`
	TransactionsRoot common.Hash    `json:"transactionsRoot"`
	ReceiptsRoot     common.Hash    `json:"receiptsRoot"`
	LogsBloom        hexutil.Bytes  `json:"logsBloom"`
	Difficulty       *hexutil.Big   `json:"difficulty"`
	Number           hexutil.Uint64 `json:"number"`
	GasLimit         hexutil.Uint64 `json:"gasLimit"`
	GasUsed          hexutil.Uint64 `json:"gasUsed"`
	Timestamp        hexutil.Uint64 `json:"timestamp"`
	ExtraData        hexutil.Bytes  `json:"extraData"`
	MixHash          common.Hash    `json:"mixHash"`
	Nonce            hexutil.Bytes  `json:"nonce"`
	BaseFeePerGas    *hexutil.Big   `json:"baseFeePerGas"`
}

// rlpHeader is the canonical encoding order for hashing.
// Field order must not change; the hash depends on it.
type rlpHeader struct {
	ParentHash       common.Hash
	OmmersHash       common.Hash
	Beneficiary      common.Address
	StateRoot        common.Hash
	TransactionsRoot common.Hash
	ReceiptsRoot     common.Hash
	LogsBloom        []byte
	Difficulty       *big.Int
	Number           *big.Int
	GasLimit         uint64
	GasUsed          uint64
	Timestamp        uint64
	ExtraData        []byte
	MixHash          common.Hash
	Nonce            [8]byte
	BaseFeePerGas    *big.Int `rlp:"optional"`
}

// Hash returns the keccak256 digest of the canonically encoded header.
func (h Header) Hash() common.Hash {
	enc := rlpHeader{
		ParentHash:       h.ParentHash,
		OmmersHash:       h.OmmersHash,
		Beneficiary:      h.Beneficiary,
		StateRoot:        h.StateRoot,
		TransactionsRoot: h.TransactionsRoot,
		ReceiptsRoot:     h.ReceiptsRoot,
		LogsBloom:        h.LogsBloom,
		Difficulty:       (*big.Int)(h.Difficulty),
		Number:           new(big.Int).SetUint64(uint64(h.Number)),
		GasLimit:         uint64(h.GasLimit),
		GasUsed:          uint64(h.GasUsed),
		Timestamp:        uint64(h.Timestamp),
		ExtraData:        h.ExtraData,
		MixHash:          h.MixHash,
		BaseFeePerGas:    (*big.Int)(h.BaseFeePerGas),
	}
	copy(enc.Nonce[:], h.Nonce)

	b, err := rlp.EncodeToBytes(&enc)
	if err != nil {
		// Every field above has a fixed, encodable shape.
		panic(err)
	}
	return crypto.Keccak256Hash(b)
}

// SealedHeader is a header paired with its hash,
// either computed locally or reported by a remote chain reader.
type SealedHeader struct {
	Header Header
	Hash   common.Hash
}

// Seal pairs the header with its computed hash.
func (h Header) Seal() SealedHeader {
	return SealedHeader{Header: h, Hash: h.Hash()}
}
