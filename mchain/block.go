// Package mchain defines the chain primitive types for the monarch core:
// typed headers, bodies, and blocks matching the local wire schema.
//
// The types here are deliberately small.
// Execution-level validation of their contents belongs to the consensus engine;
// this package only provides construction, identity (hashing), and sealing.
package mchain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is the typed transaction as it appears in a full block body.
type Transaction struct {
	Hash     common.Hash     `json:"hash"`
	Nonce    hexutil.Uint64  `json:"nonce"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Value    *hexutil.Big    `json:"value"`
	Gas      hexutil.Uint64  `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Input    hexutil.Bytes   `json:"input"`
}

// Body holds everything in a block besides the header.
//
// The ommers field uses the local schema's name;
// wire schemas that call the same field "uncles"
// must be normalized before unmarshaling into a Body
// (see the mwire package).
type Body struct {
	Transactions []Transaction `json:"transactions"`
	Ommers       []Header      `json:"ommers"`
}

// Block is a typed header together with its body.
type Block struct {
	Header Header
	Body   Body
}

// NewBlock constructs a block from a typed header and body.
func NewBlock(header Header, body Body) *Block {
	return &Block{Header: header, Body: body}
}

// SealedBlock is a block paired with its header hash.
type SealedBlock struct {
	Block Block
	Hash  common.Hash
}

// Seal computes the block's hash and returns the sealed form.
func (b *Block) Seal() *SealedBlock {
	return &SealedBlock{Block: *b, Hash: b.Header.Hash()}
}
