package mengine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/monarch-engine/monarch/mchain"
)

// ExecutionPayload is the engine-facing serialized representation of a block,
// as submitted through new-payload calls.
type ExecutionPayload struct {
	ParentHash    common.Hash     `json:"parentHash"`
	FeeRecipient  common.Address  `json:"feeRecipient"`
	StateRoot     common.Hash     `json:"stateRoot"`
	ReceiptsRoot  common.Hash     `json:"receiptsRoot"`
	LogsBloom     hexutil.Bytes   `json:"logsBloom"`
	PrevRandao    common.Hash     `json:"prevRandao"`
	BlockNumber   hexutil.Uint64  `json:"blockNumber"`
	GasLimit      hexutil.Uint64  `json:"gasLimit"`
	GasUsed       hexutil.Uint64  `json:"gasUsed"`
	Timestamp     hexutil.Uint64  `json:"timestamp"`
	ExtraData     hexutil.Bytes   `json:"extraData"`
	BaseFeePerGas *hexutil.Big    `json:"baseFeePerGas"`
	BlockHash     common.Hash     `json:"blockHash"`
	Transactions  []hexutil.Bytes `json:"transactions"`
}

// BuiltPayload is the result of resolving a payload build job.
type BuiltPayload struct {
	Payload ExecutionPayload

	// BlockValue is the builder's reported value of the block, if any.
	BlockValue *big.Int
}

// rlpTransaction is the opaque encoding of a transaction inside a payload.
type rlpTransaction struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Input    []byte
}

// PayloadFromBlock converts a sealed local block into the engine's wire form.
func PayloadFromBlock(b *mchain.SealedBlock) ExecutionPayload {
	h := b.Block.Header

	txs := make([]hexutil.Bytes, 0, len(b.Block.Body.Transactions))
	for _, tx := range b.Block.Body.Transactions {
		enc, err := rlp.EncodeToBytes(&rlpTransaction{
			Nonce:    uint64(tx.Nonce),
			GasPrice: (*big.Int)(tx.GasPrice),
			Gas:      uint64(tx.Gas),
			To:       tx.To,
			Value:    (*big.Int)(tx.Value),
			Input:    tx.Input,
		})
		if err != nil {
			// Fixed-shape struct; encoding cannot fail.
			panic(err)
		}
		txs = append(txs, enc)
	}

	return ExecutionPayload{
		ParentHash:    h.ParentHash,
		FeeRecipient:  h.Beneficiary,
		StateRoot:     h.StateRoot,
		ReceiptsRoot:  h.ReceiptsRoot,
		LogsBloom:     h.LogsBloom,
		PrevRandao:    h.MixHash,
		BlockNumber:   h.Number,
		GasLimit:      h.GasLimit,
		GasUsed:       h.GasUsed,
		Timestamp:     h.Timestamp,
		ExtraData:     h.ExtraData,
		BaseFeePerGas: h.BaseFeePerGas,
		BlockHash:     b.Hash,
		Transactions:  txs,
	}
}
