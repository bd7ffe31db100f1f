package menginetest

import (
	"context"

	"github.com/monarch-engine/monarch/mchain"
)

// ChainReader is a map-backed fake of [mengine.ChainReader].
type ChainReader struct {
	Best    uint64
	Headers map[uint64]mchain.SealedHeader

	// When set, the corresponding method returns the error instead.
	BestErr   error
	HeaderErr error
}

func (r *ChainReader) BestBlockNumber(context.Context) (uint64, error) {
	if r.BestErr != nil {
		return 0, r.BestErr
	}
	return r.Best, nil
}

func (r *ChainReader) SealedHeader(_ context.Context, number uint64) (*mchain.SealedHeader, error) {
	if r.HeaderErr != nil {
		return nil, r.HeaderErr
	}
	h, ok := r.Headers[number]
	if !ok {
		return nil, nil
	}
	return &h, nil
}
