// Package mlog has shared helpers for log/slog attributes.
package mlog

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
)

// Hash returns a slog attr rendering the hash as 0x-prefixed hex.
func Hash(key string, h common.Hash) slog.Attr {
	return slog.String(key, h.Hex())
}

// Err returns the conventional error attr.
func Err(e error) slog.Attr {
	return slog.Any("err", e)
}
