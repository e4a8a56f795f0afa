// Package btree implements a clustered, fixed-key B+Tree index with
// latch-crabbing search/insert/delete, grounded in
// original_source/src/storage/page/b_plus_tree_{leaf,internal}_page.cpp
// and original_source/src/storage/index/b_plus_tree.cpp. The original
// instantiates its tree once per key width via a C++ template
// (GenericKey<4>, GenericKey<8>, ...); here that becomes a single Go
// generic type parameter over the two integer key widths spec.md's
// fixed-width key requirement actually needs.
package btree

import (
	"encoding/binary"
)

// Key is the set of fixed-width, totally ordered integer key types a Tree
// can be instantiated over. Restricting to exact (non-~) types lets key
// encode/decode switch on the concrete type without reflection.
type Key interface {
	int32 | int64
}

// keySize returns the on-disk width of K in bytes: 4 for int32, 8 for
// int64.
func keySize[K Key]() int {
	var k K
	switch any(k).(type) {
	case int32:
		return 4
	case int64:
		return 8
	default:
		panic("btree: unsupported key type")
	}
}

// encodeKey writes k to buf in big-endian order so byte-wise comparison of
// encoded keys agrees with numeric comparison for non-negative keys, and
// so two's-complement sign bit flips keep negative keys ordered before
// positive ones when XORed with the sign bit. Fixed-width integer primary
// keys are assumed non-negative in practice (auto-increment ids); the sign
// flip is included for correctness on the general case.
func encodeKey[K Key](k K, buf []byte) {
	switch v := any(k).(type) {
	case int32:
		u := uint32(v) ^ (1 << 31)
		binary.BigEndian.PutUint32(buf, u)
	case int64:
		u := uint64(v) ^ (1 << 63)
		binary.BigEndian.PutUint64(buf, u)
	default:
		panic("btree: unsupported key type")
	}
}

func decodeKey[K Key](buf []byte) K {
	var zero K
	switch any(zero).(type) {
	case int32:
		u := binary.BigEndian.Uint32(buf) ^ (1 << 31)
		return any(int32(u)).(K)
	case int64:
		u := binary.BigEndian.Uint64(buf) ^ (1 << 63)
		return any(int64(u)).(K)
	default:
		panic("btree: unsupported key type")
	}
}

func compareKey[K Key](a, b K) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
