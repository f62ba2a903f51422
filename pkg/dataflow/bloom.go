package dataflow

import "github.com/Sumatoshi-tech/tidalflow/pkg/progress"

// bloomBytes is the filter size per batch.
const bloomBytes = 128

// bloomHashes is the number of hash lanes per record.
const bloomHashes = 8

// Bloom folds each input batch into a Bloom filter and emits the filter as
// its bytes, one record per byte.
func Bloom(input *Stream[uint64]) *Stream[uint64] {
	return Unary(input, "Bloom", true, func(_ progress.Epoch, data []uint64) []uint64 {
		var filter [bloomBytes]byte

		for _, value := range data {
			for lane := uint64(0); lane < bloomHashes; lane++ {
				hash := bloomHash(value, lane)
				filter[(hash/8)%bloomBytes] |= 1 << (hash % 8)
			}
		}

		out := make([]uint64, bloomBytes)
		for i, b := range filter {
			out[i] = uint64(b)
		}

		return out
	})
}

// bloomHash mixes value with a per-lane seed; the shift-add-xor recipe
// follows the accelerated implementation.
func bloomHash(value, lane uint64) uint64 {
	hash := lane
	hash += value
	hash += hash << 10
	hash ^= hash >> 6
	hash += hash << 3
	hash ^= hash >> 11
	hash += hash << 15

	return hash
}
