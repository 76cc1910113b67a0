package domain

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Digest hashes the snapshot so regression runs can compare book states
// without storing them. Level counts are hashed first so that moving a
// level between sides changes the digest.
func (infos OrderBookLevelInfos) Digest() uint64 {
	h := xxhash.New()
	var buf [16]byte

	binary.LittleEndian.PutUint64(buf[:8], uint64(len(infos.Bids)))
	binary.LittleEndian.PutUint64(buf[8:], uint64(len(infos.Asks)))
	_, _ = h.Write(buf[:])

	for _, levels := range []LevelInfos{infos.Bids, infos.Asks} {
		for _, l := range levels {
			binary.LittleEndian.PutUint64(buf[:8], uint64(l.Price))
			binary.LittleEndian.PutUint64(buf[8:], uint64(l.Quantity))
			_, _ = h.Write(buf[:])
		}
	}
	return h.Sum64()
}
