package cluster

import "bytes"

// SlotCount is the fixed keyslot space spec.md §4.5 hashes into.
const SlotCount = 16384

// Keyslot computes key's slot as its CRC-16/XMODEM hash modulo
// SlotCount, honoring the {...} hash-tag convention (spec.md §4.5): if key contains a matching
// pair of braces with at least one byte between them, only that
// substring is hashed, so multi-key operations can be routed to a
// single node by sharing a tag.
func Keyslot(key []byte) int {
	k := key
	if start := bytes.IndexByte(key, '{'); start >= 0 {
		if end := bytes.IndexByte(key[start+1:], '}'); end >= 0 && end > 0 {
			k = key[start+1 : start+1+end]
		}
	}
	return int(crc16(k)) % SlotCount
}

// crc16 is CRC-16/XMODEM (poly 0x1021, init 0x0000, no reflect, no
// xorout) — the fixed variant Redis Cluster uses for keyslot hashing.
// Implemented bit-by-bit rather than via a transcribed lookup table:
// no pack dependency covers this fixed protocol constant, so this is
// intrinsic domain math rather than a pluggable concern a library
// would own (see DESIGN.md).
func crc16(buf []byte) uint16 {
	var crc uint16
	for _, b := range buf {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
