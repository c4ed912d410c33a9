package storage

import (
	"encoding/binary"
	"math"
)

// On-disk layout, all integers little-endian:
//
//	[Reserved 9B] { [KeyLen 4B] [ValLen 4B] [Key] [Value] }*
//
// ValLen == Tombstone marks a deleted key and carries no value bytes.
const (
	HeaderSize       = 9
	RecordHeaderSize = 4 + 4

	Tombstone uint32 = math.MaxUint32

	// MaxValueSize is the largest value a record can frame.
	MaxValueSize = int64(Tombstone) - 1
)

// EncodeRecord frames one record. The result is written with a single write
// call so a failed append leaves at most a torn tail.
func EncodeRecord(key, value []byte, deleted bool) []byte {
	size := RecordHeaderSize + len(key)
	if !deleted {
		size += len(value)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(key)))
	if deleted {
		binary.LittleEndian.PutUint32(buf[4:8], Tombstone)
	} else {
		binary.LittleEndian.PutUint32(buf[4:8], uint32(len(value)))
	}
	n := copy(buf[RecordHeaderSize:], key)
	if !deleted {
		copy(buf[RecordHeaderSize+n:], value)
	}
	return buf
}

// decodeRecord reads the record starting at off. ok is false when fewer bytes
// remain than the record claims, which is how a torn tail looks. The returned
// slices alias b.
func decodeRecord(b []byte, off int) (key, value []byte, deleted bool, next int, ok bool) {
	end := uint64(len(b))
	pos := uint64(off)
	if pos+RecordHeaderSize > end {
		return nil, nil, false, off, false
	}
	keyLen := uint64(binary.LittleEndian.Uint32(b[pos : pos+4]))
	valLen := binary.LittleEndian.Uint32(b[pos+4 : pos+8])
	pos += RecordHeaderSize

	if pos+keyLen > end {
		return nil, nil, false, off, false
	}
	key = b[pos : pos+keyLen]
	pos += keyLen

	if valLen == Tombstone {
		return key, nil, true, int(pos), true
	}
	if pos+uint64(valLen) > end {
		return nil, nil, false, off, false
	}
	value = b[pos : pos+uint64(valLen)]
	pos += uint64(valLen)
	return key, value, false, int(pos), true
}
