package storage

import (
	"testing"
)

func TestDecodeRecordTruncated(t *testing.T) {
	rec := EncodeRecord([]byte("key"), []byte("value"), false)
	for cut := 0; cut < len(rec); cut++ {
		if _, _, _, next, ok := decodeRecord(rec[:cut], 0); ok || next != 0 {
			t.Fatalf("cut=%d: expected torn record, got ok=%v next=%d", cut, ok, next)
		}
	}
	key, val, deleted, next, ok := decodeRecord(rec, 0)
	if !ok || deleted || string(key) != "key" || string(val) != "value" || next != len(rec) {
		t.Fatalf("unexpected decode: key=%q val=%q deleted=%v next=%d ok=%v", key, val, deleted, next, ok)
	}
}

func TestDecodeTombstone(t *testing.T) {
	rec := EncodeRecord([]byte("gone"), []byte("ignored"), true)
	if len(rec) != RecordHeaderSize+4 {
		t.Fatalf("tombstone must carry no value bytes, len=%d", len(rec))
	}
	key, val, deleted, next, ok := decodeRecord(rec, 0)
	if !ok || !deleted || string(key) != "gone" || val != nil || next != len(rec) {
		t.Fatalf("unexpected decode: key=%q val=%q deleted=%v next=%d ok=%v", key, val, deleted, next, ok)
	}
}

func TestDecodeHugeLengthIsTorn(t *testing.T) {
	// key_len claims far more bytes than exist
	b := []byte{0xFF, 0xFF, 0xFF, 0x7F, 0, 0, 0, 0, 'x'}
	if _, _, _, _, ok := decodeRecord(b, 0); ok {
		t.Fatal("expected oversized record to be treated as torn")
	}
}
