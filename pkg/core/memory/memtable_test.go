package memory

import (
	"testing"
)

func TestMemTableReplayKeepsLastWrite(t *testing.T) {
	mt := NewMemTable(4)
	mt.Put([]byte("a"), []byte("1"))
	mt.Put([]byte("b"), []byte("2"))
	mt.Put([]byte("a"), []byte("3"))
	mt.Delete([]byte("b"))

	items := mt.Scan(nil, nil)
	if len(items) != 1 || string(items[0].Key) != "a" || string(items[0].Val) != "3" {
		t.Fatalf("expected only a=3, got %v", items)
	}
}

func TestMemTableScanBounds(t *testing.T) {
	mt := NewMemTable(4)
	for _, k := range []string{"d", "a", "c", "b", "e"} {
		mt.Put([]byte(k), []byte("v"+k))
	}

	cases := []struct {
		start, end string
		want       string
	}{
		{"", "", "abcde"},
		{"b", "", "bcde"},
		{"", "c", "ab"},
		{"b", "d", "bc"},
		{"x", "", ""},
	}
	for _, c := range cases {
		var start, end []byte
		if c.start != "" {
			start = []byte(c.start)
		}
		if c.end != "" {
			end = []byte(c.end)
		}
		got := ""
		for _, it := range mt.Scan(start, end) {
			got += string(it.Key)
		}
		if got != c.want {
			t.Errorf("scan [%q,%q): got %q want %q", c.start, c.end, got, c.want)
		}
	}
}
