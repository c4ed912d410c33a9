package memory

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

type Item struct {
	Key []byte
	Val []byte
}

func (i Item) Less(than btree.Item) bool {
	return bytes.Compare(i.Key, than.(Item).Key) < 0
}

// MemTable is an ordered key set. Replaying a log into it in append order
// leaves exactly the last-written value per key.
type MemTable struct {
	tree *btree.BTree
	lock sync.RWMutex
}

func NewMemTable(degree int) *MemTable {
	return &MemTable{
		tree: btree.New(degree),
	}
}

func (mt *MemTable) Put(key, val []byte) {
	mt.lock.Lock()
	defer mt.lock.Unlock()

	mt.tree.ReplaceOrInsert(Item{Key: key, Val: val})
}

func (mt *MemTable) Delete(key []byte) {
	mt.lock.Lock()
	defer mt.lock.Unlock()

	mt.tree.Delete(Item{Key: key})
}

// Scan returns items with start <= key < end. A nil start or end leaves that
// side open.
func (mt *MemTable) Scan(start, end []byte) []Item {
	mt.lock.RLock()
	defer mt.lock.RUnlock()

	var res []Item
	visit := func(i btree.Item) bool {
		it := i.(Item)
		if end != nil && bytes.Compare(it.Key, end) >= 0 {
			return false
		}
		res = append(res, it)
		return true
	}
	if start == nil {
		mt.tree.Ascend(visit)
	} else {
		mt.tree.AscendGreaterOrEqual(Item{Key: start}, visit)
	}
	return res
}
