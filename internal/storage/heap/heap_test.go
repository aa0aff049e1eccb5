package heap

import (
	"path/filepath"
	"testing"

	"github.com/SimonWaldherr/pagedb/internal/storage/pager"
	"github.com/SimonWaldherr/pagedb/internal/storage/txn"
	"github.com/SimonWaldherr/pagedb/internal/storage/value"
)

func newTestHeapDeps(t *testing.T) (*pager.BufferPoolManager, *pager.WALManager, *txn.LockManager) {
	t.Helper()
	dir := t.TempDir()
	dm, err := pager.OpenDiskManager(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("open disk manager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	wm, err := pager.OpenWALManager(filepath.Join(dir, "wal.log"))
	if err != nil {
		t.Fatalf("open WAL manager: %v", err)
	}
	t.Cleanup(func() { wm.Close() })
	bpm := pager.NewBufferPoolManager(dm, wm, 32, nil)
	return bpm, wm, txn.NewLockManager()
}

// alwaysVisible satisfies heap.Visibility for tests that don't need real
// MVCC filtering.
type alwaysVisible struct{}

func (alwaysVisible) IsVisible(pager.TxID, pager.TxID, pager.TxID) bool { return true }

func testSchema() value.Schema {
	return value.Schema{Columns: []value.Column{
		{Name: "c1", Type: value.TypeInteger},
		{Name: "c2", Type: value.TypeVarchar},
	}}
}

func TestHeapInsertThenIteratorScanRoundTrip(t *testing.T) {
	bpm, wm, lockMgr := newTestHeapDeps(t)
	firstPageID, err := CreateHeap(bpm, wm, pager.InvalidTxID)
	if err != nil {
		t.Fatalf("create heap: %v", err)
	}

	h := NewTableHeap(firstPageID, bpm, wm, lockMgr, 1)
	rows := [][]value.Value{
		{value.NewInteger(1), value.NewVarchar("a")},
		{value.NewInteger(2), value.NewVarchar("b")},
	}
	for _, row := range rows {
		if _, err := h.Insert(row); err != nil {
			t.Fatalf("insert %v: %v", row, err)
		}
	}

	it := NewTableIterator(h, alwaysVisible{}, testSchema())
	var got [][]value.Value
	for {
		row, ok, err := it.Next()
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, row.Tuple.Values)
	}
	if len(got) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(got))
	}
	for i, row := range rows {
		if got[i][0].Compare(row[0]) != 0 || got[i][1].Compare(row[1]) != 0 {
			t.Fatalf("row %d: expected %v, got %v", i, row, got[i])
		}
	}
}

func TestHeapInsertExtendsPageChainWhenFull(t *testing.T) {
	bpm, wm, lockMgr := newTestHeapDeps(t)
	firstPageID, err := CreateHeap(bpm, wm, pager.InvalidTxID)
	if err != nil {
		t.Fatalf("create heap: %v", err)
	}
	h := NewTableHeap(firstPageID, bpm, wm, lockMgr, 1)

	big := value.NewVarchar(string(make([]byte, 200)))
	var inserted int
	for i := 0; i < 40; i++ {
		if _, err := h.Insert([]value.Value{value.NewInteger(int64(i)), big}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		inserted++
	}

	f, err := bpm.FetchPage(firstPageID)
	if err != nil {
		t.Fatalf("fetch first page: %v", err)
	}
	f.RLock()
	next := pager.WrapTablePage(f.Bytes()).NextPageID()
	f.RUnlock()
	bpm.UnpinPage(firstPageID, false)
	if next == pager.InvalidPageID {
		t.Fatal("expected the page chain to have grown past the first page")
	}

	it := NewTableIterator(h, alwaysVisible{}, value.Schema{Columns: []value.Column{
		{Name: "c1", Type: value.TypeInteger},
		{Name: "c2", Type: value.TypeVarchar},
	}})
	count := 0
	for {
		_, ok, err := it.Next()
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != inserted {
		t.Fatalf("expected to scan all %d inserted rows across the chain, got %d", inserted, count)
	}
}

func TestHeapDeleteSetsXmaxInPlace(t *testing.T) {
	bpm, wm, lockMgr := newTestHeapDeps(t)
	firstPageID, err := CreateHeap(bpm, wm, pager.InvalidTxID)
	if err != nil {
		t.Fatalf("create heap: %v", err)
	}
	h := NewTableHeap(firstPageID, bpm, wm, lockMgr, 1)
	rid, err := h.Insert([]value.Value{value.NewInteger(9), value.NewVarchar("z")})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := h.Delete(rid); err != nil {
		t.Fatalf("delete: %v", err)
	}

	f, err := bpm.FetchPage(rid.PageID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	f.RLock()
	tuple, err := pager.WrapTablePage(f.Bytes()).GetTuple(rid.Slot)
	f.RUnlock()
	bpm.UnpinPage(rid.PageID, false)
	if err != nil {
		t.Fatalf("get tuple: %v", err)
	}
	if pager.TupleXmax(tuple) != 1 {
		t.Fatalf("expected xmax set to deleting txn 1, got %d", pager.TupleXmax(tuple))
	}
	if pager.TupleXmin(tuple) != 1 {
		t.Fatalf("expected xmin unchanged at 1, got %d", pager.TupleXmin(tuple))
	}
}

func TestTableIteratorIsRestartable(t *testing.T) {
	bpm, wm, lockMgr := newTestHeapDeps(t)
	firstPageID, err := CreateHeap(bpm, wm, pager.InvalidTxID)
	if err != nil {
		t.Fatalf("create heap: %v", err)
	}
	h := NewTableHeap(firstPageID, bpm, wm, lockMgr, 1)
	if _, err := h.Insert([]value.Value{value.NewInteger(1), value.NewVarchar("a")}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	it := NewTableIterator(h, alwaysVisible{}, testSchema())
	first := 0
	for {
		_, ok, err := it.Next()
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		if !ok {
			break
		}
		first++
	}
	it.Reset()
	second := 0
	for {
		_, ok, err := it.Next()
		if err != nil {
			t.Fatalf("iterate after reset: %v", err)
		}
		if !ok {
			break
		}
		second++
	}
	if first != second {
		t.Fatalf("expected reset scan to see the same row count: first=%d second=%d", first, second)
	}
}
