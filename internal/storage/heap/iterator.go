package heap

import (
	"fmt"

	"github.com/SimonWaldherr/pagedb/internal/storage/pager"
	"github.com/SimonWaldherr/pagedb/internal/storage/value"
)

// Row pairs a decoded, visible tuple with the RID it was read from, so a
// caller can later Delete it.
type Row struct {
	RID   pager.RID
	Tuple value.Tuple
}

// TableIterator performs a restartable, physical-order scan of a heap,
// yielding only the row versions visible to its owning transaction.
// Visibility is re-checked on every call to Next, never cached, so a
// ReadCommitted scan observes concurrently committing transactions as it
// goes.
type TableIterator struct {
	heap    *TableHeap
	vis     Visibility
	schema  value.Schema
	curPage pager.PageID
	nextID  *pager.PageID
	tuples  [][]byte
	index   int
}

// NewTableIterator begins a scan of heap's chain from its first page.
func NewTableIterator(heap *TableHeap, vis Visibility, schema value.Schema) *TableIterator {
	it := &TableIterator{heap: heap, vis: vis, schema: schema}
	it.Reset()
	return it
}

// Reset rewinds the iterator to the start of the page chain.
func (it *TableIterator) Reset() {
	first := it.heap.firstPageID
	it.curPage = first
	it.nextID = &first
	it.tuples = nil
	it.index = 0
}

// Next returns the next visible row, or (Row{}, false) at end of scan.
func (it *TableIterator) Next() (Row, bool, error) {
	for {
		tuple, rid, ok, err := it.nextPhysical()
		if err != nil {
			return Row{}, false, err
		}
		if !ok {
			return Row{}, false, nil
		}
		t, err := value.DecodeTuple(tuple, it.schema)
		if err != nil {
			return Row{}, false, fmt.Errorf("heap: decode tuple at %v: %w", rid, err)
		}
		if it.vis.IsVisible(it.heap.txnID, t.Xmin, t.Xmax) {
			return Row{RID: rid, Tuple: t}, true, nil
		}
	}
}

// nextPhysical advances through the page chain without regard to
// visibility, loading the next page's tuples whenever the current page's
// are exhausted.
func (it *TableIterator) nextPhysical() ([]byte, pager.RID, bool, error) {
	for it.index >= len(it.tuples) {
		if it.nextID == nil {
			return nil, pager.RID{}, false, nil
		}
		pageID := *it.nextID

		f, err := it.heap.bpm.FetchPage(pageID)
		if err != nil {
			return nil, pager.RID{}, false, fmt.Errorf("heap: fetch page %d: %w", pageID, err)
		}
		f.RLock()
		tp := pager.WrapTablePage(f.Bytes())
		it.curPage = pageID
		next := tp.NextPageID()
		it.tuples = tp.AllTuples()
		f.RUnlock()
		it.heap.bpm.UnpinPage(pageID, false)

		it.index = 0
		if next == pager.InvalidPageID {
			it.nextID = nil
		} else {
			n := next
			it.nextID = &n
		}
	}
	tuple := it.tuples[it.index]
	rid := pager.RID{PageID: it.curPage, Slot: uint32(it.index)}
	it.index++
	return tuple, rid, true, nil
}
