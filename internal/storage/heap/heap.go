// Package heap implements the append-only, page-linked table heap: row
// insertion with page-chain growth, in-place delete via Xmax rewrite, and
// a restartable physical-order scan filtered by MVCC visibility.
package heap

import (
	"fmt"

	"github.com/SimonWaldherr/pagedb/internal/storage/pager"
	"github.com/SimonWaldherr/pagedb/internal/storage/txn"
	"github.com/SimonWaldherr/pagedb/internal/storage/value"
)

// Visibility is the subset of *txn.TransactionManager the heap and its
// iterator depend on, so tests can supply a fake.
type Visibility interface {
	IsVisible(txnID, xmin, xmax pager.TxID) bool
}

// TableHeap is an append-only sequence of table pages chained by
// NextPageID, rooted at a fixed first page. Every row insert, delete and
// chain link is WAL-logged before it touches a page (a freshly allocated
// page is initialised first and logged right after), and the WAL record's
// page id lets recovery
// replay the same mutation without re-running any SQL-level logic.
type TableHeap struct {
	firstPageID pager.PageID
	bpm         *pager.BufferPoolManager
	wal         *pager.WALManager
	lockMgr     *txn.LockManager
	txnID       pager.TxID
}

// NewTableHeap constructs a heap view rooted at firstPageID, operating on
// behalf of txnID.
func NewTableHeap(firstPageID pager.PageID, bpm *pager.BufferPoolManager, wal *pager.WALManager, lockMgr *txn.LockManager, txnID pager.TxID) *TableHeap {
	return &TableHeap{firstPageID: firstPageID, bpm: bpm, wal: wal, lockMgr: lockMgr, txnID: txnID}
}

// FirstPageID returns the heap's root page id, the value a catalog entry
// persists to find this table again.
func (h *TableHeap) FirstPageID() pager.PageID { return h.firstPageID }

// CreateHeap allocates and WAL-logs a fresh, single-page heap and returns
// its root page id.
func CreateHeap(bpm *pager.BufferPoolManager, wal *pager.WALManager, txnID pager.TxID) (pager.PageID, error) {
	f, err := bpm.NewPage(pager.PageTypeTable)
	if err != nil {
		return 0, fmt.Errorf("heap: allocate root page: %w", err)
	}
	id := f.ID()
	f.Lock()
	pager.InitTablePage(f.Bytes(), id)
	f.Unlock()
	if _, err := wal.Append(&pager.WALRecord{TxID: txnID, Type: pager.WALNewTablePage, PageID: id}); err != nil {
		bpm.UnpinPage(id, true)
		return 0, fmt.Errorf("heap: log root page: %w", err)
	}
	bpm.UnpinPage(id, true)
	return id, nil
}

// Insert appends values as a new row version owned by h's transaction,
// walking the page chain for free space and extending it with a fresh
// page when every existing page is full.
func (h *TableHeap) Insert(values []value.Value) (pager.RID, error) {
	tuple := value.Tuple{Xmin: h.txnID, Xmax: pager.InvalidTxID, Values: values}
	row := value.EncodeTuple(tuple)

	pageID := h.firstPageID
	for {
		f, err := h.bpm.FetchPage(pageID)
		if err != nil {
			return pager.RID{}, fmt.Errorf("heap: fetch page %d: %w", pageID, err)
		}

		f.Lock()
		tp := pager.WrapTablePage(f.Bytes())
		if tp.FreeSpace() >= len(row)+8 {
			lsn, err := h.wal.Append(&pager.WALRecord{TxID: h.txnID, Type: pager.WALInsertToTablePage, PageID: pageID, RowBytes: row})
			if err != nil {
				f.Unlock()
				h.bpm.UnpinPage(pageID, false)
				return pager.RID{}, fmt.Errorf("heap: log insert: %w", err)
			}
			slot, err := tp.InsertTuple(row)
			if err != nil {
				f.Unlock()
				h.bpm.UnpinPage(pageID, false)
				return pager.RID{}, fmt.Errorf("heap: insert tuple: %w", err)
			}
			tp.SetLSN(lsn)
			f.Unlock()
			h.bpm.UnpinPage(pageID, true)
			return pager.RID{PageID: pageID, Slot: slot}, nil
		}

		next := tp.NextPageID()
		if next != pager.InvalidPageID {
			f.Unlock()
			h.bpm.UnpinPage(pageID, false)
			pageID = next
			continue
		}

		// Page chain exhausted: allocate a new page and link it in.
		nf, err := h.bpm.NewPage(pager.PageTypeTable)
		if err != nil {
			f.Unlock()
			h.bpm.UnpinPage(pageID, false)
			return pager.RID{}, fmt.Errorf("heap: extend chain: %w", err)
		}
		newID := nf.ID()
		nf.Lock()
		pager.InitTablePage(nf.Bytes(), newID)
		nf.Unlock()
		if _, err := h.wal.Append(&pager.WALRecord{TxID: h.txnID, Type: pager.WALNewTablePage, PageID: newID}); err != nil {
			f.Unlock()
			h.bpm.UnpinPage(pageID, false)
			h.bpm.UnpinPage(newID, true)
			return pager.RID{}, fmt.Errorf("heap: log new page: %w", err)
		}
		lsn, err := h.wal.Append(&pager.WALRecord{TxID: h.txnID, Type: pager.WALSetNextPageID, PageID: pageID, NextPageID: newID})
		if err != nil {
			f.Unlock()
			h.bpm.UnpinPage(pageID, false)
			h.bpm.UnpinPage(newID, true)
			return pager.RID{}, fmt.Errorf("heap: log chain link: %w", err)
		}
		tp.SetNextPageID(newID)
		tp.SetLSN(lsn)
		f.Unlock()
		h.bpm.UnpinPage(pageID, true)
		h.bpm.UnpinPage(newID, true)
		pageID = newID
	}
}

// Delete rewrites the row at rid's Xmax to h's transaction id, after
// acquiring the row's exclusive lock. The line pointer and tuple bytes
// otherwise stay exactly where they were: no slot is ever removed.
func (h *TableHeap) Delete(rid pager.RID) error {
	h.lockMgr.Lock(h.txnID, rid)

	f, err := h.bpm.FetchPage(rid.PageID)
	if err != nil {
		return fmt.Errorf("heap: fetch page %d: %w", rid.PageID, err)
	}
	defer h.bpm.UnpinPage(rid.PageID, true)

	f.Lock()
	defer f.Unlock()
	lsn, err := h.wal.Append(&pager.WALRecord{TxID: h.txnID, Type: pager.WALDeleteFromTablePage, RID: rid})
	if err != nil {
		return fmt.Errorf("heap: log delete: %w", err)
	}
	tp := pager.WrapTablePage(f.Bytes())
	if err := tp.MutateTuple(rid.Slot, func(tuple []byte) {
		pager.SetTupleXmax(tuple, h.txnID)
	}); err != nil {
		return fmt.Errorf("heap: delete slot %d: %w", rid.Slot, err)
	}
	tp.SetLSN(lsn)
	return nil
}
