package pager

import "fmt"

// ───────────────────────────────────────────────────────────────────────────
// Crash recovery
// ───────────────────────────────────────────────────────────────────────────
//
// Recovery is redo-only: every logical record is reapplied in LSN order,
// regardless of whether the transaction that produced it ever committed.
// Idempotency comes from comparing each record's LSN against the target
// page's own LSN field (page.LSN < record.LSN => apply, else skip) — a
// page that already reflects a record, because it was flushed before the
// crash, is simply left alone.
//
// There is no undo pass: a transaction that was in flight at crash time
// keeps whatever of its effects made it into page images before the
// crash. Rolling those back would require before-images this WAL does
// not record; that asymmetry is accepted rather than engineered around.

// RecoveryManager replays a WAL against a buffer pool on startup.
type RecoveryManager struct {
	bpm *BufferPoolManager
	wal *WALManager
}

// NewRecoveryManager constructs a recovery manager bound to bpm and wal.
func NewRecoveryManager(bpm *BufferPoolManager, wal *WALManager) *RecoveryManager {
	return &RecoveryManager{bpm: bpm, wal: wal}
}

// Recover reads every WAL record and applies it, in LSN order and
// regardless of whether its transaction committed, to the pages it names;
// page mutations are skipped on a page whose LSN already covers them. It returns the highest transaction id and
// the highest page id observed, so the caller can resume id allocation
// past whatever recovery just replayed.
func (rm *RecoveryManager) Recover() (maxTxID TxID, maxPageID PageID, err error) {
	records, err := rm.wal.ReadAll()
	if err != nil {
		return 0, 0, fmt.Errorf("recovery: read WAL: %w", err)
	}

	for _, rec := range records {
		if rec.TxID > maxTxID {
			maxTxID = rec.TxID
		}
		if rec.PageID > maxPageID {
			maxPageID = rec.PageID
		}
		if rec.Type == WALDeleteFromTablePage && rec.RID.PageID > maxPageID {
			maxPageID = rec.RID.PageID
		}

		if err := rm.apply(rec); err != nil {
			return 0, 0, fmt.Errorf("recovery: apply LSN %d (%s): %w", rec.LSN, rec.Type, err)
		}
	}

	if err := rm.bpm.FlushAll(); err != nil {
		return 0, 0, fmt.Errorf("recovery: flush: %w", err)
	}
	if len(records) > 0 {
		rm.wal.SetNextLSN(records[len(records)-1].LSN + 1)
	}
	if err := rm.wal.Truncate(); err != nil {
		return 0, 0, fmt.Errorf("recovery: truncate WAL: %w", err)
	}
	return maxTxID, maxPageID, nil
}

// apply replays a single record against the page(s) it touches.
func (rm *RecoveryManager) apply(rec *WALRecord) error {
	switch rec.Type {
	case WALBegin, WALCommit, WALAbort:
		return nil

	case WALNewTablePage:
		buf := InitTablePage(make([]byte, PageSize), rec.PageID).Bytes()
		SetPageLSN(buf, rec.LSN)
		SetPageCRC(buf)
		return rm.bpm.InstallForRecovery(rec.PageID, buf)

	case WALNewBPlusTreeLeafPage:
		buf := InitBTreeLeafPage(make([]byte, PageSize), rec.PageID).buf
		SetPageLSN(buf, rec.LSN)
		SetPageCRC(buf)
		return rm.bpm.InstallForRecovery(rec.PageID, buf)

	case WALInsertToTablePage:
		return rm.withPage(rec.PageID, rec.LSN, func(buf []byte) error {
			tp := WrapTablePage(buf)
			_, err := tp.InsertTuple(rec.RowBytes)
			return err
		})

	case WALDeleteFromTablePage:
		return rm.withPage(rec.RID.PageID, rec.LSN, func(buf []byte) error {
			tp := WrapTablePage(buf)
			return tp.MutateTuple(rec.RID.Slot, func(tuple []byte) {
				markTupleDeleted(tuple, rec.TxID)
			})
		})

	case WALSetNextPageID:
		return rm.withPage(rec.PageID, rec.LSN, func(buf []byte) error {
			WrapTablePage(buf).SetNextPageID(rec.NextPageID)
			return nil
		})

	default:
		return fmt.Errorf("%w: unrecognized WAL record type %v", ErrCorruption, rec.Type)
	}
}

// withPage fetches id, applies fn if the page's LSN predates rec's LSN,
// stamps the new LSN, and marks the frame dirty.
func (rm *RecoveryManager) withPage(id PageID, lsn LSN, fn func(buf []byte) error) error {
	f, err := rm.bpm.FetchPage(id)
	if err != nil {
		return err
	}
	defer rm.bpm.UnpinPage(id, false)

	f.Lock()
	defer f.Unlock()
	if PageLSN(f.Bytes()) >= lsn {
		return nil
	}
	if err := fn(f.Bytes()); err != nil {
		return err
	}
	SetPageLSN(f.Bytes(), lsn)
	f.dirty = true
	return nil
}
