package txn

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/SimonWaldherr/pagedb/internal/storage/pager"
)

// Status is the final disposition of a transaction, as recorded in the
// status log. There is no separate "running" status on disk: a
// transaction id with no status-log entry is running or never existed.
type Status uint8

const (
	StatusCommitted Status = 0
	StatusAborted   Status = 1
)

// IsolationLevel selects which of the two supported snapshot-visibility
// rules TransactionManager.IsVisible applies.
type IsolationLevel uint8

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
)

func (l IsolationLevel) String() string {
	if l == RepeatableRead {
		return "RepeatableRead"
	}
	return "ReadCommitted"
}

// runningTxn is the in-memory state kept for a transaction between Begin
// and Commit/Abort.
type runningTxn struct {
	// snapshot is the set of transaction ids that were themselves running
	// at the moment this transaction began; under RepeatableRead, inserts
	// and deletes made by any of them are not seen, regardless of whether
	// they later commit.
	snapshot map[pager.TxID]struct{}
}

// TransactionManager assigns transaction ids, records each transaction's
// final status to a dedicated, fsynced log (distinct from the WAL), and
// answers MVCC visibility questions for the table heap iterator.
type TransactionManager struct {
	mu        sync.Mutex
	lockMgr   *LockManager
	wal       *pager.WALManager
	statusLog *statusLog
	isolation IsolationLevel
	nextTxnID pager.TxID
	statuses  map[pager.TxID]Status
	running   map[pager.TxID]*runningTxn
	log       *logrus.Entry
}

// NewTransactionManager opens (or creates) the status log at path and
// rebuilds in-memory status/next-id state from it. wal is the engine's
// single WAL manager: Begin/Commit/Abort append their own logical records
// to it, and Commit/Abort flush it so a transaction's durability in the
// status log and the WAL advance together (spec.md §3, §4.5, §5).
func NewTransactionManager(lockMgr *LockManager, wal *pager.WALManager, path string, isolation IsolationLevel, log *logrus.Entry) (*TransactionManager, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	sl, entries, err := openStatusLog(path)
	if err != nil {
		return nil, err
	}

	statuses := make(map[pager.TxID]Status, len(entries))
	var maxID pager.TxID
	for _, e := range entries {
		statuses[e.txnID] = e.status
		if e.txnID > maxID {
			maxID = e.txnID
		}
	}
	nextID := pager.TxID(1)
	if maxID > 0 {
		nextID = maxID + 1
	}

	tm := &TransactionManager{
		lockMgr:   lockMgr,
		wal:       wal,
		statusLog: sl,
		isolation: isolation,
		nextTxnID: nextID,
		statuses:  statuses,
		running:   make(map[pager.TxID]*runningTxn),
		log:       log,
	}
	log.WithFields(logrus.Fields{
		"isolation":    isolation,
		"recoveredIDs": len(entries),
		"nextTxnID":    nextID,
	}).Info("transaction manager initialized")
	return tm, nil
}

// Begin starts a new transaction and returns its id. Every transaction
// captures the set of currently-running transaction ids as its snapshot;
// only RepeatableRead consults it, since under ReadCommitted visibility is
// re-evaluated against the current status log on every read.
func (tm *TransactionManager) Begin() pager.TxID {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	id := tm.nextTxnID
	tm.nextTxnID++

	snapshot := make(map[pager.TxID]struct{}, len(tm.running))
	for running := range tm.running {
		snapshot[running] = struct{}{}
	}
	tm.running[id] = &runningTxn{snapshot: snapshot}
	if _, err := tm.wal.Append(&pager.WALRecord{TxID: id, Type: pager.WALBegin}); err != nil {
		tm.log.WithError(err).WithField("txnID", id).Error("log begin record")
	}
	tm.log.WithField("txnID", id).Debug("begin transaction")
	return id
}

// Commit releases every lock held by txnID and durably records it as
// committed.
func (tm *TransactionManager) Commit(txnID pager.TxID) error {
	return tm.finish(txnID, StatusCommitted)
}

// Abort releases every lock held by txnID and durably records it as
// aborted. Effects the transaction already wrote into table pages are
// not rolled back; they simply become permanently invisible because no
// other transaction will ever see an Aborted xmin/xmax as committed.
func (tm *TransactionManager) Abort(txnID pager.TxID) error {
	return tm.finish(txnID, StatusAborted)
}

func (tm *TransactionManager) finish(txnID pager.TxID, status Status) error {
	tm.lockMgr.UnlockAll(txnID)

	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, ok := tm.running[txnID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTransaction, txnID)
	}
	if err := tm.statusLog.append(txnID, status); err != nil {
		return err
	}
	walType := pager.WALCommit
	if status == StatusAborted {
		walType = pager.WALAbort
	}
	if _, err := tm.wal.Append(&pager.WALRecord{TxID: txnID, Type: walType}); err != nil {
		return fmt.Errorf("txn: log %s record: %w", walType, err)
	}
	if err := tm.wal.Flush(); err != nil {
		return fmt.Errorf("txn: flush WAL on finish: %w", err)
	}
	tm.statuses[txnID] = status
	delete(tm.running, txnID)
	tm.log.WithFields(logrus.Fields{"txnID": txnID, "status": status}).Debug("finish transaction")
	return nil
}

// IsVisible decides whether a row version created by xmin and (if
// non-zero) deleted by xmax is visible to txnID, under the manager's
// configured isolation level.
func (tm *TransactionManager) IsVisible(txnID, xmin, xmax pager.TxID) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.isolation == RepeatableRead {
		return tm.isVisibleRepeatableReadLocked(txnID, xmin, xmax)
	}
	return tm.isVisibleReadCommittedLocked(txnID, xmin, xmax)
}

func (tm *TransactionManager) isVisibleReadCommittedLocked(txnID, xmin, xmax pager.TxID) bool {
	if txnID == xmin {
		return txnID != xmax
	}
	xminStatus, xminKnown := tm.statuses[xmin]
	if !xminKnown || xminStatus != StatusCommitted {
		return false
	}
	if xmax == pager.InvalidTxID {
		return true
	}
	xmaxStatus, xmaxKnown := tm.statuses[xmax]
	return !xmaxKnown || xmaxStatus != StatusCommitted
}

func (tm *TransactionManager) isVisibleRepeatableReadLocked(txnID, xmin, xmax pager.TxID) bool {
	if txnID == xmin {
		return txnID != xmax
	}
	rt, ok := tm.running[txnID]
	if !ok {
		return false
	}
	xminVisible := tm.isValidWithSnapshotLocked(txnID, xmin, rt.snapshot)
	xmaxVisible := tm.isValidWithSnapshotLocked(txnID, xmax, rt.snapshot)
	if !xminVisible {
		return false
	}
	return !xmaxVisible
}

// isValidWithSnapshotLocked reports whether target (as an xmin or xmax)
// counts as having happened, from txnID's point of view: it must either be
// txnID itself (the "Running-but-same-as-reader" case — a reader always
// sees the effect of its own still-open delete of someone else's row), or
// it must not be from the future, must not have been concurrently running
// when txnID began, and must not have aborted.
func (tm *TransactionManager) isValidWithSnapshotLocked(txnID, target pager.TxID, snapshot map[pager.TxID]struct{}) bool {
	if target == txnID {
		return true
	}
	if target > txnID {
		return false
	}
	if _, wasRunning := snapshot[target]; wasRunning {
		return false
	}
	status, known := tm.statuses[target]
	if !known {
		return false
	}
	return status != StatusAborted
}

// Close closes the underlying status log file.
func (tm *TransactionManager) Close() error { return tm.statusLog.close() }

// ───────────────────────────────────────────────────────────────────────────
// Status log
// ───────────────────────────────────────────────────────────────────────────
//
// A flat, append-only file of fixed 5-byte records, independent of the
// WAL: [0:4] TxID BE, [4] Status (0=Committed, 1=Aborted). There is no
// record for a running transaction; its absence on restart is what makes
// it "never happened" to anyone reading the log back.

const statusLogRecordSize = 5

type statusLogEntry struct {
	txnID  pager.TxID
	status Status
}

type statusLog struct {
	mu sync.Mutex
	f  *os.File
}

func openStatusLog(path string) (*statusLog, []statusLogEntry, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("txn: open status log: %w", err)
	}
	sl := &statusLog{f: f}
	entries, err := sl.readAll()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return sl, entries, nil
}

func (sl *statusLog) readAll() ([]statusLogEntry, error) {
	if _, err := sl.f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("txn: seek status log: %w", err)
	}
	var buf [statusLogRecordSize]byte
	var entries []statusLogEntry
	for {
		_, err := io.ReadFull(sl.f, buf[:])
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			// Torn trailing write from a crash mid-append; discard it.
			break
		}
		if err != nil {
			return nil, fmt.Errorf("txn: read status log: %w", err)
		}
		status := Status(buf[4])
		if status != StatusCommitted && status != StatusAborted {
			return nil, fmt.Errorf("%w: status byte %d", ErrStatusLogCorrupt, buf[4])
		}
		entries = append(entries, statusLogEntry{
			txnID:  pager.TxID(binary.BigEndian.Uint32(buf[0:4])),
			status: status,
		})
	}
	return entries, nil
}

func (sl *statusLog) append(txnID pager.TxID, status Status) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	var buf [statusLogRecordSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(txnID))
	buf[4] = byte(status)
	if _, err := sl.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("txn: seek status log end: %w", err)
	}
	if _, err := sl.f.Write(buf[:]); err != nil {
		return fmt.Errorf("txn: write status log: %w", err)
	}
	return sl.f.Sync()
}

func (sl *statusLog) close() error { return sl.f.Close() }
