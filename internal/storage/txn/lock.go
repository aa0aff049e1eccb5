// Package txn implements row-level locking and transaction lifecycle
// management: a single-mode exclusive lock manager and a transaction
// manager that tracks status in a separate, fsynced log and evaluates
// MVCC snapshot visibility per isolation level.
package txn

import (
	"sync"

	"github.com/SimonWaldherr/pagedb/internal/storage/pager"
)

// lockRequest is the condition-variable gate guarding one RID: while
// holder is non-zero, any other transaction calling Lock blocks on cond.
type lockRequest struct {
	mu     sync.Mutex
	cond   *sync.Cond
	holder pager.TxID
}

func newLockRequest() *lockRequest {
	lr := &lockRequest{}
	lr.cond = sync.NewCond(&lr.mu)
	return lr
}

// LockManager grants exclusive, row-level locks keyed by RID. There is no
// shared-lock mode, no lock upgrade, and no deadlock detection: a
// transaction that waits on a RID held (directly or transitively) by a
// transaction waiting on one of its own locks blocks forever. Callers are
// expected to acquire locks in a consistent order to avoid that.
type LockManager struct {
	mu          sync.Mutex
	requests    map[pager.RID]*lockRequest
	heldByTxn   map[pager.TxID][]pager.RID
}

// NewLockManager constructs an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{
		requests:  make(map[pager.RID]*lockRequest),
		heldByTxn: make(map[pager.TxID][]pager.RID),
	}
}

// Lock acquires the exclusive lock on rid for txnID, blocking until any
// current holder releases it via UnlockAll at commit/abort.
func (lm *LockManager) Lock(txnID pager.TxID, rid pager.RID) {
	lm.mu.Lock()
	lr, ok := lm.requests[rid]
	if !ok {
		lr = newLockRequest()
		lm.requests[rid] = lr
	}
	lm.mu.Unlock()

	lr.mu.Lock()
	for lr.holder != pager.InvalidTxID {
		lr.cond.Wait()
	}
	lr.holder = txnID
	lr.mu.Unlock()

	lm.mu.Lock()
	lm.heldByTxn[txnID] = append(lm.heldByTxn[txnID], rid)
	lm.mu.Unlock()
}

// UnlockAll releases every lock held by txnID, waking any transaction
// waiting on those rows. Called once, at commit or abort.
func (lm *LockManager) UnlockAll(txnID pager.TxID) {
	lm.mu.Lock()
	rids := lm.heldByTxn[txnID]
	delete(lm.heldByTxn, txnID)
	lm.mu.Unlock()

	for _, rid := range rids {
		lm.mu.Lock()
		lr, ok := lm.requests[rid]
		lm.mu.Unlock()
		if !ok {
			continue
		}
		lr.mu.Lock()
		lr.holder = pager.InvalidTxID
		lr.cond.Broadcast()
		lr.mu.Unlock()
	}
}
