// Package instance wires the storage engine's components together:
// disk manager, WAL manager, buffer pool, lock manager, transaction
// manager, and catalog, plus the crash-recovery pass that runs before any
// of them accept new work.
package instance

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/SimonWaldherr/pagedb/internal/storage/catalog"
	"github.com/SimonWaldherr/pagedb/internal/storage/config"
	"github.com/SimonWaldherr/pagedb/internal/storage/heap"
	"github.com/SimonWaldherr/pagedb/internal/storage/pager"
	"github.com/SimonWaldherr/pagedb/internal/storage/txn"
	"github.com/SimonWaldherr/pagedb/internal/storage/value"
)

const (
	dataFileName   = "data"
	walFileName    = "wal.log"
	statusFileName = "txn.status"
)

// Instance is one running copy of the storage engine, bound to a single
// data directory.
type Instance struct {
	ID uuid.UUID

	Disk     *pager.DiskManager
	WAL      *pager.WALManager
	Pool     *pager.BufferPoolManager
	Locks    *txn.LockManager
	Txns     *txn.TransactionManager
	Catalog  *catalog.Catalog
	Registry *prometheus.Registry

	log *logrus.Entry
}

// Open brings up an instance rooted at dir. When init is true, dir is
// wiped and recreated and the catalog is bootstrapped fresh; otherwise an
// existing data/WAL/status-log triple is reopened and the WAL is replayed
// through the redo recovery pass before the instance is returned ready
// for use.
func Open(cfg config.Config, init bool) (*Instance, error) {
	instanceID := uuid.New()
	log := logrus.WithFields(logrus.Fields{"instance": instanceID.String()})

	if init {
		if err := os.RemoveAll(cfg.DataDir); err != nil {
			return nil, fmt.Errorf("instance: clear data dir: %w", err)
		}
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("instance: create data dir: %w", err)
	}

	disk, err := pager.OpenDiskManager(filepath.Join(cfg.DataDir, dataFileName))
	if err != nil {
		return nil, err
	}
	wal, err := pager.OpenWALManager(filepath.Join(cfg.DataDir, walFileName))
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := pager.NewPoolMetrics(registry, instanceID.String())
	pool := pager.NewBufferPoolManager(disk, wal, cfg.BufferPoolFrames, metrics)

	if !init {
		rm := pager.NewRecoveryManager(pool, wal)
		maxTxID, maxPageID, err := rm.Recover()
		if err != nil {
			return nil, fmt.Errorf("instance: recovery: %w", err)
		}
		log.WithFields(logrus.Fields{"maxTxnID": maxTxID, "maxPageID": maxPageID}).Info("recovery complete")
	}

	locks := txn.NewLockManager()
	txnMgr, err := txn.NewTransactionManager(locks, wal, filepath.Join(cfg.DataDir, statusFileName), cfg.IsolationLevel(), log)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(pool, wal, locks, txnMgr)
	if err := cat.Bootstrap(init); err != nil {
		return nil, fmt.Errorf("instance: bootstrap catalog: %w", err)
	}

	inst := &Instance{
		ID:       instanceID,
		Disk:     disk,
		WAL:      wal,
		Pool:     pool,
		Locks:    locks,
		Txns:     txnMgr,
		Catalog:  cat,
		Registry: registry,
		log:      log,
	}
	log.Info("instance opened")
	return inst, nil
}

// CreateTable registers a new table in the catalog and allocates its heap,
// inside its own transaction.
func (i *Instance) CreateTable(name string, schema value.Schema) error {
	txnID := i.Txns.Begin()
	if err := i.Catalog.CreateTable(name, schema, txnID); err != nil {
		i.Txns.Abort(txnID)
		return err
	}
	return i.Txns.Commit(txnID)
}

// OpenHeap returns a TableHeap view of an existing table, bound to txnID.
func (i *Instance) OpenHeap(tableName string, txnID pager.TxID) (*heap.TableHeap, value.Schema, error) {
	firstPageID, err := i.Catalog.GetFirstPageID(tableName, txnID)
	if err != nil {
		return nil, value.Schema{}, err
	}
	schema, err := i.Catalog.GetSchema(tableName, txnID)
	if err != nil {
		return nil, value.Schema{}, err
	}
	return heap.NewTableHeap(firstPageID, i.Pool, i.WAL, i.Locks, txnID), schema, nil
}

// Shutdown flushes every dirty page and closes the underlying files.
func (i *Instance) Shutdown() error {
	if err := i.Pool.FlushAll(); err != nil {
		return fmt.Errorf("instance: flush on shutdown: %w", err)
	}
	if err := i.WAL.Close(); err != nil {
		return err
	}
	if err := i.Txns.Close(); err != nil {
		return err
	}
	if err := i.Disk.Close(); err != nil {
		return err
	}
	i.log.Info("instance shut down")
	return nil
}
