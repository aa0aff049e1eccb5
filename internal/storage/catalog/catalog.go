// Package catalog implements the self-describing system catalog: table
// and column metadata stored in two fixed-page-id table heaps rather than
// a dedicated on-disk structure, so catalog lookups reuse exactly the same
// insert/scan path as any other table.
package catalog

import (
	"fmt"

	"github.com/SimonWaldherr/pagedb/internal/storage/heap"
	"github.com/SimonWaldherr/pagedb/internal/storage/pager"
	"github.com/SimonWaldherr/pagedb/internal/storage/txn"
	"github.com/SimonWaldherr/pagedb/internal/storage/value"
)

const (
	systemTableCount = 2

	SystemTablesFirstPageID  pager.PageID = 1
	SystemColumnsFirstPageID pager.PageID = 2
)

// systemTablesSchema describes the system_tables heap: one row per
// user/system table, naming its root page.
func systemTablesSchema() value.Schema {
	return value.Schema{Columns: []value.Column{
		{Name: "id", Type: value.TypeInteger},
		{Name: "name", Type: value.TypeVarchar},
		{Name: "first_page_id", Type: value.TypeInteger},
	}}
}

// systemColumnsSchema describes the system_columns heap: one row per
// column of every table named in system_tables.
func systemColumnsSchema() value.Schema {
	return value.Schema{Columns: []value.Column{
		{Name: "table_id", Type: value.TypeInteger},
		{Name: "name", Type: value.TypeVarchar},
		{Name: "ordinal_position", Type: value.TypeInteger},
		{Name: "data_type", Type: value.TypeInteger},
	}}
}

// Catalog resolves table names to their root page and schema by scanning
// the two system heaps. It keeps no in-memory cache: every lookup is a
// fresh, MVCC-visible scan, so a catalog change made by one transaction
// is only visible to others once it commits, exactly like any other row.
type Catalog struct {
	bpm        *pager.BufferPoolManager
	wal        *pager.WALManager
	lockMgr    *txn.LockManager
	txnMgr     *txn.TransactionManager
	nextTableID uint32
}

// New constructs a catalog bound to the given storage components. Call
// Bootstrap once before first use.
func New(bpm *pager.BufferPoolManager, wal *pager.WALManager, lockMgr *txn.LockManager, txnMgr *txn.TransactionManager) *Catalog {
	return &Catalog{bpm: bpm, wal: wal, lockMgr: lockMgr, txnMgr: txnMgr}
}

// Bootstrap prepares the catalog. When init is true it allocates the two
// fixed system pages and registers both system tables inside
// system_tables/system_columns; otherwise it rebuilds nextTableID by
// scanning the existing system_tables heap, for reopening an existing
// database file.
func (c *Catalog) Bootstrap(init bool) error {
	if !init {
		return c.rebuildNextTableID()
	}

	for i := 0; i < systemTableCount; i++ {
		if _, err := heap.CreateHeap(c.bpm, c.wal, pager.InvalidTxID); err != nil {
			return fmt.Errorf("catalog: bootstrap system page %d: %w", i, err)
		}
	}

	txnID := c.txnMgr.Begin()
	if err := c.createSystemTable("system_tables", systemTablesSchema(), txnID, SystemTablesFirstPageID); err != nil {
		c.txnMgr.Abort(txnID)
		return err
	}
	if err := c.createSystemTable("system_columns", systemColumnsSchema(), txnID, SystemColumnsFirstPageID); err != nil {
		c.txnMgr.Abort(txnID)
		return err
	}
	return c.txnMgr.Commit(txnID)
}

// CreateTable allocates a fresh heap for a new user table and registers
// it (and its columns) in the system catalog, inside txnID.
func (c *Catalog) CreateTable(name string, schema value.Schema, txnID pager.TxID) error {
	firstPageID, err := heap.CreateHeap(c.bpm, c.wal, txnID)
	if err != nil {
		return fmt.Errorf("catalog: create table %q: %w", name, err)
	}
	return c.registerTable(name, schema, txnID, firstPageID)
}

// createSystemTable registers a system table at a page id the caller
// already allocated (the two fixed system pages allocated by Bootstrap).
func (c *Catalog) createSystemTable(name string, schema value.Schema, txnID pager.TxID, firstPageID pager.PageID) error {
	return c.registerTable(name, schema, txnID, firstPageID)
}

func (c *Catalog) registerTable(name string, schema value.Schema, txnID pager.TxID, firstPageID pager.PageID) error {
	tableID := c.nextTableID
	systemTables := c.systemTableHeap(SystemTablesFirstPageID, txnID)
	if _, err := systemTables.Insert([]value.Value{
		value.NewInteger(int64(tableID)),
		value.NewVarchar(name),
		value.NewInteger(int64(firstPageID)),
	}); err != nil {
		return fmt.Errorf("catalog: register table %q: %w", name, err)
	}
	c.nextTableID++

	systemColumns := c.systemTableHeap(SystemColumnsFirstPageID, txnID)
	for i, col := range schema.Columns {
		if _, err := systemColumns.Insert([]value.Value{
			value.NewInteger(int64(tableID)),
			value.NewVarchar(col.Name),
			value.NewInteger(int64(i)),
			value.NewInteger(int64(col.Type)),
		}); err != nil {
			return fmt.Errorf("catalog: register column %q.%q: %w", name, col.Name, err)
		}
	}
	return nil
}

// GetFirstPageID looks up the root page of a table by name.
func (c *Catalog) GetFirstPageID(tableName string, txnID pager.TxID) (pager.PageID, error) {
	it := heap.NewTableIterator(c.systemTableHeap(SystemTablesFirstPageID, txnID), c.txnMgr, systemTablesSchema())
	for {
		row, ok, err := it.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("catalog: table %q not found", tableName)
		}
		if row.Tuple.Values[1].Varchar == tableName {
			return pager.PageID(row.Tuple.Values[2].Integer), nil
		}
	}
}

// GetSchema looks up a table's column schema by name, in catalog-storage
// order (matching each column's stored ordinal_position).
func (c *Catalog) GetSchema(tableName string, txnID pager.TxID) (value.Schema, error) {
	tableID, err := c.getTableID(tableName, txnID)
	if err != nil {
		return value.Schema{}, err
	}

	type ordinalColumn struct {
		ordinal int64
		column  value.Column
	}
	var found []ordinalColumn

	it := heap.NewTableIterator(c.systemTableHeap(SystemColumnsFirstPageID, txnID), c.txnMgr, systemColumnsSchema())
	for {
		row, ok, err := it.Next()
		if err != nil {
			return value.Schema{}, err
		}
		if !ok {
			break
		}
		if uint32(row.Tuple.Values[0].Integer) != tableID {
			continue
		}
		found = append(found, ordinalColumn{
			ordinal: row.Tuple.Values[2].Integer,
			column: value.Column{
				Name: row.Tuple.Values[1].Varchar,
				Type: value.DataType(row.Tuple.Values[3].Integer),
			},
		})
	}

	cols := make([]value.Column, len(found))
	for _, fc := range found {
		cols[fc.ordinal] = fc.column
	}
	return value.Schema{Columns: cols}, nil
}

func (c *Catalog) getTableID(tableName string, txnID pager.TxID) (uint32, error) {
	it := heap.NewTableIterator(c.systemTableHeap(SystemTablesFirstPageID, txnID), c.txnMgr, systemTablesSchema())
	for {
		row, ok, err := it.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("catalog: table %q not found", tableName)
		}
		if row.Tuple.Values[1].Varchar == tableName {
			return uint32(row.Tuple.Values[0].Integer), nil
		}
	}
}

func (c *Catalog) rebuildNextTableID() error {
	txnID := c.txnMgr.Begin()
	var maxID int64 = -1
	it := heap.NewTableIterator(c.systemTableHeap(SystemTablesFirstPageID, txnID), c.txnMgr, systemTablesSchema())
	for {
		row, ok, err := it.Next()
		if err != nil {
			c.txnMgr.Abort(txnID)
			return err
		}
		if !ok {
			break
		}
		if row.Tuple.Values[0].Integer > maxID {
			maxID = row.Tuple.Values[0].Integer
		}
	}
	c.nextTableID = uint32(maxID + 1)
	return c.txnMgr.Commit(txnID)
}

func (c *Catalog) systemTableHeap(firstPageID pager.PageID, txnID pager.TxID) *heap.TableHeap {
	return heap.NewTableHeap(firstPageID, c.bpm, c.wal, c.lockMgr, txnID)
}
