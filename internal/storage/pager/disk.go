package pager

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// Disk manager
// ───────────────────────────────────────────────────────────────────────────
//
// DiskManager owns the single data file. Every read and write is page
// aligned; writes are individually fsynced so the buffer pool and WAL
// manager are the only layers responsible for batching I/O.

// DiskManager performs page-aligned I/O against the database file.
type DiskManager struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	nextPageID PageID
}

// OpenDiskManager opens or creates the data file at path and computes the
// next-page cursor from the file's current size.
func OpenDiskManager(path string) (*DiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open data file: %v", ErrIO, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat data file: %v", ErrIO, err)
	}
	dm := &DiskManager{
		file:       f,
		path:       path,
		nextPageID: PageID(fi.Size()/PageSize) + 1,
	}
	return dm, nil
}

// AllocatePage appends one zero-filled page to the data file and returns
// its id. The write is fsynced before the id is handed back.
func (dm *DiskManager) AllocatePage() (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	id := dm.nextPageID
	buf := make([]byte, PageSize)
	off := int64(id-1) * PageSize
	if _, err := dm.file.WriteAt(buf, off); err != nil {
		return InvalidPageID, fmt.Errorf("%w: allocate page %d: %v", ErrIO, id, err)
	}
	if err := dm.file.Sync(); err != nil {
		return InvalidPageID, fmt.Errorf("%w: fsync after allocate: %v", ErrIO, err)
	}
	dm.nextPageID++
	return id, nil
}

// ReadPage fully reads one page into buf, which must be PageSize bytes.
func (dm *DiskManager) ReadPage(id PageID, buf []byte) error {
	if id == InvalidPageID {
		return fmt.Errorf("%w: read invalid page id", ErrIO)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	off := int64(id-1) * PageSize
	n, err := dm.file.ReadAt(buf, off)
	if n == 0 && err == io.EOF {
		return fmt.Errorf("%w: page %d is past the end of the data file", ErrNoSuchPage, id)
	}
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: read page %d: %v", ErrIO, id, err)
	}
	if n < PageSize {
		return fmt.Errorf("%w: short read on page %d (%d bytes)", ErrIO, id, n)
	}
	return nil
}

// WritePage fully writes buf (PageSize bytes) to page id and fsyncs.
func (dm *DiskManager) WritePage(id PageID, buf []byte) error {
	if id == InvalidPageID {
		return fmt.Errorf("%w: write invalid page id", ErrIO)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	off := int64(id-1) * PageSize
	if _, err := dm.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("%w: write page %d: %v", ErrIO, id, err)
	}
	return dm.file.Sync()
}

// Size returns the current size of the data file in pages.
func (dm *DiskManager) Size() (int64, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	fi, err := dm.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat: %v", ErrIO, err)
	}
	return fi.Size() / PageSize, nil
}

// Close closes the underlying file handle.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.file.Close()
}

// Path returns the data file path.
func (dm *DiskManager) Path() string { return dm.path }
