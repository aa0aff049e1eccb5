package pager

import (
	"path/filepath"
	"testing"
)

func newTestPool(t *testing.T, capacity int) (*BufferPoolManager, *DiskManager, *WALManager) {
	t.Helper()
	dir := t.TempDir()
	dm, err := OpenDiskManager(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("open disk manager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	wm, err := OpenWALManager(filepath.Join(dir, "wal.log"))
	if err != nil {
		t.Fatalf("open WAL manager: %v", err)
	}
	t.Cleanup(func() { wm.Close() })
	return NewBufferPoolManager(dm, wm, capacity, nil), dm, wm
}

func TestBufferPoolNewPageThenFetchRoundTrips(t *testing.T) {
	bp, _, _ := newTestPool(t, 4)

	f, err := bp.NewPage(PageTypeTable)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	id := f.ID()
	f.Lock()
	copy(f.Bytes()[100:], []byte("payload"))
	f.Unlock()
	bp.UnpinPage(id, true)

	if err := bp.FlushPage(id); err != nil {
		t.Fatalf("flush: %v", err)
	}

	f2, err := bp.FetchPage(id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	f2.RLock()
	got := string(f2.Bytes()[100:107])
	f2.RUnlock()
	bp.UnpinPage(id, false)
	if got != "payload" {
		t.Fatalf("expected %q, got %q", "payload", got)
	}
}

// TestBufferPoolEvictionCorrectness is scenario S6: with pool size 3,
// allocate 4 pages, unpin each after writing a marker, then confirm the
// first-allocated page's contents are intact after it was evicted and
// refetched.
func TestBufferPoolEvictionCorrectness(t *testing.T) {
	bp, _, _ := newTestPool(t, 3)

	var ids []PageID
	for i := 0; i < 4; i++ {
		f, err := bp.NewPage(PageTypeTable)
		if err != nil {
			t.Fatalf("new page %d: %v", i, err)
		}
		f.Lock()
		f.Bytes()[64] = byte(i + 1)
		f.Unlock()
		ids = append(ids, f.ID())
		bp.UnpinPage(f.ID(), true)
	}

	f, err := bp.FetchPage(ids[0])
	if err != nil {
		t.Fatalf("refetch first page: %v", err)
	}
	f.RLock()
	got := f.Bytes()[64]
	f.RUnlock()
	bp.UnpinPage(ids[0], false)
	if got != 1 {
		t.Fatalf("expected marker byte 1 on first-allocated page, got %d", got)
	}
}

func TestBufferPoolFullWhenEveryFrameIsPinned(t *testing.T) {
	bp, _, _ := newTestPool(t, 2)

	if _, err := bp.NewPage(PageTypeTable); err != nil {
		t.Fatalf("new page 1: %v", err)
	}
	if _, err := bp.NewPage(PageTypeTable); err != nil {
		t.Fatalf("new page 2: %v", err)
	}
	// Both frames remain pinned (never unpinned), so a third allocation
	// has nowhere to evict from.
	if _, err := bp.NewPage(PageTypeTable); err == nil {
		t.Fatal("expected ErrBufferPoolFull when every frame is pinned")
	}
}

func TestBufferPoolNeverEvictsAPinnedFrame(t *testing.T) {
	bp, _, _ := newTestPool(t, 1)

	f, err := bp.NewPage(PageTypeTable)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	pinnedID := f.ID()
	// Pool is at capacity 1 and the only frame is still pinned.
	if _, err := bp.NewPage(PageTypeTable); err == nil {
		t.Fatal("expected ErrBufferPoolFull rather than evicting the pinned frame")
	}
	bp.UnpinPage(pinnedID, false)
}
