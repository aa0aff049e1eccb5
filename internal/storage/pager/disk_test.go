package pager

import (
	"path/filepath"
	"testing"
)

func TestDiskManagerAllocateAndReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	dm, err := OpenDiskManager(path)
	if err != nil {
		t.Fatalf("open disk manager: %v", err)
	}
	defer dm.Close()

	id, err := dm.AllocatePage()
	if err != nil {
		t.Fatalf("allocate page: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first page id 1, got %d", id)
	}

	buf := NewBlankPage(PageTypeTable, id)
	buf[100] = 0xAB
	SetPageCRC(buf)
	if err := dm.WritePage(id, buf); err != nil {
		t.Fatalf("write page: %v", err)
	}

	readBuf := make([]byte, PageSize)
	if err := dm.ReadPage(id, readBuf); err != nil {
		t.Fatalf("read page: %v", err)
	}
	if readBuf[100] != 0xAB {
		t.Fatalf("expected byte 0xAB at offset 100, got %#x", readBuf[100])
	}
	if err := VerifyPageCRC(readBuf); err != nil {
		t.Fatalf("verify CRC: %v", err)
	}
}

func TestDiskManagerReopenResumesPageIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	dm, err := OpenDiskManager(path)
	if err != nil {
		t.Fatalf("open disk manager: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := dm.AllocatePage(); err != nil {
			t.Fatalf("allocate page %d: %v", i, err)
		}
	}
	if err := dm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	dm2, err := OpenDiskManager(path)
	if err != nil {
		t.Fatalf("reopen disk manager: %v", err)
	}
	defer dm2.Close()
	id, err := dm2.AllocatePage()
	if err != nil {
		t.Fatalf("allocate after reopen: %v", err)
	}
	if id != 4 {
		t.Fatalf("expected next page id 4 after reopen, got %d", id)
	}
}

func TestDiskManagerRejectsInvalidPageID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	dm, err := OpenDiskManager(path)
	if err != nil {
		t.Fatalf("open disk manager: %v", err)
	}
	defer dm.Close()

	buf := make([]byte, PageSize)
	if err := dm.ReadPage(InvalidPageID, buf); err == nil {
		t.Fatal("expected error reading invalid page id")
	}
}
