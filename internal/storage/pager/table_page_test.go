package pager

import (
	"bytes"
	"testing"
)

func TestTablePageInsertAndGetRoundTrip(t *testing.T) {
	buf := make([]byte, PageSize)
	tp := InitTablePage(buf, 1)

	rows := [][]byte{
		[]byte("alpha"),
		[]byte("bravo-bravo"),
		[]byte("c"),
	}
	for i, row := range rows {
		slot, err := tp.InsertTuple(row)
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if int(slot) != i {
			t.Fatalf("expected slot %d, got %d", i, slot)
		}
	}

	if tp.SlotCount() != len(rows) {
		t.Fatalf("expected %d slots, got %d", len(rows), tp.SlotCount())
	}
	for i, row := range rows {
		got, err := tp.GetTuple(uint32(i))
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if !bytes.Equal(got, row) {
			t.Fatalf("slot %d: expected %q, got %q", i, row, got)
		}
	}
}

func TestTablePageFreeSpaceShrinksOnInsert(t *testing.T) {
	buf := make([]byte, PageSize)
	tp := InitTablePage(buf, 1)
	before := tp.FreeSpace()

	if _, err := tp.InsertTuple([]byte("0123456789")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	after := tp.FreeSpace()
	if after >= before {
		t.Fatalf("expected free space to shrink: before=%d after=%d", before, after)
	}
	if before-after != 10+linePointerSize {
		t.Fatalf("expected free space to shrink by %d, shrank by %d", 10+linePointerSize, before-after)
	}
}

func TestTablePageInsertFailsWhenFull(t *testing.T) {
	buf := make([]byte, PageSize)
	tp := InitTablePage(buf, 1)

	row := bytes.Repeat([]byte{0xAA}, 100)
	var count int
	for {
		if _, err := tp.InsertTuple(row); err != nil {
			break
		}
		count++
	}
	if count == 0 {
		t.Fatal("expected at least one successful insert before the page filled")
	}
	if _, err := tp.InsertTuple(row); err == nil {
		t.Fatal("expected ErrPageFull once the page is exhausted")
	}
}

func TestTablePageDeleteRewritesXmaxInPlace(t *testing.T) {
	buf := make([]byte, PageSize)
	tp := InitTablePage(buf, 1)

	row := make([]byte, TupleHeaderSize+4)
	SetTupleXmin(row, 1)
	SetTupleXmax(row, InvalidTxID)
	copy(row[TupleHeaderSize:], []byte("abcd"))

	slot, err := tp.InsertTuple(row)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	lpBefore := tp.getLinePointer(int(slot))

	if err := tp.MutateTuple(slot, func(tuple []byte) {
		markTupleDeleted(tuple, 7)
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	lpAfter := tp.getLinePointer(int(slot))
	if lpBefore != lpAfter {
		t.Fatalf("expected line pointer unchanged by delete: before=%+v after=%+v", lpBefore, lpAfter)
	}
	got, err := tp.GetTuple(slot)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if TupleXmax(got) != 7 {
		t.Fatalf("expected xmax 7, got %d", TupleXmax(got))
	}
	if TupleXmin(got) != 1 {
		t.Fatalf("expected xmin unchanged at 1, got %d", TupleXmin(got))
	}
}

func TestTablePageHeaderSurvivesMarshalRoundTrip(t *testing.T) {
	buf := make([]byte, PageSize)
	tp := InitTablePage(buf, 42)
	tp.SetLSN(99)
	tp.SetNextPageID(7)

	reloaded := WrapTablePage(buf)
	if reloaded.PageID() != 42 {
		t.Fatalf("expected page id 42, got %d", reloaded.PageID())
	}
	if reloaded.LSN() != 99 {
		t.Fatalf("expected LSN 99, got %d", reloaded.LSN())
	}
	if reloaded.NextPageID() != 7 {
		t.Fatalf("expected next page id 7, got %d", reloaded.NextPageID())
	}
}

func TestPageCRCDetectsCorruption(t *testing.T) {
	buf := NewBlankPage(PageTypeTable, 1)
	SetPageCRC(buf)
	if err := VerifyPageCRC(buf); err != nil {
		t.Fatalf("expected valid CRC, got %v", err)
	}

	buf[100] ^= 0xFF
	if err := VerifyPageCRC(buf); err == nil {
		t.Fatal("expected CRC mismatch after corrupting a byte")
	}
}
