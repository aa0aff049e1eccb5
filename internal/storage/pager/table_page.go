package pager

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Table page (slotted layout)
// ───────────────────────────────────────────────────────────────────────────
//
// Header (after the common 24-byte PageHeader):
//   [24:28] NextPageID  uint32 BE — heap linkage, InvalidPageID terminates
//   [28:32] Lower       uint32 BE — end of the line-pointer array
//   [32:36] Upper       uint32 BE — start of the tuple-payload area
//
// The line-pointer array grows forward from offset 36; each entry is
// (Offset uint32 BE, Length uint32 BE), 8 bytes. Tuple payloads grow
// backward from the page end. A slot's line pointer is never removed by a
// delete — only the tuple bytes it points at are rewritten (xmax is set in
// place), so the payload length never changes on delete.

const (
	tableExtraHeaderOff = PageHeaderSize // 24
	tableNextPageIDOff  = tableExtraHeaderOff
	tableLowerOff       = tableExtraHeaderOff + 4
	tableUpperOff       = tableExtraHeaderOff + 8
	tableHeaderSize     = tableExtraHeaderOff + 12 // 36

	linePointerSize = 8
)

// TablePage wraps a page buffer as a slotted table page.
type TablePage struct {
	buf []byte
}

// InitTablePage initializes buf as a fresh, empty table page.
func InitTablePage(buf []byte, id PageID) *TablePage {
	h := &PageHeader{Type: PageTypeTable, ID: id}
	MarshalHeader(h, buf)
	tp := &TablePage{buf: buf}
	tp.setNextPageID(InvalidPageID)
	tp.setLower(tableHeaderSize)
	tp.setUpper(uint32(len(buf)))
	return tp
}

// WrapTablePage wraps an existing page buffer without modifying it.
func WrapTablePage(buf []byte) *TablePage { return &TablePage{buf: buf} }

func (tp *TablePage) PageID() PageID { return PageIDOf(tp.buf) }
func (tp *TablePage) LSN() LSN       { return PageLSN(tp.buf) }
func (tp *TablePage) SetLSN(lsn LSN) { SetPageLSN(tp.buf, lsn) }

func (tp *TablePage) NextPageID() PageID {
	return PageID(binary.BigEndian.Uint32(tp.buf[tableNextPageIDOff:]))
}

func (tp *TablePage) setNextPageID(id PageID) {
	binary.BigEndian.PutUint32(tp.buf[tableNextPageIDOff:], uint32(id))
}

// SetNextPageID is the public mutator; callers are responsible for WAL
// logging a SetNextPageID record before or alongside this call.
func (tp *TablePage) SetNextPageID(id PageID) { tp.setNextPageID(id) }

func (tp *TablePage) lower() uint32 { return binary.BigEndian.Uint32(tp.buf[tableLowerOff:]) }
func (tp *TablePage) setLower(v uint32) {
	binary.BigEndian.PutUint32(tp.buf[tableLowerOff:], v)
}
func (tp *TablePage) upper() uint32 { return binary.BigEndian.Uint32(tp.buf[tableUpperOff:]) }
func (tp *TablePage) setUpper(v uint32) {
	binary.BigEndian.PutUint32(tp.buf[tableUpperOff:], v)
}

// SlotCount returns the number of line pointers on the page (including
// those whose tuple has been logically deleted).
func (tp *TablePage) SlotCount() int {
	return int((tp.lower() - tableHeaderSize) / linePointerSize)
}

// FreeSpace returns the bytes available for a new tuple plus its line
// pointer.
func (tp *TablePage) FreeSpace() int {
	return int(tp.upper() - tp.lower())
}

type linePointer struct {
	Offset uint32
	Length uint32
}

func (tp *TablePage) linePointerOff(slot int) int {
	return tableHeaderSize + slot*linePointerSize
}

func (tp *TablePage) getLinePointer(slot int) linePointer {
	off := tp.linePointerOff(slot)
	return linePointer{
		Offset: binary.BigEndian.Uint32(tp.buf[off:]),
		Length: binary.BigEndian.Uint32(tp.buf[off+4:]),
	}
}

func (tp *TablePage) setLinePointer(slot int, lp linePointer) {
	off := tp.linePointerOff(slot)
	binary.BigEndian.PutUint32(tp.buf[off:], lp.Offset)
	binary.BigEndian.PutUint32(tp.buf[off+4:], lp.Length)
}

// InsertTuple places data in the first free space at the end of the
// payload area and appends a new line pointer. Returns the new slot index.
func (tp *TablePage) InsertTuple(data []byte) (uint32, error) {
	needed := uint32(len(data)) + linePointerSize
	if uint32(tp.FreeSpace()) < needed {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrPageFull, needed, tp.FreeSpace())
	}
	newUpper := tp.upper() - uint32(len(data))
	copy(tp.buf[newUpper:tp.upper()], data)

	slot := uint32(tp.SlotCount())
	tp.setLinePointer(int(slot), linePointer{Offset: newUpper, Length: uint32(len(data))})

	tp.setLower(tp.lower() + linePointerSize)
	tp.setUpper(newUpper)
	return slot, nil
}

// GetTuple returns a copy of the tuple bytes stored at slot.
func (tp *TablePage) GetTuple(slot uint32) ([]byte, error) {
	if int(slot) >= tp.SlotCount() {
		return nil, fmt.Errorf("%w: slot %d out of range", ErrCorruption, slot)
	}
	lp := tp.getLinePointer(int(slot))
	out := make([]byte, lp.Length)
	copy(out, tp.buf[lp.Offset:lp.Offset+lp.Length])
	return out, nil
}

// MutateTuple calls fn with a direct (unsafe-to-retain) view of the tuple
// bytes at slot so the caller can rewrite fields such as xmax in place.
func (tp *TablePage) MutateTuple(slot uint32, fn func(tuple []byte)) error {
	if int(slot) >= tp.SlotCount() {
		return fmt.Errorf("%w: slot %d out of range", ErrCorruption, slot)
	}
	lp := tp.getLinePointer(int(slot))
	fn(tp.buf[lp.Offset : lp.Offset+lp.Length])
	return nil
}

// AllTuples returns every tuple on the page in slot order, for internal use
// by the iterator and recovery.
func (tp *TablePage) AllTuples() [][]byte {
	n := tp.SlotCount()
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		lp := tp.getLinePointer(i)
		b := make([]byte, lp.Length)
		copy(b, tp.buf[lp.Offset:lp.Offset+lp.Length])
		out[i] = b
	}
	return out
}

// Bytes returns the raw page buffer.
func (tp *TablePage) Bytes() []byte { return tp.buf }
