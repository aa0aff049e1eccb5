// Package pager implements the page-structured, write-ahead-logged storage
// layer of the engine: fixed-size page I/O, a logical WAL, an LRU buffer
// pool, and the on-disk layouts for table pages and B+Tree pages.
//
// The database is a single file of PAGE_SIZE-byte pages. Page IDs are
// 1-based; PageID(0) is the reserved invalid sentinel. Every page starts
// with a common 24-byte header carrying a type discriminator, the page's
// own id, its last-applied LSN, and a CRC32 checksum; the remainder of the
// page is kind-specific.
package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// ───────────────────────────────────────────────────────────────────────────
// Constants
// ───────────────────────────────────────────────────────────────────────────

const (
	// PageSize is the fixed size of every page, in bytes.
	PageSize = 4096

	// PageHeaderSize is the size of the common page header shared by every
	// page kind.
	//   [0]     PageType   (1 byte)
	//   [1]     Flags      (1 byte)
	//   [2:4]   Reserved   (2 bytes)
	//   [4:8]   PageID     (4 bytes, uint32 BE)
	//   [8:16]  LSN        (8 bytes, uint64 BE)
	//   [16:20] CRC32      (4 bytes, uint32 BE)
	//   [20:24] Reserved   (4 bytes)
	PageHeaderSize = 24

	// InvalidPageID is the reserved sentinel; page ids are 1-based.
	InvalidPageID PageID = 0

	// InvalidTxID marks a tuple field or WAL record as belonging to no
	// transaction.
	InvalidTxID TxID = 0
)

// PageType identifies the kind of data stored in a page.
type PageType uint8

const (
	PageTypeTable         PageType = 0x01
	PageTypeBTreeInternal PageType = 0x02
	PageTypeBTreeLeaf     PageType = 0x03
)

func (pt PageType) String() string {
	switch pt {
	case PageTypeTable:
		return "Table"
	case PageTypeBTreeInternal:
		return "BTree-Internal"
	case PageTypeBTreeLeaf:
		return "BTree-Leaf"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(pt))
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Core identifier types
// ───────────────────────────────────────────────────────────────────────────

// PageID is a 1-based page identifier. 0 is invalid.
type PageID uint32

// LSN is a monotonically increasing log sequence number.
type LSN uint64

// TxID is a transaction identifier. 0 means "no transaction".
type TxID uint32

// RID addresses a single row version: the page it lives on and its slot.
type RID struct {
	PageID PageID
	Slot   uint32
}

func (r RID) String() string { return fmt.Sprintf("(%d,%d)", r.PageID, r.Slot) }

// ───────────────────────────────────────────────────────────────────────────
// Page header
// ───────────────────────────────────────────────────────────────────────────

// PageHeader is the 24-byte header present at the start of every page.
type PageHeader struct {
	Type     PageType
	Flags    uint8
	Reserved uint16
	ID       PageID
	LSN      LSN
	CRC      uint32
	Pad      [4]byte
}

// MarshalHeader writes h into the first PageHeaderSize bytes of buf.
func MarshalHeader(h *PageHeader, buf []byte) {
	if len(buf) < PageHeaderSize {
		panic("buffer too small for PageHeader")
	}
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.BigEndian.PutUint16(buf[2:4], h.Reserved)
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.ID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.LSN))
	binary.BigEndian.PutUint32(buf[16:20], h.CRC)
	copy(buf[20:24], h.Pad[:])
}

// UnmarshalHeader reads a PageHeader from the first PageHeaderSize bytes of buf.
func UnmarshalHeader(buf []byte) PageHeader {
	var h PageHeader
	h.Type = PageType(buf[0])
	h.Flags = buf[1]
	h.Reserved = binary.BigEndian.Uint16(buf[2:4])
	h.ID = PageID(binary.BigEndian.Uint32(buf[4:8]))
	h.LSN = LSN(binary.BigEndian.Uint64(buf[8:16]))
	h.CRC = binary.BigEndian.Uint32(buf[16:20])
	copy(h.Pad[:], buf[20:24])
	return h
}

// PageLSN reads just the LSN field out of a raw page buffer, used heavily
// by recovery's idempotent-redo check.
func PageLSN(buf []byte) LSN {
	return LSN(binary.BigEndian.Uint64(buf[8:16]))
}

// SetPageLSN overwrites the LSN field of a raw page buffer in place.
func SetPageLSN(buf []byte, lsn LSN) {
	binary.BigEndian.PutUint64(buf[8:16], uint64(lsn))
}

// PageIDOf reads the self-identifying page id out of a raw page buffer.
func PageIDOf(buf []byte) PageID {
	return PageID(binary.BigEndian.Uint32(buf[4:8]))
}

// PageTypeOf reads the type discriminator out of a raw page buffer.
func PageTypeOf(buf []byte) PageType {
	return PageType(buf[0])
}

// ───────────────────────────────────────────────────────────────────────────
// CRC helpers
// ───────────────────────────────────────────────────────────────────────────

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputePageCRC computes the CRC32-C of a full page, treating the CRC field
// (bytes 16:20) as zero during computation.
func ComputePageCRC(page []byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(page[:16])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(page[20:])
	return h.Sum32()
}

// SetPageCRC computes and writes the CRC into the page header.
func SetPageCRC(page []byte) {
	binary.BigEndian.PutUint32(page[16:20], ComputePageCRC(page))
}

// VerifyPageCRC checks the CRC32 checksum of a page.
func VerifyPageCRC(page []byte) error {
	stored := binary.BigEndian.Uint32(page[16:20])
	computed := ComputePageCRC(page)
	if stored != computed {
		return fmt.Errorf("%w: page %d stored=%08x computed=%08x", ErrCorruption, PageIDOf(page), stored, computed)
	}
	return nil
}

// NewBlankPage allocates a zeroed page buffer and writes its common header.
func NewBlankPage(pt PageType, id PageID) []byte {
	buf := make([]byte, PageSize)
	h := &PageHeader{Type: pt, ID: id}
	MarshalHeader(h, buf)
	return buf
}
