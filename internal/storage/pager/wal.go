package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// WAL file format
// ───────────────────────────────────────────────────────────────────────────
//
// The WAL is an append-only file of logical records: rather than full page
// images, each record names the table-page operation that produced it, so
// redo can replay the mutation against whatever page image is on disk.
//
// WAL file header (first 24 bytes):
//   [0:8]   Magic       "ENGNWAL\x00"
//   [8:12]  Version     uint32 BE (currently 1)
//   [12:16] Reserved    4 bytes
//   [16:20] HeaderCRC   uint32 BE (CRC of bytes 0:16)
//   [20:24] Padding     4 bytes
//
// Each record on disk is framed as:
//   [0:4]   RecordLen   uint32 BE — length of everything below
//   [4:12]  LSN         uint64 BE
//   [12:16] TxID        uint32 BE
//   [16:20] BodyType    uint32 BE
//   [20:24] RecordCRC   uint32 BE — CRC32-C of LSN..Body
//   [24:N]  Body        (shape depends on BodyType)

const (
	walMagic       = "ENGNWAL\x00"
	walVersion     = uint32(1)
	walFileHdrSize = 24
	walRecFixed    = 24 // RecordLen + LSN + TxID + BodyType + RecordCRC

	// walBufferSize is the in-memory buffer budget; a flush is triggered
	// before it would be exceeded. Matches the page size by convention.
	walBufferSize = PageSize
)

// WALRecordType tags the logical operation a WAL record describes.
type WALRecordType uint32

const (
	WALBegin WALRecordType = iota + 1
	WALCommit
	WALAbort
	WALInsertToTablePage
	WALDeleteFromTablePage
	WALSetNextPageID
	WALNewTablePage
	WALNewBPlusTreeLeafPage
)

func (t WALRecordType) String() string {
	switch t {
	case WALBegin:
		return "Begin"
	case WALCommit:
		return "Commit"
	case WALAbort:
		return "Abort"
	case WALInsertToTablePage:
		return "InsertToTablePage"
	case WALDeleteFromTablePage:
		return "DeleteFromTablePage"
	case WALSetNextPageID:
		return "SetNextPageID"
	case WALNewTablePage:
		return "NewTablePage"
	case WALNewBPlusTreeLeafPage:
		return "NewBPlusTreeLeafPage"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(t))
	}
}

// WALRecord is the in-memory representation of one WAL entry.
type WALRecord struct {
	LSN  LSN
	TxID TxID
	Type WALRecordType

	PageID     PageID // InsertToTablePage, SetNextPageID, NewTablePage, NewBPlusTreeLeafPage
	NextPageID PageID // SetNextPageID
	RID        RID    // DeleteFromTablePage
	RowBytes   []byte // InsertToTablePage
}

// encodeBody serializes the body portion (without the fixed prefix) for rec.
func (rec *WALRecord) encodeBody() []byte {
	switch rec.Type {
	case WALBegin, WALCommit, WALAbort:
		return nil
	case WALInsertToTablePage:
		body := make([]byte, 4+4+len(rec.RowBytes))
		binary.BigEndian.PutUint32(body[0:4], uint32(rec.PageID))
		binary.BigEndian.PutUint32(body[4:8], uint32(len(rec.RowBytes)))
		copy(body[8:], rec.RowBytes)
		return body
	case WALDeleteFromTablePage:
		body := make([]byte, 8)
		binary.BigEndian.PutUint32(body[0:4], uint32(rec.RID.PageID))
		binary.BigEndian.PutUint32(body[4:8], rec.RID.Slot)
		return body
	case WALSetNextPageID:
		body := make([]byte, 8)
		binary.BigEndian.PutUint32(body[0:4], uint32(rec.PageID))
		binary.BigEndian.PutUint32(body[4:8], uint32(rec.NextPageID))
		return body
	case WALNewTablePage, WALNewBPlusTreeLeafPage:
		body := make([]byte, 4)
		binary.BigEndian.PutUint32(body[0:4], uint32(rec.PageID))
		return body
	default:
		panic(fmt.Sprintf("wal: unknown record type %d", rec.Type))
	}
}

func decodeBody(t WALRecordType, body []byte) (WALRecord, error) {
	rec := WALRecord{Type: t}
	switch t {
	case WALBegin, WALCommit, WALAbort:
		return rec, nil
	case WALInsertToTablePage:
		if len(body) < 8 {
			return rec, fmt.Errorf("%w: short InsertToTablePage body", ErrCorruption)
		}
		rec.PageID = PageID(binary.BigEndian.Uint32(body[0:4]))
		n := binary.BigEndian.Uint32(body[4:8])
		if uint32(len(body)-8) != n {
			return rec, fmt.Errorf("%w: InsertToTablePage length mismatch", ErrCorruption)
		}
		rec.RowBytes = append([]byte(nil), body[8:]...)
		return rec, nil
	case WALDeleteFromTablePage:
		if len(body) != 8 {
			return rec, fmt.Errorf("%w: short DeleteFromTablePage body", ErrCorruption)
		}
		rec.RID = RID{PageID: PageID(binary.BigEndian.Uint32(body[0:4])), Slot: binary.BigEndian.Uint32(body[4:8])}
		return rec, nil
	case WALSetNextPageID:
		if len(body) != 8 {
			return rec, fmt.Errorf("%w: short SetNextPageID body", ErrCorruption)
		}
		rec.PageID = PageID(binary.BigEndian.Uint32(body[0:4]))
		rec.NextPageID = PageID(binary.BigEndian.Uint32(body[4:8]))
		return rec, nil
	case WALNewTablePage, WALNewBPlusTreeLeafPage:
		if len(body) != 4 {
			return rec, fmt.Errorf("%w: short NewTablePage body", ErrCorruption)
		}
		rec.PageID = PageID(binary.BigEndian.Uint32(body[0:4]))
		return rec, nil
	default:
		return rec, fmt.Errorf("%w: unknown WAL body type %d", ErrCorruption, t)
	}
}

// ───────────────────────────────────────────────────────────────────────────
// WAL manager
// ───────────────────────────────────────────────────────────────────────────

// WALManager is the append-only redo log: an in-memory buffer flushed to
// disk either explicitly or when it would overflow its budget.
type WALManager struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	buffer   []byte
	writePos int64
	nextLSN  LSN
}

// OpenWALManager opens or creates the WAL file at path.
func OpenWALManager(path string) (*WALManager, error) {
	exists := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		exists = false
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open WAL: %v", ErrIO, err)
	}
	wm := &WALManager{f: f, path: path, nextLSN: 1}
	if exists {
		if err := wm.validateHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := wm.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	}
	endPos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: seek WAL end: %v", ErrIO, err)
	}
	wm.writePos = endPos
	return wm, nil
}

func (wm *WALManager) writeHeader() error {
	var hdr [walFileHdrSize]byte
	copy(hdr[0:8], walMagic)
	binary.BigEndian.PutUint32(hdr[8:12], walVersion)
	c := crc32.Checksum(hdr[:16], crcTable)
	binary.BigEndian.PutUint32(hdr[16:20], c)
	if _, err := wm.f.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("%w: write WAL header: %v", ErrIO, err)
	}
	return wm.f.Sync()
}

func (wm *WALManager) validateHeader() error {
	var hdr [walFileHdrSize]byte
	n, err := wm.f.ReadAt(hdr[:], 0)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: read WAL header: %v", ErrIO, err)
	}
	if n < walFileHdrSize {
		return fmt.Errorf("%w: WAL header too short", ErrCorruption)
	}
	if string(hdr[0:8]) != walMagic {
		return fmt.Errorf("%w: bad WAL magic", ErrCorruption)
	}
	if binary.BigEndian.Uint32(hdr[8:12]) != walVersion {
		return fmt.Errorf("%w: unsupported WAL version", ErrCorruption)
	}
	stored := binary.BigEndian.Uint32(hdr[16:20])
	if stored != crc32.Checksum(hdr[:16], crcTable) {
		return fmt.Errorf("%w: WAL header CRC mismatch", ErrCorruption)
	}
	return nil
}

// encode produces the on-disk byte form of rec, assigning nothing (LSN must
// already be set by the caller).
func encode(rec *WALRecord) []byte {
	body := rec.encodeBody()
	buf := make([]byte, walRecFixed+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(walRecFixed-4+len(body)))
	binary.BigEndian.PutUint64(buf[4:12], uint64(rec.LSN))
	binary.BigEndian.PutUint32(buf[12:16], uint32(rec.TxID))
	binary.BigEndian.PutUint32(buf[16:20], uint32(rec.Type))
	copy(buf[walRecFixed:], body)
	h := crc32.New(crcTable)
	h.Write(buf[4:20])
	h.Write(body)
	binary.BigEndian.PutUint32(buf[20:24], h.Sum32())
	return buf
}

func decode(r io.Reader) (*WALRecord, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	recLen := binary.BigEndian.Uint32(lenBuf[:])
	rest := make([]byte, recLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	lsn := LSN(binary.BigEndian.Uint64(rest[0:8]))
	txID := TxID(binary.BigEndian.Uint32(rest[8:12]))
	bodyType := WALRecordType(binary.BigEndian.Uint32(rest[12:16]))
	storedCRC := binary.BigEndian.Uint32(rest[16:20])
	body := rest[20:]

	h := crc32.New(crcTable)
	h.Write(rest[0:16])
	h.Write(body)
	if h.Sum32() != storedCRC {
		return nil, fmt.Errorf("%w: WAL record CRC mismatch at LSN %d", ErrCorruption, lsn)
	}

	rec, err := decodeBody(bodyType, body)
	if err != nil {
		return nil, err
	}
	rec.LSN = lsn
	rec.TxID = txID
	return &rec, nil
}

// Append assigns rec the next LSN, buffers its encoded bytes, and flushes
// first if the buffer would overflow its budget. Returns the assigned LSN.
func (wm *WALManager) Append(rec *WALRecord) (LSN, error) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	lsn := wm.nextLSN
	rec.LSN = lsn
	data := encode(rec)
	if len(data) > walBufferSize {
		return 0, fmt.Errorf("%w: record of %d bytes exceeds buffer budget %d", ErrLogOversize, len(data), walBufferSize)
	}
	if len(wm.buffer)+len(data) > walBufferSize {
		if err := wm.flushLocked(); err != nil {
			return 0, err
		}
	}
	wm.buffer = append(wm.buffer, data...)
	wm.nextLSN++
	return lsn, nil
}

// Flush writes the buffer to disk and fsyncs.
func (wm *WALManager) Flush() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	return wm.flushLocked()
}

func (wm *WALManager) flushLocked() error {
	if len(wm.buffer) == 0 {
		return nil
	}
	if _, err := wm.f.WriteAt(wm.buffer, wm.writePos); err != nil {
		return fmt.Errorf("%w: WAL flush: %v", ErrIO, err)
	}
	if err := wm.f.Sync(); err != nil {
		return fmt.Errorf("%w: WAL fsync: %v", ErrIO, err)
	}
	wm.writePos += int64(len(wm.buffer))
	wm.buffer = wm.buffer[:0]
	return nil
}

// ReadAll reads every record from the WAL file in order, skipping the
// header. A partial/corrupt trailing record (crash truncation) stops the
// read and discards only that record.
func (wm *WALManager) ReadAll() ([]*WALRecord, error) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if err := wm.flushLocked(); err != nil {
		return nil, err
	}

	f, err := os.Open(wm.path)
	if err != nil {
		return nil, fmt.Errorf("%w: reopen WAL: %v", ErrIO, err)
	}
	defer f.Close()
	if _, err := f.Seek(walFileHdrSize, io.SeekStart); err != nil {
		return nil, err
	}

	var records []*WALRecord
	for {
		rec, err := decode(f)
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	return records, nil
}

// Truncate resets the WAL to just its header, used after a full redo pass
// has made its records durable elsewhere.
func (wm *WALManager) Truncate() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if err := wm.f.Truncate(walFileHdrSize); err != nil {
		return fmt.Errorf("%w: truncate WAL: %v", ErrIO, err)
	}
	wm.writePos = walFileHdrSize
	wm.buffer = wm.buffer[:0]
	return wm.f.Sync()
}

// NextLSN returns the LSN that will be assigned to the next record.
func (wm *WALManager) NextLSN() LSN {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	return wm.nextLSN
}

// SetNextLSN lets recovery fast-forward the LSN counter past replayed records.
func (wm *WALManager) SetNextLSN(lsn LSN) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	wm.nextLSN = lsn
}

// Close flushes and closes the WAL file.
func (wm *WALManager) Close() error {
	wm.mu.Lock()
	if err := wm.flushLocked(); err != nil {
		wm.mu.Unlock()
		return err
	}
	wm.mu.Unlock()
	return wm.f.Close()
}
