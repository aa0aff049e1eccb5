package pager

import "encoding/binary"

// ───────────────────────────────────────────────────────────────────────────
// Tuple version header
// ───────────────────────────────────────────────────────────────────────────
//
// Every row version stored in a table page begins with a fixed 8-byte MVCC
// header before its column payload:
//   [0:4] Xmin TxID BE — transaction that created this version
//   [4:8] Xmax TxID BE — transaction that deleted this version, InvalidTxID
//                         while the version is live
//
// The table page and WAL redo path only ever need to read or rewrite these
// two fields; the column payload beyond them is opaque to this package.

const TupleHeaderSize = 8

// TupleXmin reads the creating transaction id out of a raw tuple.
func TupleXmin(tuple []byte) TxID { return TxID(binary.BigEndian.Uint32(tuple[0:4])) }

// TupleXmax reads the deleting transaction id out of a raw tuple.
func TupleXmax(tuple []byte) TxID { return TxID(binary.BigEndian.Uint32(tuple[4:8])) }

// SetTupleXmin stamps the creating transaction id into a raw tuple.
func SetTupleXmin(tuple []byte, id TxID) { binary.BigEndian.PutUint32(tuple[0:4], uint32(id)) }

// SetTupleXmax stamps the deleting transaction id into a raw tuple.
func SetTupleXmax(tuple []byte, id TxID) { binary.BigEndian.PutUint32(tuple[4:8], uint32(id)) }

// markTupleDeleted rewrites a tuple's Xmax in place, the sole mutation a
// delete performs on a table page.
func markTupleDeleted(tuple []byte, by TxID) { SetTupleXmax(tuple, by) }
