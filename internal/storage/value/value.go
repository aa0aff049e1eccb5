// Package value implements the column value representation and the tuple
// wire format stored inside table pages: a fixed MVCC header followed by a
// schema-driven sequence of self-delimiting encoded columns.
package value

import (
	"encoding/binary"
	"fmt"

	"github.com/SimonWaldherr/pagedb/internal/storage/pager"
)

// DataType discriminates the column types a Value can hold.
type DataType uint8

const (
	TypeInteger DataType = iota
	TypeVarchar
	TypeBoolean
)

func (t DataType) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeVarchar:
		return "VARCHAR"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Value is a tagged union over the engine's three primitive column types.
// A Null value carries IsNull=true and a zero payload of whatever type the
// column declares.
type Value struct {
	Type    DataType
	IsNull  bool
	Integer int64
	Varchar string
	Boolean bool
}

// NewInteger constructs a non-null INTEGER value.
func NewInteger(v int64) Value { return Value{Type: TypeInteger, Integer: v} }

// NewVarchar constructs a non-null VARCHAR value.
func NewVarchar(v string) Value { return Value{Type: TypeVarchar, Varchar: v} }

// NewBoolean constructs a non-null BOOLEAN value.
func NewBoolean(v bool) Value { return Value{Type: TypeBoolean, Boolean: v} }

// NewNull constructs a null value of the given type.
func NewNull(t DataType) Value { return Value{Type: t, IsNull: true} }

// Compare orders two values of the same type; strings compare
// byte-lexicographically, booleans false<true. Nulls sort before
// non-nulls. Comparing values of different types panics — callers must
// have already checked the column's schema type.
func (v Value) Compare(other Value) int {
	if v.Type != other.Type {
		panic("value: compare across differing types")
	}
	switch {
	case v.IsNull && other.IsNull:
		return 0
	case v.IsNull:
		return -1
	case other.IsNull:
		return 1
	}
	switch v.Type {
	case TypeInteger:
		switch {
		case v.Integer < other.Integer:
			return -1
		case v.Integer > other.Integer:
			return 1
		default:
			return 0
		}
	case TypeVarchar:
		switch {
		case v.Varchar < other.Varchar:
			return -1
		case v.Varchar > other.Varchar:
			return 1
		default:
			return 0
		}
	case TypeBoolean:
		if v.Boolean == other.Boolean {
			return 0
		}
		if !v.Boolean {
			return -1
		}
		return 1
	default:
		panic("value: unreachable type")
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Wire encoding
// ───────────────────────────────────────────────────────────────────────────
//
// Every encoded value starts with a 1-byte null flag (0 = non-null, 1 =
// null), followed by its payload when non-null:
//   INTEGER: 8 bytes, int64 BE (two's complement)
//   VARCHAR: 4-byte length BE, then that many UTF-8 bytes
//   BOOLEAN: 1 byte, 0 or 1

// Encode appends the wire encoding of v to dst and returns the result.
func Encode(dst []byte, v Value) []byte {
	if v.IsNull {
		return append(dst, 1)
	}
	dst = append(dst, 0)
	switch v.Type {
	case TypeInteger:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Integer))
		return append(dst, b[:]...)
	case TypeVarchar:
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(len(v.Varchar)))
		dst = append(dst, lb[:]...)
		return append(dst, v.Varchar...)
	case TypeBoolean:
		if v.Boolean {
			return append(dst, 1)
		}
		return append(dst, 0)
	default:
		panic(fmt.Sprintf("value: encode: unknown type %v", v.Type))
	}
}

// Decode reads one encoded value of type t from src, returning the value
// and the number of bytes consumed.
func Decode(src []byte, t DataType) (Value, int, error) {
	if len(src) < 1 {
		return Value{}, 0, fmt.Errorf("value: decode: empty input")
	}
	if src[0] == 1 {
		return NewNull(t), 1, nil
	}
	rest := src[1:]
	switch t {
	case TypeInteger:
		if len(rest) < 8 {
			return Value{}, 0, fmt.Errorf("value: decode: short integer")
		}
		return NewInteger(int64(binary.BigEndian.Uint64(rest[:8]))), 9, nil
	case TypeVarchar:
		if len(rest) < 4 {
			return Value{}, 0, fmt.Errorf("value: decode: short varchar length")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		if uint32(len(rest)-4) < n {
			return Value{}, 0, fmt.Errorf("value: decode: short varchar body")
		}
		return NewVarchar(string(rest[4 : 4+n])), 5 + int(n), nil
	case TypeBoolean:
		if len(rest) < 1 {
			return Value{}, 0, fmt.Errorf("value: decode: short boolean")
		}
		return NewBoolean(rest[0] != 0), 2, nil
	default:
		return Value{}, 0, fmt.Errorf("value: decode: unknown type %v", t)
	}
}

// MaxEncodedIntegerSize is the encoded size of an INTEGER value (1-byte
// null flag plus 8-byte payload), so callers sizing B+Tree keys don't need
// a separate constant for it.
const MaxEncodedIntegerSize = 9

// Column describes one attribute of a Schema.
type Column struct {
	Name string
	Type DataType
}

// Schema is the ordered list of columns in a table.
type Schema struct {
	Columns []Column
}

// ColumnIndex returns the ordinal of name, or -1 if absent.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ───────────────────────────────────────────────────────────────────────────
// Tuple: MVCC header + encoded column values
// ───────────────────────────────────────────────────────────────────────────

// Tuple is one row version: the table-page MVCC header plus its decoded
// column values, ordered per the owning table's Schema.
type Tuple struct {
	Xmin   pager.TxID
	Xmax   pager.TxID
	Values []Value
}

// IsLive reports whether the tuple has not been deleted.
func (t Tuple) IsLive() bool { return t.Xmax == pager.InvalidTxID }

// EncodeTuple produces the raw bytes stored in a table page slot: the
// 8-byte Xmin/Xmax header followed by each value in schema order.
func EncodeTuple(t Tuple) []byte {
	buf := make([]byte, pager.TupleHeaderSize, pager.TupleHeaderSize+16*len(t.Values))
	pager.SetTupleXmin(buf, t.Xmin)
	pager.SetTupleXmax(buf, t.Xmax)
	for _, v := range t.Values {
		buf = Encode(buf, v)
	}
	return buf
}

// DecodeTuple parses raw table-page slot bytes against schema.
func DecodeTuple(raw []byte, schema Schema) (Tuple, error) {
	if len(raw) < pager.TupleHeaderSize {
		return Tuple{}, fmt.Errorf("value: decode tuple: short header")
	}
	t := Tuple{
		Xmin:   pager.TupleXmin(raw),
		Xmax:   pager.TupleXmax(raw),
		Values: make([]Value, len(schema.Columns)),
	}
	pos := pager.TupleHeaderSize
	for i, col := range schema.Columns {
		v, n, err := Decode(raw[pos:], col.Type)
		if err != nil {
			return Tuple{}, fmt.Errorf("value: decode tuple column %q: %w", col.Name, err)
		}
		t.Values[i] = v
		pos += n
	}
	return t, nil
}
