package value

import (
	"testing"

	"github.com/SimonWaldherr/pagedb/internal/storage/pager"
)

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	tests := []Value{
		NewInteger(42),
		NewInteger(-7),
		NewVarchar("hello, world"),
		NewVarchar(""),
		NewBoolean(true),
		NewBoolean(false),
		NewNull(TypeInteger),
		NewNull(TypeVarchar),
		NewNull(TypeBoolean),
	}
	for _, v := range tests {
		enc := Encode(nil, v)
		got, n, err := Decode(enc, v.Type)
		if err != nil {
			t.Fatalf("decode %+v: %v", v, err)
		}
		if n != len(enc) {
			t.Fatalf("expected decode to consume %d bytes, consumed %d", len(enc), n)
		}
		if got.IsNull != v.IsNull {
			t.Fatalf("expected IsNull=%v, got %v", v.IsNull, got.IsNull)
		}
		if !v.IsNull && v.Compare(got) != 0 {
			t.Fatalf("expected round-tripped value to equal %+v, got %+v", v, got)
		}
	}
}

func TestValueCompareOrdering(t *testing.T) {
	if NewInteger(1).Compare(NewInteger(2)) >= 0 {
		t.Fatal("expected 1 < 2")
	}
	if NewVarchar("a").Compare(NewVarchar("b")) >= 0 {
		t.Fatal("expected \"a\" < \"b\"")
	}
	if NewBoolean(false).Compare(NewBoolean(true)) >= 0 {
		t.Fatal("expected false < true")
	}
	if NewNull(TypeInteger).Compare(NewInteger(0)) >= 0 {
		t.Fatal("expected null to sort before non-null")
	}
}

func TestTupleEncodeDecodeRoundTrip(t *testing.T) {
	schema := Schema{Columns: []Column{
		{Name: "id", Type: TypeInteger},
		{Name: "name", Type: TypeVarchar},
		{Name: "active", Type: TypeBoolean},
	}}
	tup := Tuple{
		Xmin: 5,
		Xmax: pager.InvalidTxID,
		Values: []Value{
			NewInteger(100),
			NewVarchar("widget"),
			NewBoolean(true),
		},
	}
	raw := EncodeTuple(tup)
	got, err := DecodeTuple(raw, schema)
	if err != nil {
		t.Fatalf("decode tuple: %v", err)
	}
	if got.Xmin != tup.Xmin || got.Xmax != tup.Xmax {
		t.Fatalf("expected xmin/xmax %d/%d, got %d/%d", tup.Xmin, tup.Xmax, got.Xmin, got.Xmax)
	}
	if !got.IsLive() {
		t.Fatal("expected decoded tuple to be live")
	}
	for i, v := range tup.Values {
		if got.Values[i].Compare(v) != 0 {
			t.Fatalf("column %d: expected %+v, got %+v", i, v, got.Values[i])
		}
	}
}

func TestSchemaColumnIndex(t *testing.T) {
	schema := Schema{Columns: []Column{{Name: "a", Type: TypeInteger}, {Name: "b", Type: TypeVarchar}}}
	if schema.ColumnIndex("b") != 1 {
		t.Fatalf("expected index 1 for column b, got %d", schema.ColumnIndex("b"))
	}
	if schema.ColumnIndex("missing") != -1 {
		t.Fatalf("expected -1 for missing column, got %d", schema.ColumnIndex("missing"))
	}
}
