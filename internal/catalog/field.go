package catalog

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/jyafoo/godb/internal/dberr"
	"github.com/jyafoo/godb/internal/index/bplustree"
	"github.com/jyafoo/godb/internal/tm"
)

// FieldType is one of the three data types spec.md §1 allows.
type FieldType string

const (
	TypeInt32  FieldType = "int32"
	TypeInt64  FieldType = "int64"
	TypeString FieldType = "string"
)

func validFieldType(t FieldType) bool {
	return t == TypeInt32 || t == TypeInt64 || t == TypeString
}

// Field is one column of a Table: its name, type, and (if indexed) the
// B+ tree mapping its values to row UIDs. Persisted as
// [name:len+bytes][type:len+bytes][indexRootUid:8].
type Field struct {
	uid      uint64
	tb       *Table
	Name     string
	Type     FieldType
	indexUID uint64
	tree     *bplustree.Tree
}

func loadField(tb *Table, uid uint64) (*Field, error) {
	raw, err := tb.cat.vm.Read(tm.SuperXID, uid)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, dberr.New(dberr.KindInvalidField, "field data item missing")
	}

	f := &Field{uid: uid, tb: tb}
	name, n := parseLenString(raw)
	f.Name = name
	raw = raw[n:]
	typ, n := parseLenString(raw)
	f.Type = FieldType(typ)
	raw = raw[n:]
	f.indexUID = binary.BigEndian.Uint64(raw[:8])

	if f.indexUID != 0 {
		tree, err := bplustree.Load(f.indexUID, tb.cat.dm)
		if err != nil {
			return nil, err
		}
		f.tree = tree
	}
	return f, nil
}

// createField validates fieldType, optionally creates a backing B+
// tree, and persists the new field under xid.
func createField(tb *Table, xid uint64, name string, fieldType FieldType, indexed bool) (*Field, error) {
	if !validFieldType(fieldType) {
		return nil, dberr.New(dberr.KindInvalidField, "unsupported field type "+string(fieldType))
	}

	f := &Field{tb: tb, Name: name, Type: fieldType}
	if indexed {
		indexUID, err := bplustree.Create(tb.cat.dm)
		if err != nil {
			return nil, err
		}
		tree, err := bplustree.Load(indexUID, tb.cat.dm)
		if err != nil {
			return nil, err
		}
		f.indexUID = indexUID
		f.tree = tree
	}

	if err := f.persist(xid); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Field) persist(xid uint64) error {
	raw := append(lenString(f.Name), lenString(string(f.Type))...)
	indexRaw := make([]byte, 8)
	binary.BigEndian.PutUint64(indexRaw, f.indexUID)
	raw = append(raw, indexRaw...)

	uid, err := f.tb.cat.vm.Insert(xid, raw)
	if err != nil {
		return err
	}
	f.uid = uid
	return nil
}

// IsIndexed reports whether this field has a backing B+ tree.
func (f *Field) IsIndexed() bool { return f.indexUID != 0 }

// insertIndex maps value to uid in this field's B+ tree.
func (f *Field) insertIndex(value interface{}, uid uint64) error {
	return f.tree.Insert(value2Key(f.Type, value), uid)
}

// searchIndex returns the row UIDs in [lo, hi] of this field's B+ tree.
func (f *Field) searchIndex(lo, hi int64) ([]uint64, error) {
	return f.tree.SearchRange(lo, hi)
}

// valueToRaw encodes v (an already-typed Go value per stringToValue)
// into the byte encoding this field's type uses inside a row.
func (f *Field) valueToRaw(v interface{}) []byte {
	switch f.Type {
	case TypeInt32:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(v.(int32)))
		return buf
	case TypeInt64:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v.(int64)))
		return buf
	case TypeString:
		return lenString(v.(string))
	}
	return nil
}

// parseRawValue decodes a value of this field's type starting at the
// front of raw, returning the value and the number of bytes consumed.
func (f *Field) parseRawValue(raw []byte) (interface{}, int) {
	switch f.Type {
	case TypeInt32:
		return int32(binary.BigEndian.Uint32(raw[:4])), 4
	case TypeInt64:
		return int64(binary.BigEndian.Uint64(raw[:8])), 8
	case TypeString:
		s, n := parseLenString(raw)
		return s, n
	}
	return nil, 0
}

// stringToValue parses str per this field's type, as produced by the
// statement layer for literals and update/insert values.
func (f *Field) stringToValue(str string) (interface{}, error) {
	switch f.Type {
	case TypeInt32:
		n, err := parseInt64(str)
		if err != nil {
			return nil, dberr.Wrap(dberr.KindInvalidValues, "not a valid int32", err)
		}
		return int32(n), nil
	case TypeInt64:
		n, err := parseInt64(str)
		if err != nil {
			return nil, dberr.Wrap(dberr.KindInvalidValues, "not a valid int64", err)
		}
		return n, nil
	case TypeString:
		return str, nil
	}
	return nil, dberr.New(dberr.KindInvalidField, "unsupported field type")
}

// printValue renders a decoded value back to its textual form for
// Catalog.Select's output.
func (f *Field) printValue(v interface{}) string {
	switch f.Type {
	case TypeInt32:
		return formatInt64(int64(v.(int32)))
	case TypeInt64:
		return formatInt64(v.(int64))
	case TypeString:
		return v.(string)
	}
	return ""
}

// value2Key folds a decoded field value into the 64-bit signed key
// space the B+ tree operates over: int32 is sign-extended, int64 is
// the identity, and string is hashed with FNV-1a — a deterministic
// fold that, like any hash, can collide across distinct strings (a
// known, accepted limitation carried over from the original design).
func value2Key(t FieldType, v interface{}) int64 {
	switch t {
	case TypeInt32:
		return int64(v.(int32))
	case TypeInt64:
		return v.(int64)
	case TypeString:
		h := fnv.New64a()
		_, _ = h.Write([]byte(v.(string)))
		return int64(h.Sum64())
	}
	return 0
}

// exprRange computes the [left, right] key range a single comparison
// expression selects over this field, per spec.md §4.12's table:
//
//	= v  -> [enc(v), enc(v)]
//	< v  -> [0, max(0, enc(v)-1)]
//	> v  -> [enc(v)+1, math.MaxInt64]
func (f *Field) exprRange(op, literal string) (lo, hi int64, err error) {
	val, err := f.stringToValue(literal)
	if err != nil {
		return 0, 0, err
	}
	key := value2Key(f.Type, val)

	switch op {
	case "=":
		return key, key, nil
	case "<":
		if key > 0 {
			return 0, key - 1, nil
		}
		return 0, 0, nil
	case ">":
		return key + 1, maxInt64, nil
	default:
		return 0, 0, dberr.New(dberr.KindInvalidLogOp, "unsupported comparison operator "+op)
	}
}
