package catalog

import (
	"math"

	"github.com/jyafoo/godb/internal/dberr"
	"github.com/jyafoo/godb/internal/tm"
)

// Table maintains one table's schema and persistence. On-disk layout:
// [name:len+bytes][nextTableUid:8][fieldUid:8]*, fields in declaration
// order; the table chain is singly linked through nextUID, with the
// head stored in the catalog's boot file.
type Table struct {
	cat     *Catalog
	uid     uint64
	Name    string
	nextUID uint64
	Fields  []*Field
}

func loadTable(cat *Catalog, uid uint64) (*Table, error) {
	raw, err := cat.vm.Read(tm.SuperXID, uid)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, dberr.New(dberr.KindTableNotFound, "table data item missing")
	}

	tb := &Table{cat: cat, uid: uid}
	name, n := parseLenString(raw)
	tb.Name = name
	raw = raw[n:]
	tb.nextUID = beUint64(raw[:8])
	raw = raw[8:]

	for len(raw) > 0 {
		fuid := beUint64(raw[:8])
		raw = raw[8:]
		f, err := loadField(tb, fuid)
		if err != nil {
			return nil, err
		}
		tb.Fields = append(tb.Fields, f)
	}
	return tb, nil
}

// FieldSpec describes one column of a table to be created.
type FieldSpec struct {
	Name    string
	Type    FieldType
	Indexed bool
}

func createTable(cat *Catalog, nextUID, xid uint64, name string, specs []FieldSpec) (*Table, error) {
	tb := &Table{cat: cat, Name: name, nextUID: nextUID}
	for _, spec := range specs {
		f, err := createField(tb, xid, spec.Name, spec.Type, spec.Indexed)
		if err != nil {
			return nil, err
		}
		tb.Fields = append(tb.Fields, f)
	}
	if err := tb.persist(xid); err != nil {
		return nil, err
	}
	return tb, nil
}

func (tb *Table) persist(xid uint64) error {
	raw := lenString(tb.Name)
	raw = append(raw, beBytes(tb.nextUID)...)
	for _, f := range tb.Fields {
		raw = append(raw, beBytes(f.uid)...)
	}

	uid, err := tb.cat.vm.Insert(xid, raw)
	if err != nil {
		return err
	}
	tb.uid = uid
	return nil
}

func (tb *Table) field(name string) *Field {
	for _, f := range tb.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Where is a single comparison, or two joined by "and"/"or".
// LogicOp == "" means Field2/Op2/Value2 are unused.
type Where struct {
	Field1  string
	Op1     string
	Value1  string
	LogicOp string // "", "and", "or"
	Field2  string
	Op2     string
	Value2  string
}

// resolveUIDs computes the row UIDs selected by where, or (with a nil
// where) every row under the table's first indexed field.
func (tb *Table) resolveUIDs(where *Where) ([]uint64, error) {
	if where == nil {
		fd := tb.firstIndexed()
		if fd == nil {
			return nil, dberr.New(dberr.KindTableNoIndex, "table has no indexed field to scan")
		}
		return fd.searchIndex(math.MinInt64, maxInt64)
	}

	fd := tb.field(where.Field1)
	if fd == nil {
		return nil, dberr.ErrFieldNotFound
	}
	if !fd.IsIndexed() {
		return nil, dberr.ErrFieldNotIndexed
	}

	l0, r0, err := fd.exprRange(where.Op1, where.Value1)
	if err != nil {
		return nil, err
	}

	switch where.LogicOp {
	case "":
		return fd.searchIndex(l0, r0)
	case "and":
		l1, r1, err := fd.exprRange(where.Op2, where.Value2)
		if err != nil {
			return nil, err
		}
		if l1 > l0 {
			l0 = l1
		}
		if r1 < r0 {
			r0 = r1
		}
		return fd.searchIndex(l0, r0)
	case "or":
		l1, r1, err := fd.exprRange(where.Op2, where.Value2)
		if err != nil {
			return nil, err
		}
		uids, err := fd.searchIndex(l0, r0)
		if err != nil {
			return nil, err
		}
		more, err := fd.searchIndex(l1, r1)
		if err != nil {
			return nil, err
		}
		return append(uids, more...), nil
	default:
		return nil, dberr.New(dberr.KindInvalidLogOp, "unsupported logic operator "+where.LogicOp)
	}
}

func (tb *Table) firstIndexed() *Field {
	for _, f := range tb.Fields {
		if f.IsIndexed() {
			return f
		}
	}
	return nil
}

// Insert converts values (one string per field, in declaration order)
// to typed data, VM-inserts the row, and maintains every indexed
// field's B+ tree.
func (tb *Table) Insert(xid uint64, values []string) error {
	if len(values) != len(tb.Fields) {
		return dberr.New(dberr.KindInvalidValues, "value count does not match field count")
	}

	entry := make(map[string]interface{}, len(tb.Fields))
	for i, f := range tb.Fields {
		v, err := f.stringToValue(values[i])
		if err != nil {
			return err
		}
		entry[f.Name] = v
	}

	raw := tb.entryToRaw(entry)
	uid, err := tb.cat.vm.Insert(xid, raw)
	if err != nil {
		return err
	}
	return tb.indexEntry(entry, uid)
}

func (tb *Table) indexEntry(entry map[string]interface{}, uid uint64) error {
	for _, f := range tb.Fields {
		if f.IsIndexed() {
			if err := f.insertIndex(entry[f.Name], uid); err != nil {
				return err
			}
		}
	}
	return nil
}

// Select resolves where (or the default scan) and returns every
// matching row, projected to fields (or every field when fields is
// ["*"] or empty) and printed as "[v1, v2, ...]" lines.
func (tb *Table) Select(xid uint64, fields []string, where *Where) (string, error) {
	if len(fields) == 1 && fields[0] == "*" {
		fields = nil
	}
	for _, name := range fields {
		if tb.field(name) == nil {
			return "", dberr.ErrFieldNotFound
		}
	}

	uids, err := tb.resolveUIDs(where)
	if err != nil {
		return "", err
	}

	var out string
	for _, uid := range uids {
		raw, err := tb.cat.vm.Read(xid, uid)
		if err != nil {
			return "", err
		}
		if raw == nil {
			continue
		}
		entry := tb.parseEntry(raw)
		out += tb.printEntry(entry, fields) + "\n"
	}
	return out, nil
}

// Update resolves where, and for each matching row VM-deletes the old
// version, VM-inserts the updated version, and re-indexes every
// indexed field under the new UID. Stale B+ tree entries from the old
// version are not removed — they become unreachable once the data UID
// they point at is tombstoned, but the key itself lingers in the tree
// (spec.md's documented, preserved limitation).
func (tb *Table) Update(xid uint64, fieldName, value string, where *Where) (int, error) {
	fd := tb.field(fieldName)
	if fd == nil {
		return 0, dberr.ErrFieldNotFound
	}
	newVal, err := fd.stringToValue(value)
	if err != nil {
		return 0, err
	}

	uids, err := tb.resolveUIDs(where)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, uid := range uids {
		raw, err := tb.cat.vm.Read(xid, uid)
		if err != nil {
			return count, err
		}
		if raw == nil {
			continue
		}

		if _, err := tb.cat.vm.Delete(xid, uid); err != nil {
			return count, err
		}

		entry := tb.parseEntry(raw)
		entry[fieldName] = newVal

		newUID, err := tb.cat.vm.Insert(xid, tb.entryToRaw(entry))
		if err != nil {
			return count, err
		}
		count++

		if err := tb.indexEntry(entry, newUID); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Delete resolves where and VM-deletes every matching row, returning
// the number of rows actually removed.
func (tb *Table) Delete(xid uint64, where *Where) (int, error) {
	uids, err := tb.resolveUIDs(where)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, uid := range uids {
		ok, err := tb.cat.vm.Delete(xid, uid)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (tb *Table) entryToRaw(entry map[string]interface{}) []byte {
	var raw []byte
	for _, f := range tb.Fields {
		raw = append(raw, f.valueToRaw(entry[f.Name])...)
	}
	return raw
}

func (tb *Table) parseEntry(raw []byte) map[string]interface{} {
	entry := make(map[string]interface{}, len(tb.Fields))
	pos := 0
	for _, f := range tb.Fields {
		v, n := f.parseRawValue(raw[pos:])
		entry[f.Name] = v
		pos += n
	}
	return entry
}

// printEntry renders entry as "[v1, v2, ...]", in field declaration
// order, restricted to names when non-empty.
func (tb *Table) printEntry(entry map[string]interface{}, names []string) string {
	fields := tb.Fields
	if len(names) > 0 {
		fields = make([]*Field, 0, len(names))
		for _, n := range names {
			fields = append(fields, tb.field(n))
		}
	}

	out := "["
	for i, f := range fields {
		out += f.printValue(entry[f.Name])
		if i < len(fields)-1 {
			out += ", "
		}
	}
	return out + "]"
}

// String renders the table's schema: "{name: (field, type, Index|NoIndex), ...}".
func (tb *Table) String() string {
	out := "{" + tb.Name + ": "
	for i, f := range tb.Fields {
		out += "(" + f.Name + ", " + string(f.Type)
		if f.IsIndexed() {
			out += ", Index)"
		} else {
			out += ", NoIndex)"
		}
		if i < len(tb.Fields)-1 {
			out += ", "
		}
	}
	return out + "}"
}
