package engine

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/zhukovaskychina/txstorage/server/innodb/basic"
)

// Row is this package's concrete implementation of basic.Row: a column-name
// -> basic.Value map plus the primary-key bytes the clustered index is
// keyed on. basic.Row's interface (server/innodb/basic/row.go) was written
// for InnoDB's compact on-page slotted-record format — infimum/supremum
// sentinels, heap numbers, n_owned group counts — which this package's
// gob-encoded bNode leaves (manager/bplus_tree_manager.go) don't use. Row
// implements every method the interface requires so it satisfies
// basic.Row, but the slot-directory-specific ones are inert: this layer has
// no page-local slot directory for them to describe.
type Row struct {
	Table      string
	PrimaryKey []byte
	Values     map[string]basic.Value

	heapNo  uint16
	nOwned  byte
	nextOff uint16
	trxID   uint64
}

func init() {
	gob.Register(&Row{})
}

// NewRow creates a row for table with the given primary key bytes and
// column values.
func NewRow(table string, primaryKey []byte, values map[string]basic.Value) *Row {
	return &Row{Table: table, PrimaryKey: primaryKey, Values: values}
}

// rowWire is Row's gob-serializable shape: basic.Value is an interface, so
// ToByte records each value's own Bytes()/Type() pair rather than
// gob-encoding the interface directly.
type rowWire struct {
	Table      string
	PrimaryKey []byte
	Cols       []string
	Types      []basic.ValueType
	Raw        [][]byte
}

func (r *Row) Less(than basic.Row) bool {
	other, ok := than.(*Row)
	if !ok {
		return false
	}
	return bytes.Compare(r.PrimaryKey, other.PrimaryKey) < 0
}

// ToByte gob-encodes the row for storage as a clustered-index leaf value
// (manager.IndexRecord.Value).
func (r *Row) ToByte() []byte {
	w := rowWire{Table: r.Table, PrimaryKey: r.PrimaryKey}
	for col, v := range r.Values {
		w.Cols = append(w.Cols, col)
		w.Types = append(w.Types, v.Type())
		w.Raw = append(w.Raw, v.Bytes())
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil
	}
	return buf.Bytes()
}

// DecodeRow reverses ToByte's encoding. Every column comes back as a
// raw-bytes value (basic.NewBytesValue) holding the bytes ToByte recorded;
// the recorded column types are not used to rebuild typed values.
func DecodeRow(table string, primaryKey []byte, data []byte) (*Row, error) {
	var w rowWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return nil, fmt.Errorf("engine: decode row: %w", err)
	}
	values := make(map[string]basic.Value, len(w.Cols))
	for i, col := range w.Cols {
		values[col] = basic.NewBytesValue(w.Raw[i])
	}
	return &Row{Table: table, PrimaryKey: primaryKey, Values: values}, nil
}

func (r *Row) IsInfimumRow() bool { return false }
func (r *Row) IsSupremumRow() bool { return false }

func (r *Row) GetPageNumber() uint32 { return 0 }

func (r *Row) WriteWithNull(content []byte)                       {}
func (r *Row) WriteBytesWithNullWithsPos(content []byte, index byte) {}

func (r *Row) GetRowLength() uint16 { return uint16(len(r.ToByte())) }
func (r *Row) GetHeaderLength() uint16 { return 0 }

func (r *Row) GetPrimaryKey() basic.Value { return basic.NewBytesValue(r.PrimaryKey) }

func (r *Row) GetFieldLength() int { return len(r.Values) }

func (r *Row) ReadValueByIndex(index int) basic.Value {
	i := 0
	for _, v := range r.Values {
		if i == index {
			return v
		}
		i++
	}
	return basic.NewNull()
}

func (r *Row) SetNOwned(cnt byte)   { r.nOwned = cnt }
func (r *Row) GetNOwned() byte      { return r.nOwned }

func (r *Row) GetNextRowOffset() uint16        { return r.nextOff }
func (r *Row) SetNextRowOffset(offset uint16)  { r.nextOff = offset }

func (r *Row) GetHeapNo() uint16       { return r.heapNo }
func (r *Row) SetHeapNo(heapNo uint16) { r.heapNo = heapNo }

func (r *Row) SetTransactionId(trxId uint64) { r.trxID = trxId }

func (r *Row) GetValueByColName(colName string) basic.Value {
	if v, ok := r.Values[colName]; ok {
		return v
	}
	return basic.NewNull()
}

func (r *Row) ToString() string {
	return fmt.Sprintf("Row{table=%s, pk=%x, cols=%d}", r.Table, r.PrimaryKey, len(r.Values))
}

// secondaryKey concatenates the given columns' raw bytes, in order, as a
// secondary index's key. A nil column value (the column is missing or SQL
// NULL) makes the whole key nil, matching the convention manager.FKManager
// uses to decide a foreign-key value is NULL and so exempt from the
// constraint check.
func secondaryKey(row *Row, columns []string) []byte {
	var buf bytes.Buffer
	for _, col := range columns {
		v, ok := row.Values[col]
		if !ok || v.IsNull() {
			return nil
		}
		b := v.Bytes()
		var lenPrefix [4]byte
		for i := 0; i < 4; i++ {
			lenPrefix[i] = byte(len(b) >> (8 * (3 - i)))
		}
		buf.Write(lenPrefix[:])
		buf.Write(b)
	}
	return buf.Bytes()
}
