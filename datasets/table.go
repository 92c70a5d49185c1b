package datasets

import (
	"fmt"
	"math/rand"
	"strconv"
)

// IDKind records whether clip identifiers were assigned as integers or strings.
type IDKind int

const (
	IntIDs IDKind = iota
	StringIDs
)

// ClipID identifies a clip in a ground-truth table. It keeps the original
// type of the identifier so it survives a text round trip unchanged.
type ClipID struct {
	kind IDKind
	num  int64
	str  string
}

// IntClipID returns an integer identifier.
func IntClipID(n int64) ClipID { return ClipID{kind: IntIDs, num: n} }

// StringClipID returns a string identifier.
func StringClipID(s string) ClipID { return ClipID{kind: StringIDs, str: s} }

// ParseClipID parses text as an identifier of the given kind.
func ParseClipID(text string, kind IDKind) (ClipID, error) {
	switch kind {
	case IntIDs:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return ClipID{}, fmt.Errorf("parse integer clip id %q: %w", text, err)
		}
		return IntClipID(n), nil
	case StringIDs:
		if text == "" {
			return ClipID{}, fmt.Errorf("empty clip id")
		}
		return StringClipID(text), nil
	}
	return ClipID{}, fmt.Errorf("unknown id kind %d", int(kind))
}

// Kind reports the identifier type.
func (id ClipID) Kind() IDKind { return id.kind }

// Int returns the integer value and whether id is an integer identifier.
func (id ClipID) Int() (int64, bool) { return id.num, id.kind == IntIDs }

func (id ClipID) String() string {
	if id.kind == IntIDs {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// Ordinal is the position of a clip in table order. It only indexes a
// DataBuffer; everything else addresses clips by ClipID.
type Ordinal int

// ClipRecord is one row of the ground truth.
type ClipRecord struct {
	ID     ClipID
	Action int
	// Path tells the decoder where the clip's pose data lives.
	Path string
	Meta map[string]string
}

// Table is an indexed, read-only ground-truth table.
type Table struct {
	records []ClipRecord
	byID    map[ClipID]int
	kind    IDKind
}

// NewTable indexes records. Identifiers must be unique and of a single kind,
// and actions must be non-negative.
func NewTable(records []ClipRecord) (*Table, error) {
	t := &Table{
		records: records,
		byID:    make(map[ClipID]int, len(records)),
	}
	for i, r := range records {
		if i == 0 {
			t.kind = r.ID.Kind()
		} else if r.ID.Kind() != t.kind {
			return nil, fmt.Errorf("row %d: clip id %s mixes integer and string identifiers", i, r.ID)
		}
		if r.Action < 0 {
			return nil, fmt.Errorf("row %d: negative action %d for clip %s", i, r.Action, r.ID)
		}
		if _, dup := t.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate clip id %s", r.ID)
		}
		t.byID[r.ID] = i
	}
	return t, nil
}

// Len returns the number of clips.
func (t *Table) Len() int { return len(t.records) }

// IDKind returns the identifier type shared by all rows.
func (t *Table) IDKind() IDKind { return t.kind }

// IDs returns the clip identifiers in table order.
func (t *Table) IDs() []ClipID {
	ids := make([]ClipID, len(t.records))
	for i, r := range t.records {
		ids[i] = r.ID
	}
	return ids
}

// Records returns all rows in table order.
func (t *Table) Records() []ClipRecord {
	out := make([]ClipRecord, len(t.records))
	copy(out, t.records)
	return out
}

// At returns the row at ordinal position o.
func (t *Table) At(o Ordinal) (ClipRecord, error) {
	if o < 0 || int(o) >= len(t.records) {
		return ClipRecord{}, fmt.Errorf("ordinal %d out of range [0, %d)", o, len(t.records))
	}
	return t.records[o], nil
}

// Get returns the row for a single clip.
func (t *Table) Get(id ClipID) (ClipRecord, bool) {
	i, ok := t.byID[id]
	if !ok {
		return ClipRecord{}, false
	}
	return t.records[i], true
}

// Lookup returns the rows for ids, in the order given.
func (t *Table) Lookup(ids []ClipID) ([]ClipRecord, error) {
	rows := make([]ClipRecord, len(ids))
	for i, id := range ids {
		r, ok := t.Get(id)
		if !ok {
			return nil, fmt.Errorf("clip %s not in ground truth", id)
		}
		rows[i] = r
	}
	return rows, nil
}

// Sample returns one arbitrary row.
func (t *Table) Sample(rng *rand.Rand) (ClipRecord, error) {
	if len(t.records) == 0 {
		return ClipRecord{}, fmt.Errorf("empty ground truth")
	}
	return t.records[rng.Intn(len(t.records))], nil
}

// NumClasses returns max(action)+1.
func (t *Table) NumClasses() int {
	n := 0
	for _, r := range t.records {
		if r.Action+1 > n {
			n = r.Action + 1
		}
	}
	return n
}
