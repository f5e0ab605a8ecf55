package table

import (
	"bytes"
	"encoding/gob"
)

// GobEncode serializes the table's rows; the column set is rebuilt on
// decode. Callers are responsible for registering any interface-typed cell
// values with gob.
func (t *Table) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t.rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode restores rows and re-infers the column set.
func (t *Table) GobDecode(data []byte) error {
	var rows []Row
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rows); err != nil {
		return err
	}
	t.rows = nil
	t.columns = make(map[string]struct{})
	for _, r := range rows {
		t.Append(r)
	}
	return nil
}
