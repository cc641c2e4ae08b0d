package report

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode writes records to w as one msgpack array.
func Encode(w io.Writer, records []*Record) error {
	enc := msgpack.NewEncoder(w)
	enc.SetOmitEmpty(true)
	return enc.Encode(records)
}

// Decode reads records written by Encode. Records from another schema are
// rejected.
func Decode(r io.Reader) ([]*Record, error) {
	var records []*Record
	if err := msgpack.NewDecoder(r).Decode(&records); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Schema != schemaVersion {
			return nil, fmt.Errorf("report %s: schema %d, want %d", rec.Name, rec.Schema, schemaVersion)
		}
	}
	return records, nil
}
