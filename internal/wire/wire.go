// Package wire frames the JSON records exchanged with the UI processes
// over Unix-domain sockets: a 4-byte big-endian length followed by a
// two-element array [conn_id, payload].
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxRecord bounds a single UI record. Anything larger is a protocol
// violation, not a legitimate message.
const MaxRecord = 1 << 20

var ErrRecordTooLarge = errors.New("wire: record exceeds maximum size")

type record struct {
	ID      int
	Payload jsoniter.RawMessage
}

func (r record) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{r.ID, r.Payload})
}

func (r *record) UnmarshalJSON(data []byte) error {
	var parts [2]jsoniter.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if err := json.Unmarshal(parts[0], &r.ID); err != nil {
		return err
	}
	r.Payload = parts[1]

	return nil
}

// Write frames and writes one record.
func Write(w io.Writer, id int, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	body, err := json.Marshal(record{ID: id, Payload: raw})
	if err != nil {
		return err
	}
	if len(body) > MaxRecord {
		return ErrRecordTooLarge
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)

	return err
}

// Read reads one framed record and unmarshals its payload into out.
func Read(r io.Reader, out any) (id int, err error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxRecord {
		return 0, ErrRecordTooLarge
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, err
	}

	var rec record
	if err := json.Unmarshal(body, &rec); err != nil {
		return 0, err
	}
	if out != nil {
		if err := json.Unmarshal(rec.Payload, out); err != nil {
			return rec.ID, fmt.Errorf("wire payload: %w", err)
		}
	}

	return rec.ID, nil
}
