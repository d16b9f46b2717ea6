// Package eventstream decodes the text/event-stream body produced by the
// formatting service. Records are separated by a blank line and carry a
// single "data:" line with a JSON payload.
package eventstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	dataPrefix   = "data:"
	readBufBytes = 4096
)

var separator = []byte("\n\n")

// ErrNotData is returned by ParseEvent for records without the data marker.
var ErrNotData = errors.New("record has no data marker")

// Decoder accumulates raw bytes and cuts complete records out of them.
// Bytes after the last separator stay buffered until more input arrives.
type Decoder struct {
	buf bytes.Buffer
}

// Feed appends chunk and returns every record it completed, in order.
func (d *Decoder) Feed(chunk []byte) []string {
	d.buf.Write(chunk)

	var records []string
	for {
		data := d.buf.Bytes()
		idx := bytes.Index(data, separator)
		if idx < 0 {
			break
		}
		records = append(records, string(data[:idx]))
		d.buf.Next(idx + len(separator))
	}
	return records
}

// Pending returns the bytes of the unterminated tail.
func (d *Decoder) Pending() int {
	return d.buf.Len()
}

// Reader pulls records out of an io.Reader one at a time.
type Reader struct {
	src   io.Reader
	dec   Decoder
	queue []string
	chunk []byte
	done  bool
	reads int
}

// NewReader wraps src.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src:   src,
		chunk: make([]byte, readBufBytes),
	}
}

// Next returns the next complete record. It returns io.EOF once the source is
// exhausted; an unterminated tail at that point is dropped.
func (r *Reader) Next() (string, error) {
	for len(r.queue) == 0 {
		if r.done {
			return "", io.EOF
		}
		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.reads++
			r.queue = append(r.queue, r.dec.Feed(r.chunk[:n])...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("failed to read event stream: %w", err)
			}
			r.done = true
		}
	}

	rec := r.queue[0]
	r.queue = r.queue[1:]
	return rec, nil
}

// Reads reports how many non-empty chunks were read from the source.
func (r *Reader) Reads() int {
	return r.reads
}

// Event 排版服务推送的一条事件
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Chunks  int    `json:"chunks,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// ParseEvent decodes one record. Records that do not start with the data
// marker yield ErrNotData; bad JSON yields a wrapped decode error.
func ParseEvent(record string) (Event, error) {
	if !strings.HasPrefix(record, dataPrefix) {
		return Event{}, ErrNotData
	}

	payload := strings.TrimSpace(record[len(dataPrefix):])
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return ev, nil
}

// Encode writes ev as a single record, used by fakes and relays.
func Encode(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s %s\n\n", dataPrefix, data)
	return err
}
