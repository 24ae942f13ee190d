package trace

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Marshal serializes a single event to CBOR bytes.
func Marshal(e Event) ([]byte, error) {
	return encMode.Marshal(e)
}

// Unmarshal deserializes a single event from CBOR bytes.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := cbor.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("trace: unmarshal event: %w", err)
	}
	return e, nil
}

// Writer appends events to a CBOR sequence.
type Writer struct {
	enc   *cbor.Encoder
	count int
}

// NewWriter creates a writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w)}
}

// Write encodes one event.
func (w *Writer) Write(e Event) error {
	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("trace: write event %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// Count returns the number of events written.
func (w *Writer) Count() int {
	return w.count
}

// Reader reads events from a CBOR sequence.
type Reader struct {
	dec   *cbor.Decoder
	count int
}

// NewReader creates a reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next decodes the next event. It returns io.EOF at the end of the stream.
func (r *Reader) Next() (Event, error) {
	var e Event
	if err := r.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("trace: read event %d: %w", r.count, err)
	}
	r.count++
	return e, nil
}

// WriteAll writes every event to w.
func WriteAll(w io.Writer, events []Event) error {
	tw := NewWriter(w)
	for _, e := range events {
		if err := tw.Write(e); err != nil {
			return err
		}
	}
	return nil
}

// ReadAll reads events from r until the end of the stream.
func ReadAll(r io.Reader) ([]Event, error) {
	tr := NewReader(r)
	var events []Event
	for {
		e, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}
