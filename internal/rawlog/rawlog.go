// Package rawlog records raw hardware-link traffic to disk and plays it back.
// Each record is one CBOR-encoded chunk with its capture time and direction,
// appended to a flat file. Captures taken at the bench can be replayed
// through the normal decode pipeline without hardware attached.
package rawlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ErrReplayClosed is returned by replay readers interrupted by Close.
var ErrReplayClosed = errors.New("replay closed")

// Direction marks which way a chunk travelled relative to the link.
type Direction uint8

const (
	DirIn  Direction = 1 // link -> bridge
	DirOut Direction = 2 // bridge -> link
)

// Record is one captured chunk.
type Record struct {
	At   time.Time `cbor:"1,keyasint"`
	Dir  Direction `cbor:"2,keyasint"`
	Data []byte    `cbor:"3,keyasint"`
}

// Writer appends records to a capture file. Safe for concurrent use by the
// read loop and the command path.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	bw  *bufio.Writer
	enc *cbor.Encoder
}

// NewWriter creates (or truncates) a capture file at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture %s: %w", path, err)
	}
	bw := bufio.NewWriterSize(f, 1<<16)
	return &Writer{f: f, bw: bw, enc: cbor.NewEncoder(bw)}, nil
}

// Record appends one chunk with the current time.
func (w *Writer) Record(dir Direction, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(Record{At: time.Now(), Dir: dir, Data: data})
}

// Close flushes and closes the capture file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.bw.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// Reader iterates over a capture file in write order.
type Reader struct {
	f   *os.File
	dec *cbor.Decoder
}

// OpenReader opens a capture file for replay.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	return &Reader{f: f, dec: cbor.NewDecoder(bufio.NewReaderSize(f, 1<<16))}, nil
}

// Next returns the next record, or io.EOF once the capture is exhausted.
func (r *Reader) Next() (Record, error) {
	var rec Record
	err := r.dec.Decode(&rec)
	return rec, err
}

// Close closes the capture file.
func (r *Reader) Close() error {
	return r.f.Close()
}
