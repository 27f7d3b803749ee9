package commit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Kind tags an entry of an event stream.
type Kind uint8

// Stream entry kinds. CSR changes and AMO writes arrive out of band and must
// be replayed before the commit they annotate.
const (
	KindCommit Kind = iota + 1
	KindCSRChange
	KindAMOWrite
)

// StreamVersion is the current stream format version.
const StreamVersion uint32 = 1

const streamHeaderSize = 16 // 8 magic + 4 version + 4 hart

var streamMagic = [8]byte{'R', 'V', 'C', 'O', 'M', 'M', 'I', 'T'}

// ErrBadMagic is returned when a stream does not start with the expected
// header.
var ErrBadMagic = errors.New("commit: bad stream magic")

// CSRChange is a pending (address, value) update of a control/status
// register.
type CSRChange struct {
	Addr  uint64
	Value uint64
}

// AMOWrite is the value an atomic memory operation stored to memory.
type AMOWrite struct {
	Addr uint64
	Data uint64
}

// Entry is one item read back from a stream. Exactly one of Event, CSR or
// AMO is meaningful, selected by Kind.
type Entry struct {
	Kind  Kind
	Cycle uint64
	Event Event
	CSR   CSRChange
	AMO   AMOWrite
}

// StreamWriter serializes commit events and their side-band updates.
type StreamWriter struct {
	w   io.Writer
	buf [1 + 8 + RecordSize]byte
}

// NewStreamWriter writes the stream header to w and returns a writer.
func NewStreamWriter(w io.Writer, hart uint32) (*StreamWriter, error) {
	var hdr [streamHeaderSize]byte
	copy(hdr[:8], streamMagic[:])
	binary.LittleEndian.PutUint32(hdr[8:12], StreamVersion)
	binary.LittleEndian.PutUint32(hdr[12:16], hart)
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to write stream header: %w", err)
	}
	return &StreamWriter{w: w}, nil
}

// WriteCommit appends a commit event.
func (sw *StreamWriter) WriteCommit(cycle uint64, e *Event) error {
	sw.head(KindCommit, cycle)
	EncodeTo(sw.buf[9:], e)
	return sw.flush(9 + RecordSize)
}

// WriteCSRChange appends a CSR update.
func (sw *StreamWriter) WriteCSRChange(cycle uint64, c CSRChange) error {
	sw.head(KindCSRChange, cycle)
	binary.LittleEndian.PutUint64(sw.buf[9:], c.Addr)
	binary.LittleEndian.PutUint64(sw.buf[17:], c.Value)
	return sw.flush(25)
}

// WriteAMOWrite appends an AMO store value.
func (sw *StreamWriter) WriteAMOWrite(cycle uint64, a AMOWrite) error {
	sw.head(KindAMOWrite, cycle)
	binary.LittleEndian.PutUint64(sw.buf[9:], a.Addr)
	binary.LittleEndian.PutUint64(sw.buf[17:], a.Data)
	return sw.flush(25)
}

func (sw *StreamWriter) head(k Kind, cycle uint64) {
	sw.buf[0] = byte(k)
	binary.LittleEndian.PutUint64(sw.buf[1:], cycle)
}

func (sw *StreamWriter) flush(n int) error {
	_, err := sw.w.Write(sw.buf[:n])
	return err
}

// StreamReader reads entries written by a StreamWriter.
type StreamReader struct {
	r    io.Reader
	hart uint32
	buf  [8 + RecordSize]byte
}

// NewStreamReader validates the stream header and returns a reader.
func NewStreamReader(r io.Reader) (*StreamReader, error) {
	var hdr [streamHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to read stream header: %w", err)
	}
	if [8]byte(hdr[:8]) != streamMagic {
		return nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint32(hdr[8:12]); v != StreamVersion {
		return nil, fmt.Errorf("unsupported stream version %d", v)
	}
	return &StreamReader{
		r:    r,
		hart: binary.LittleEndian.Uint32(hdr[12:16]),
	}, nil
}

// Hart returns the hart id recorded in the stream header.
func (sr *StreamReader) Hart() uint32 {
	return sr.hart
}

// Next returns the next entry. It returns io.EOF at a clean end of stream.
func (sr *StreamReader) Next() (Entry, error) {
	var ent Entry

	var kind [1]byte
	if _, err := io.ReadFull(sr.r, kind[:]); err != nil {
		return ent, err
	}
	ent.Kind = Kind(kind[0])

	var size int
	switch ent.Kind {
	case KindCommit:
		size = 8 + RecordSize
	case KindCSRChange, KindAMOWrite:
		size = 8 + 16
	default:
		return ent, fmt.Errorf("unknown stream entry kind %d", kind[0])
	}

	b := sr.buf[:size]
	if _, err := io.ReadFull(sr.r, b); err != nil {
		return ent, fmt.Errorf("truncated %d-byte entry: %w", size, io.ErrUnexpectedEOF)
	}
	ent.Cycle = binary.LittleEndian.Uint64(b)

	switch ent.Kind {
	case KindCommit:
		ev, err := Decode(b[8:])
		if err != nil {
			return ent, err
		}
		ent.Event = ev
	case KindCSRChange:
		ent.CSR = CSRChange{
			Addr:  binary.LittleEndian.Uint64(b[8:]),
			Value: binary.LittleEndian.Uint64(b[16:]),
		}
	case KindAMOWrite:
		ent.AMO = AMOWrite{
			Addr: binary.LittleEndian.Uint64(b[8:]),
			Data: binary.LittleEndian.Uint64(b[16:]),
		}
	}

	return ent, nil
}
