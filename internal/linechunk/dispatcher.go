// Package linechunk implements a single-producer splitter that turns
// an input byte stream into size-bounded, line-aligned chunks,
// carrying partial lines across chunk boundaries and assigning each
// chunk a starting absolute line number.
package linechunk

import (
	"bytes"
	"io"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// DefaultChunkSize and MinChunkSize bound the dispatcher's target
// chunk size.
const (
	DefaultChunkSize = 128 * 1024 * 1024
	MinChunkSize     = 1 * 1024 * 1024
)

// Chunk is a line-aligned contiguous byte range.
type Chunk struct {
	ID                int
	StartOffset       int64
	EndOffset         int64
	Buffer            []byte
	StartLineNumber   uint64
	CarryForwardLines uint64
}

// Dispatcher owns the input stream and produces Chunks. It is not
// safe for concurrent use: exactly one goroutine (the pipeline's I/O
// stage) calls Next.
type Dispatcher struct {
	r               io.Reader
	targetChunkSize int

	carry       []byte
	offset      int64
	runningLine uint64
	nextID      int
	eof         bool

	// newBackOff builds the policy controlling how many times a
	// transient read error (EAGAIN/EINTR) is retried before being
	// treated as fatal, via github.com/cenkalti/backoff/v4. A clean
	// io.EOF is never retried.
	newBackOff func() backoff.BackOff
}

// New returns a Dispatcher reading from r, emitting chunks of at most
// targetChunkSize new bytes each (plus whatever carry-forward bytes
// preceded them). targetChunkSize is floored at MinChunkSize.
func New(r io.Reader, targetChunkSize int) *Dispatcher {
	if targetChunkSize < MinChunkSize {
		targetChunkSize = MinChunkSize
	}
	return &Dispatcher{
		r:               r,
		targetChunkSize: targetChunkSize,
		// Line numbers are 1-based, so the running counter starts at
		// 1 rather than 0.
		runningLine: 1,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Millisecond
			b.MaxInterval = 100 * time.Millisecond
			b.MaxElapsedTime = time.Second
			return backoff.WithMaxRetries(b, 5)
		},
	}
}

// Next produces the next Chunk, or (nil, io.EOF) once the stream and
// any carried-forward bytes are exhausted. Any other error is fatal
// and should abort processing of this input.
func (d *Dispatcher) Next() (*Chunk, error) {
	if d.eof && len(d.carry) == 0 {
		return nil, io.EOF
	}

	carryLen := len(d.carry)
	buf := make([]byte, carryLen, carryLen+d.targetChunkSize)
	copy(buf, d.carry)
	d.carry = nil

	startOffset := d.offset

	if !d.eof {
		readBuf := make([]byte, d.targetChunkSize)
		n, err := d.readFull(readBuf)
		buf = append(buf, readBuf[:n]...)
		d.offset += int64(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.eof = true
			} else {
				return nil, errors.Wrap(err, "linechunk: read failed")
			}
		}
	}

	if len(buf) == 0 {
		return nil, io.EOF
	}

	var chunkBuf, newCarry []byte
	lastNL := bytes.LastIndexByte(buf, '\n')
	if lastNL == -1 {
		// No newline at all: either this is the final, possibly
		// unterminated chunk of the file, or a single line exceeds
		// the chunk size. Either way, emit what we have rather than
		// starving workers waiting on a line that may never end
		// within one read.
		chunkBuf = buf
	} else {
		chunkBuf = buf[:lastNL+1]
		newCarry = append([]byte(nil), buf[lastNL+1:]...)
	}

	carryForwardLines := uint64(bytes.Count(chunkBuf[:min(carryLen, len(chunkBuf))], []byte{'\n'}))
	linesInChunk := uint64(bytes.Count(chunkBuf, []byte{'\n'}))
	newLines := linesInChunk - carryForwardLines

	c := &Chunk{
		ID:                d.nextID,
		StartOffset:       startOffset,
		EndOffset:         d.offset,
		Buffer:            chunkBuf,
		StartLineNumber:   d.runningLine,
		CarryForwardLines: carryForwardLines,
	}
	d.nextID++
	d.runningLine += newLines
	d.carry = newCarry

	return c, nil
}

// readFull fills buf completely, or reads until EOF, whichever comes
// first — mirroring the buffered-fread() semantics the original
// dispatcher relies on (a short read from a pipe or FUSE-backed file
// must not be mistaken for "no more data on this line"). Each
// individual Read call is retried with the configured backoff policy on
// a transient error (EAGAIN/EINTR); a clean io.EOF ends the loop and
// is returned as io.EOF together with the count of whatever was read
// so far.
func (d *Dispatcher) readFull(buf []byte) (int, error) {
	var total int
	for total < len(buf) {
		n, err := d.readOnce(buf[total:])
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, io.EOF
			}
			return total, err
		}
		if n == 0 {
			// Read returned neither an error nor progress; avoid
			// spinning forever on a misbehaving Reader.
			return total, errors.New("linechunk: Read returned no data and no error")
		}
	}
	return total, nil
}

// readOnce performs a single logical read, retrying transient errors
// (EAGAIN/EINTR) with the configured backoff policy.
func (d *Dispatcher) readOnce(buf []byte) (int, error) {
	var n int
	op := func() error {
		var err error
		n, err = d.r.Read(buf)
		if err == nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return backoff.Permanent(io.EOF)
		}
		if isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := d.newBackOff()
	if err := backoff.Retry(op, bo); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return n, perm.Err
		}
		return n, err
	}
	return n, nil
}

func isTransient(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR)
}
