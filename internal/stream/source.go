// Package stream provides the peek/reassemble primitive for inbound byte
// streams: a bounded head is read off a live source for inspection, then the
// full stream is reconstructed (head first, untouched remainder after) for
// downstream consumption.
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrSourceClosed is returned when a peek or reassembly is attempted after
// the underlying source has been released. Hitting it indicates a pipeline
// ordering bug, not a bad upload.
var ErrSourceClosed = errors.New("stream: source already closed")

type state int

const (
	stateFresh state = iota
	statePeeked
	stateReassembled
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateFresh:
		return "fresh"
	case statePeeked:
		return "peeked"
	case stateReassembled:
		return "reassembled"
	default:
		return "closed"
	}
}

// Source wraps an inbound byte stream and enforces the
// fresh → peeked → reassembled ordering at the type level. Reads only happen
// when a consumer pulls, so the underlying stream's backpressure carries
// through unchanged: a slow consumer of the reassembled stream stalls the
// source instead of growing a buffer.
//
// A Source is owned by a single request and is not safe for concurrent use.
type Source struct {
	rc        io.ReadCloser
	head      []byte
	st        state
	closeOnce sync.Once
	closeErr  error
}

// NewSource takes ownership of rc. The caller must eventually Close the
// source (directly or through the reassembled stream).
func NewSource(rc io.ReadCloser) *Source {
	return &Source{rc: rc}
}

// Peek reads up to budget bytes from the front of the source and retains
// them for later reassembly. A source shorter than the budget is not an
// error; the captured head is simply shorter. Peek may block until the
// source delivers bytes or ends.
func (s *Source) Peek(budget int) ([]byte, error) {
	if s.st == stateClosed {
		return nil, ErrSourceClosed
	}
	if s.st != stateFresh {
		return nil, fmt.Errorf("stream: peek in state %s", s.st)
	}
	buf := make([]byte, budget)
	n, err := io.ReadFull(s.rc, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("stream: peek head: %w", err)
	}
	s.head = buf[:n]
	s.st = statePeeked
	return s.head, nil
}

// Head returns the captured head buffer. Empty before Peek.
func (s *Source) Head() []byte {
	return s.head
}

// Reassemble returns a reader yielding the original byte sequence: the
// peeked head followed by the untouched remainder of the source. Closing
// the returned reader closes the source. After Reassemble the Source must
// no longer be used directly.
func (s *Source) Reassemble() (io.ReadCloser, error) {
	switch s.st {
	case stateClosed:
		return nil, ErrSourceClosed
	case statePeeked:
	default:
		return nil, fmt.Errorf("stream: reassemble in state %s", s.st)
	}
	s.st = stateReassembled
	return &reassembled{
		r:   io.MultiReader(bytes.NewReader(s.head), s.rc),
		src: s,
	}, nil
}

// Close releases the underlying stream. Safe to call any number of times;
// only the first call has effect.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.st = stateClosed
		s.closeErr = s.rc.Close()
	})
	return s.closeErr
}

type reassembled struct {
	r   io.Reader
	src *Source
}

func (r *reassembled) Read(p []byte) (int, error) { return r.r.Read(p) }

func (r *reassembled) Close() error { return r.src.Close() }
