// Package framing implements the two wire encodings used to deliver frames:
// length-prefixed binary frames for push delivery and multipart boundary
// framing for browsers.
package framing

import (
	"encoding/binary"
	"errors"
	"io"
)

// HeaderSize is the size of the big-endian length prefix.
const HeaderSize = 4

// MaxFrameSize bounds a single decoded frame (16 MiB).
const MaxFrameSize = 16 * 1024 * 1024

var (
	ErrEmptyFrame    = errors.New("framing: empty frame")
	ErrFrameTooLarge = errors.New("framing: frame too large")
)

// WriteFrame writes [4-byte BE length][payload] to w and flushes it if w
// supports flushing. Zero-length frames are never written.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if uint64(len(payload)) > 0xffffffff {
		return ErrFrameTooLarge
	}
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return Flush(w)
}

// ReadFrame reads one length-prefixed frame. It returns io.EOF only when the
// stream ends cleanly between frames; a truncated frame yields
// io.ErrUnexpectedEOF. A zero length prefix decodes to an empty frame.
//
// buf is optional scratch space reused when large enough.
func ReadFrame(r io.Reader, buf []byte) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	var payload []byte
	if cap(buf) >= int(n) {
		payload = buf[:n]
	} else {
		payload = make([]byte, n)
	}
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

type httpFlusher interface{ Flush() }

type errFlusher interface{ Flush() error }

// Flush pushes buffered bytes of w to the peer when w supports it
// (http.ResponseWriter, bufio.Writer and similar).
func Flush(w io.Writer) error {
	switch f := w.(type) {
	case errFlusher:
		return f.Flush()
	case httpFlusher:
		f.Flush()
	}
	return nil
}
