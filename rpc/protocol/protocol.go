// Package protocol defines the frames exchanged with the remote cache
// server: the revision handshake, 4-byte group requests and windowed
// group responses.
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	DefaultPort = 43594

	OpcodeHandshake = 15
	StatusOK        = 0

	HandshakeSize      = 5
	RequestSize        = 4
	ResponseHeaderSize = 8

	// WindowSize is the size of one response window on the wire. Every
	// window after the first starts with WindowDelimiter.
	WindowSize      = 512
	WindowDelimiter = 0xff
)

// SessionInit is sent once the server accepted the revision.
var SessionInit = [RequestSize]byte{3, 0, 0, 0}

type Handshake struct {
	Revision uint32
}

func (h Handshake) MarshalBinary() ([]byte, error) {
	b := make([]byte, HandshakeSize)
	b[0] = OpcodeHandshake
	binary.BigEndian.PutUint32(b[1:], h.Revision)
	return b, nil
}

func (h *Handshake) UnmarshalBinary(b []byte) error {
	if len(b) != HandshakeSize || b[0] != OpcodeHandshake {
		return errors.Errorf("protocol: bad handshake % x", b)
	}

	h.Revision = binary.BigEndian.Uint32(b[1:])
	return nil
}

// Request asks for the encoded bytes of one group.
type Request struct {
	Urgent  bool
	Archive uint8
	Group   uint16
}

func (r Request) Put(b []byte) {
	_ = b[RequestSize-1]
	b[0] = 0
	if r.Urgent {
		b[0] = 1
	}
	b[1] = r.Archive
	binary.BigEndian.PutUint16(b[2:], r.Group)
}

func ParseRequest(b []byte) Request {
	_ = b[RequestSize-1]
	return Request{
		Urgent:  b[0] == 1,
		Archive: b[1],
		Group:   binary.BigEndian.Uint16(b[2:]),
	}
}

// ResponseHeader opens every response. Length is the compressed length
// as carried by the container; the compressor's own header comes on top.
type ResponseHeader struct {
	Archive    uint8
	Group      uint16
	Compressor uint8
	Length     uint32
}

func ParseResponseHeader(b []byte) ResponseHeader {
	_ = b[ResponseHeaderSize-1]
	return ResponseHeader{
		Archive:    b[0],
		Group:      binary.BigEndian.Uint16(b[1:3]),
		Compressor: b[3],
		Length:     binary.BigEndian.Uint32(b[4:8]),
	}
}

// WriteResponse writes the response for a group whose container bytes
// (tag, length and payload, without a version trailer) are container,
// splitting it into windows.
func WriteResponse(w io.Writer, archive uint8, group uint16, container []byte) error {
	msg := make([]byte, 0, 3+len(container))
	msg = append(msg, archive)
	msg = binary.BigEndian.AppendUint16(msg, group)
	msg = append(msg, container...)

	n := len(msg)
	if n > WindowSize {
		n = WindowSize
	}
	if _, err := w.Write(msg[:n]); err != nil {
		return err
	}

	for rest := msg[n:]; len(rest) > 0; {
		n := len(rest)
		if n > WindowSize-1 {
			n = WindowSize - 1
		}
		frame := append([]byte{WindowDelimiter}, rest[:n]...)
		if _, err := w.Write(frame); err != nil {
			return err
		}
		rest = rest[n:]
	}

	return nil
}
