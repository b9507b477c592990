// Package framing implements the length-prefixed binary framing used on
// the host's stdio channel: a 4-byte big-endian payload length followed
// by exactly that many bytes.
package framing

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Size ceilings for the two directions of the stdio channel.
const (
	OutboundMaxFrame = 65536   // UI -> controller
	InboundMaxFrame  = 1048576 // controller -> UI
)

// ErrFrameTooLarge is returned when a frame's length exceeds the ceiling
// passed to ReadFrame/WriteFrame.
var ErrFrameTooLarge = fmt.Errorf("framing: frame exceeds size ceiling")

const headerLen = 4

// WriteFrame writes a 4-byte big-endian length header followed by payload
// to w. It fails with ErrFrameTooLarge if len(payload) exceeds max or the
// uint32 range.
func WriteFrame(w io.Writer, payload []byte, max int) error {
	if len(payload) > max || len(payload) > int(^uint32(0)) {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), max)
	}

	var header [headerLen]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads a 4-byte big-endian length header and the following
// payload from r. A clean end-of-stream before any header byte is read
// is reported as io.EOF. A stream that ends partway through the header
// or payload is reported as io.ErrUnexpectedEOF. A length exceeding max
// is ErrFrameTooLarge.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := int(binary.BigEndian.Uint32(header[:]))
	if length > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, max)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return payload, nil
}
