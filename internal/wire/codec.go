// Package wire implements the on-wire framing for broadcast descriptors:
//
//	offset  size     field
//	0       4        sig_len (u32, big-endian)
//	4       sig_len  signature bytes (may be zero-length)
//	4+sl    N        descriptor JSON bytes (UTF-8)
package wire

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/rng-ops/infrasim/internal/rerr"
)

// headerSize is the fixed-width length prefix.
const headerSize = 4

// MaxFrameSize is the UDP MTU-driven ceiling on a single frame.
const MaxFrameSize = 65535

// Encode builds the wire frame for a descriptor and its (possibly empty)
// detached signature.
func Encode(descriptorJSON, signature []byte) []byte {
	frame := make([]byte, headerSize+len(signature)+len(descriptorJSON))
	binary.BigEndian.PutUint32(frame[0:headerSize], uint32(len(signature)))
	copy(frame[headerSize:], signature)
	copy(frame[headerSize+len(signature):], descriptorJSON)
	return frame
}

// Decode parses a wire frame, returning the signature and descriptor JSON
// bytes. It fails with a CategoryFrame *rerr.RendezvousError if the buffer
// is structurally too short or declares a signature length the buffer can't
// hold, and with CategoryDecode if the trailing bytes are not valid UTF-8.
func Decode(frame []byte) (signature, descriptorJSON []byte, err error) {
	if len(frame) < headerSize {
		return nil, nil, rerr.Frame("frame shorter than length header")
	}

	sigLen := binary.BigEndian.Uint32(frame[0:headerSize])
	if uint64(headerSize)+uint64(sigLen) > uint64(len(frame)) {
		return nil, nil, rerr.Frame("declared signature length exceeds frame size")
	}

	sigEnd := headerSize + int(sigLen)
	signature = frame[headerSize:sigEnd]
	descriptorJSON = frame[sigEnd:]

	if !utf8.Valid(descriptorJSON) {
		return nil, nil, rerr.Decode("descriptor payload is not valid UTF-8", nil)
	}

	return signature, descriptorJSON, nil
}
