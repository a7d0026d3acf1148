package cryptopool

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Protocol opcodes understood by the offload peer.
const (
	opEncrypt byte = 146
	opDecrypt byte = 1
)

// statusOK is the only response status that carries a usable payload.
const statusOK byte = 0

// frameHeaderLength is the fixed size of both request and response headers:
// 1 byte opcode/status + 4 bytes big-endian payload length.
const frameHeaderLength = 5

// maxPayloadLength bounds the response payload a single frame may carry.
// Tokens and record blobs are tiny; 16 MB leaves generous headroom while
// keeping a corrupt length field from allocating the moon.
const maxPayloadLength = 16 * 1024 * 1024

func writeFrame(w io.Writer, opcode byte, payload []byte) error {
	var header [frameHeaderLength]byte
	header[0] = opcode
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

func readFrame(r io.Reader) (status byte, payload []byte, err error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("read frame header: %w", err)
	}

	status = header[0]
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxPayloadLength {
		return 0, nil, fmt.Errorf("frame payload length %d exceeds limit", length)
	}
	if length == 0 {
		return status, nil, nil
	}

	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read frame payload: %w", err)
	}
	return status, payload, nil
}
