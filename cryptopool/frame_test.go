package cryptopool

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x00},
		bytes.Repeat([]byte{0xAB}, 1024),
	}

	for _, payload := range payloads {
		var buf bytes.Buffer
		if err := writeFrame(&buf, opEncrypt, payload); err != nil {
			t.Fatalf("writeFrame: %v", err)
		}

		status, got, err := readFrame(&buf)
		if err != nil {
			t.Fatalf("readFrame: %v", err)
		}
		if status != opEncrypt {
			t.Fatalf("status = %d, want %d", status, opEncrypt)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
		}
	}
}

func TestFrameHeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, opDecrypt, []byte("abc")); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	raw := buf.Bytes()
	if raw[0] != 1 {
		t.Fatalf("opcode byte = %d, want 1", raw[0])
	}
	if length := binary.BigEndian.Uint32(raw[1:5]); length != 3 {
		t.Fatalf("length = %d, want 3", length)
	}
	if string(raw[5:]) != "abc" {
		t.Fatalf("payload = %q, want abc", raw[5:])
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var header [frameHeaderLength]byte
	binary.BigEndian.PutUint32(header[1:], maxPayloadLength+1)

	if _, _, err := readFrame(bytes.NewReader(header[:])); err == nil {
		t.Fatal("expected error for oversized payload length")
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, opEncrypt, []byte("full payload")); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	truncated := buf.Bytes()[:buf.Len()-4]
	if _, _, err := readFrame(bytes.NewReader(truncated)); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}
