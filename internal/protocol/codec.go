package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrFrameTooShort is returned for datagrams that cannot hold a header,
	// an origin tag and a checksum.
	ErrFrameTooShort = errors.New("frame too short")

	// ErrChecksumMismatch is returned when the trailing checksum byte does not
	// match the preceding bytes.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Checksum sums data byte-wise, folding any carry out of 16 bits back into the
// low end, and returns the low byte of the result.
func Checksum(data []byte) uint8 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
		if sum&0xFFFF0000 != 0 {
			sum &= 0xFFFF
			sum++
		}
	}
	return uint8(sum & 0xFF)
}

// Encode serializes a Frame into a datagram. The tag is zero-padded or
// truncated to TagSize bytes.
func Encode(f *Frame) []byte {
	size := Overhead + len(f.Payload)
	buf := make([]byte, size)
	buf[0] = f.Kind
	binary.BigEndian.PutUint32(buf[1:5], f.SeqNum)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(f.Payload)))
	copy(buf[HeaderSize:HeaderSize+TagSize], f.Tag)
	copy(buf[HeaderSize+TagSize:], f.Payload)
	buf[size-1] = Checksum(buf[:size-1])
	return buf
}

// PeekHeader reads the fixed header without verifying the checksum.
func PeekHeader(data []byte) (Header, error) {
	if len(data) < Overhead {
		return Header{}, fmt.Errorf("%w: %d bytes (need at least %d)", ErrFrameTooShort, len(data), Overhead)
	}
	return Header{
		Kind:       data[0],
		SeqNum:     binary.BigEndian.Uint32(data[1:5]),
		PayloadLen: binary.BigEndian.Uint32(data[5:9]),
	}, nil
}

// Verify reports whether the trailing checksum byte matches the frame body.
func Verify(data []byte) bool {
	if len(data) < ChecksumSize {
		return false
	}
	last := len(data) - 1
	return Checksum(data[:last]) == data[last]
}

// Decode verifies and deserializes a datagram into a Frame. A payload length
// field larger than the bytes present is clamped to what is present.
func Decode(data []byte) (*Frame, error) {
	hdr, err := PeekHeader(data)
	if err != nil {
		return nil, err
	}
	if !Verify(data) {
		return nil, ErrChecksumMismatch
	}

	body := data[HeaderSize+TagSize : len(data)-1]
	n := len(body)
	if uint64(hdr.PayloadLen) < uint64(n) {
		n = int(hdr.PayloadLen)
	}

	f := &Frame{
		Kind:       hdr.Kind,
		SeqNum:     hdr.SeqNum,
		PayloadLen: hdr.PayloadLen,
		Tag:        string(bytes.TrimRight(data[HeaderSize:HeaderSize+TagSize], "\x00")),
	}
	if n > 0 {
		f.Payload = make([]byte, n)
		copy(f.Payload, body[:n])
	}
	return f, nil
}
