// Package protocol defines the frame format exchanged between rdtcopy senders
// and receivers over UDP.
package protocol

// Frame kind constants. ACK frames reuse KindMeta with an empty payload.
const (
	KindData uint8 = 0x01 // file payload, SeqNum >= 1
	KindMeta uint8 = 0x02 // transfer announcement (SeqNum 0) or acknowledgment
)

const (
	// HeaderSize is the fixed header size: Kind(1) + SeqNum(4) + PayloadLen(4).
	HeaderSize = 9

	// TagSize is the length of the fixed ASCII origin tag following the header.
	TagSize = 7

	// ChecksumSize is the single trailing checksum byte.
	ChecksumSize = 1

	// Overhead is the number of bytes every frame spends outside its payload.
	Overhead = HeaderSize + TagSize + ChecksumSize

	// MaxFrameSize bounds the datagram buffers on both ends.
	MaxFrameSize = 32768
)

// DefaultTag identifies frames produced by this implementation.
const DefaultTag = "rdtcpy:"

// Frame represents one protocol frame transmitted in a single datagram.
type Frame struct {
	Kind       uint8  // KindData or KindMeta
	SeqNum     uint32 // 0 for META, >= 1 for DATA, acknowledged seq for ACK
	PayloadLen uint32 // as carried on the wire
	Tag        string // origin tag, at most TagSize bytes
	Payload    []byte
}

// Header is the part of a frame readable without checksum verification.
type Header struct {
	Kind       uint8
	SeqNum     uint32
	PayloadLen uint32
}

// NewMeta builds the META frame announcing the remote output path.
func NewMeta(tag, remotePath string) *Frame {
	return &Frame{
		Kind:       KindMeta,
		SeqNum:     0,
		PayloadLen: uint32(len(remotePath)),
		Tag:        tag,
		Payload:    []byte(remotePath),
	}
}

// NewData builds a DATA frame.
func NewData(tag string, seq uint32, payload []byte) *Frame {
	return &Frame{
		Kind:       KindData,
		SeqNum:     seq,
		PayloadLen: uint32(len(payload)),
		Tag:        tag,
		Payload:    payload,
	}
}

// NewAck builds the acknowledgment for seq.
func NewAck(tag string, seq uint32) *Frame {
	return &Frame{
		Kind:   KindMeta,
		SeqNum: seq,
		Tag:    tag,
	}
}

// KindName returns the audit name of a frame kind.
func KindName(kind uint8) string {
	switch kind {
	case KindData:
		return "DATA"
	case KindMeta:
		return "META"
	default:
		return "UNKNOWN"
	}
}
