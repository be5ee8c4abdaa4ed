package protocol

import (
	"encoding/binary"
	"math"
	"unicode/utf16"
)

const (
	// HeaderSize is the fixed wire header: payload size (u16 LE),
	// command byte, flag byte, four reserved zero bytes.
	HeaderSize = 8

	// MaxFrameSize caps header+payload. A declared size above this is a
	// corrupt stream, not a big packet.
	MaxFrameSize = 8192

	MaxPayloadSize = MaxFrameSize - HeaderSize
)

// Packet is one framed protocol message. Writes append to the payload,
// reads advance an independent cursor, so a handler can decode the inbound
// payload while building the response in another packet.
type Packet struct {
	Cmd     uint8
	Flag    uint8
	payload []byte
	cursor  int
}

func NewPacket(cmd uint8) *Packet {
	return &Packet{Cmd: cmd}
}

// NewExtPacket builds a packet from a 16-bit extended opcode
// (cmd | flag<<8).
func NewExtPacket(opcode uint16) *Packet {
	return &Packet{Cmd: uint8(opcode & 0xff), Flag: uint8(opcode >> 8)}
}

// Opcode combines cmd and flag into the extended 16-bit command space.
func (p *Packet) Opcode() uint16 {
	return uint16(p.Cmd) | uint16(p.Flag)<<8
}

func (p *Packet) Payload() []byte {
	return p.payload
}

func (p *Packet) PayloadLen() int {
	return len(p.payload)
}

// PeekSize reports the total frame length (header+payload) declared by the
// first two header bytes. It needs only those two bytes; with fewer it
// returns 0 and false.
func PeekSize(buf []byte) (int, bool) {
	if len(buf) < 2 {
		return 0, false
	}
	return int(binary.LittleEndian.Uint16(buf)) + HeaderSize, true
}

// Parse decodes one frame from the front of buf. It returns nil until buf
// holds the complete declared frame. The declared size is revalidated, never
// trusted: an oversized frame returns nil with ok=false so the caller can
// kill the stream.
func Parse(buf []byte) (pkt *Packet, ok bool) {
	if len(buf) < HeaderSize {
		return nil, true
	}
	size := int(binary.LittleEndian.Uint16(buf))
	if size > MaxPayloadSize {
		return nil, false
	}
	if len(buf) < HeaderSize+size {
		return nil, true
	}
	payload := make([]byte, size)
	copy(payload, buf[HeaderSize:HeaderSize+size])
	return &Packet{
		Cmd:     buf[2],
		Flag:    buf[3],
		payload: payload,
	}, true
}

// Serialize frames the packet. The size field is recomputed from the actual
// payload length; a stale caller-held size can never reach the wire.
func (p *Packet) Serialize() []byte {
	out := make([]byte, HeaderSize+len(p.payload))
	binary.LittleEndian.PutUint16(out, uint16(len(p.payload)))
	out[2] = p.Cmd
	out[3] = p.Flag
	copy(out[HeaderSize:], p.payload)
	return out
}

// --- payload writers, always append ---

func (p *Packet) WriteUint8(v uint8) {
	p.payload = append(p.payload, v)
}

func (p *Packet) WriteUint16(v uint16) {
	p.payload = binary.LittleEndian.AppendUint16(p.payload, v)
}

func (p *Packet) WriteUint32(v uint32) {
	p.payload = binary.LittleEndian.AppendUint32(p.payload, v)
}

func (p *Packet) WriteUint64(v uint64) {
	p.payload = binary.LittleEndian.AppendUint64(p.payload, v)
}

func (p *Packet) WriteInt32(v int32) {
	p.WriteUint32(uint32(v))
}

func (p *Packet) WriteFloat32(v float32) {
	p.WriteUint32(math.Float32bits(v))
}

func (p *Packet) WriteBytes(b []byte) {
	p.payload = append(p.payload, b...)
}

// WriteString appends a null-terminated 8-bit string.
func (p *Packet) WriteString(s string) {
	p.payload = append(p.payload, s...)
	p.payload = append(p.payload, 0)
}

// WriteWString appends a null-terminated UTF-16LE string.
func (p *Packet) WriteWString(s string) {
	for _, u := range utf16.Encode([]rune(s)) {
		p.payload = binary.LittleEndian.AppendUint16(p.payload, u)
	}
	p.payload = binary.LittleEndian.AppendUint16(p.payload, 0)
}

// --- payload readers, cursor-based ---
//
// Readers never advance past the payload end; on underrun they return the
// zero value so malformed client data decodes as zeroes instead of faulting.

func (p *Packet) Remaining() int {
	return len(p.payload) - p.cursor
}

func (p *Packet) ResetCursor() {
	p.cursor = 0
}

func (p *Packet) ReadUint8() uint8 {
	if p.Remaining() < 1 {
		return 0
	}
	v := p.payload[p.cursor]
	p.cursor++
	return v
}

func (p *Packet) ReadUint16() uint16 {
	if p.Remaining() < 2 {
		p.cursor = len(p.payload)
		return 0
	}
	v := binary.LittleEndian.Uint16(p.payload[p.cursor:])
	p.cursor += 2
	return v
}

func (p *Packet) ReadUint32() uint32 {
	if p.Remaining() < 4 {
		p.cursor = len(p.payload)
		return 0
	}
	v := binary.LittleEndian.Uint32(p.payload[p.cursor:])
	p.cursor += 4
	return v
}

func (p *Packet) ReadUint64() uint64 {
	if p.Remaining() < 8 {
		p.cursor = len(p.payload)
		return 0
	}
	v := binary.LittleEndian.Uint64(p.payload[p.cursor:])
	p.cursor += 8
	return v
}

func (p *Packet) ReadInt32() int32 {
	return int32(p.ReadUint32())
}

func (p *Packet) ReadFloat32() float32 {
	return math.Float32frombits(p.ReadUint32())
}

func (p *Packet) ReadBytes(n int) []byte {
	if n < 0 || p.Remaining() < n {
		p.cursor = len(p.payload)
		return nil
	}
	out := make([]byte, n)
	copy(out, p.payload[p.cursor:])
	p.cursor += n
	return out
}

// ReadString reads a null-terminated 8-bit string. A missing terminator
// consumes the rest of the payload.
func (p *Packet) ReadString() string {
	start := p.cursor
	for p.cursor < len(p.payload) {
		if p.payload[p.cursor] == 0 {
			s := string(p.payload[start:p.cursor])
			p.cursor++
			return s
		}
		p.cursor++
	}
	return string(p.payload[start:])
}

// ReadWString reads a null-terminated UTF-16LE string.
func (p *Packet) ReadWString() string {
	var units []uint16
	for p.Remaining() >= 2 {
		u := binary.LittleEndian.Uint16(p.payload[p.cursor:])
		p.cursor += 2
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	if len(units) == 0 {
		return ""
	}
	return string(utf16.Decode(units))
}
