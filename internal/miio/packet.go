package miio

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
)

const (
	magic      = 0x2131
	headerSize = 32

	// DefaultPort is the UDP port miio devices listen on.
	DefaultPort = 54321
)

// Packet is one miio datagram: 32 byte header plus encrypted payload.
type Packet struct {
	Length   uint16   // 2 Bytes - Gesamtlänge inkl. Header
	Unknown  uint32   // 4 Bytes - 0 bei Requests, 0xFFFFFFFF beim Hello
	DeviceID uint32   // 4 Bytes
	Stamp    uint32   // 4 Bytes - Sekunden seit Gerätestart
	Checksum [16]byte // MD5 oder Token beim Hello
	Data     []byte   // verschlüsselt
}

// HelloPacket returns the discovery/handshake datagram.
func HelloPacket() []byte {
	frame := bytes.Repeat([]byte{0xff}, headerSize)
	binary.BigEndian.PutUint16(frame[0:2], magic)
	binary.BigEndian.PutUint16(frame[2:4], headerSize)
	return frame
}

// Encode baut das komplette Datagramm und setzt die Prüfsumme.
func (p *Packet) Encode(token []byte) []byte {
	p.Length = uint16(headerSize + len(p.Data))

	frame := make([]byte, headerSize+len(p.Data))
	binary.BigEndian.PutUint16(frame[0:2], magic)
	binary.BigEndian.PutUint16(frame[2:4], p.Length)
	binary.BigEndian.PutUint32(frame[4:8], p.Unknown)
	binary.BigEndian.PutUint32(frame[8:12], p.DeviceID)
	binary.BigEndian.PutUint32(frame[12:16], p.Stamp)
	copy(frame[headerSize:], p.Data)

	p.Checksum = checksum(frame[:16], token, p.Data)
	copy(frame[16:32], p.Checksum[:])

	return frame
}

// DecodePacket parst ein empfangenes Datagramm ohne die Prüfsumme zu prüfen.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("packet too short: %d bytes", len(data))
	}
	if m := binary.BigEndian.Uint16(data[0:2]); m != magic {
		return nil, fmt.Errorf("invalid magic: 0x%04x", m)
	}

	p := &Packet{
		Length:   binary.BigEndian.Uint16(data[2:4]),
		Unknown:  binary.BigEndian.Uint32(data[4:8]),
		DeviceID: binary.BigEndian.Uint32(data[8:12]),
		Stamp:    binary.BigEndian.Uint32(data[12:16]),
	}
	copy(p.Checksum[:], data[16:32])

	if int(p.Length) != len(data) {
		return nil, fmt.Errorf("length mismatch: header %d, got %d bytes", p.Length, len(data))
	}
	p.Data = append([]byte(nil), data[headerSize:]...)

	return p, nil
}

// Verify checks the checksum of a decoded packet.
func (p *Packet) Verify(header []byte, token []byte) error {
	if len(p.Data) == 0 {
		return nil
	}
	want := checksum(header[:16], token, p.Data)
	if want != p.Checksum {
		return fmt.Errorf("checksum mismatch")
	}
	return nil
}

func checksum(header16, token, data []byte) [16]byte {
	h := md5.New()
	h.Write(header16)
	h.Write(token)
	h.Write(data)
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
