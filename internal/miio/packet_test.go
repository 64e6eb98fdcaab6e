package miio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

var testToken = []byte("0123456789abcdef")

func TestHelloPacket(t *testing.T) {
	hello := HelloPacket()
	if len(hello) != headerSize {
		t.Fatalf("len = %d", len(hello))
	}
	if binary.BigEndian.Uint32(hello[0:4]) != 0x21310020 {
		t.Fatalf("prefix = %x", hello[0:4])
	}
	if !bytes.Equal(hello[4:], bytes.Repeat([]byte{0xff}, 28)) {
		t.Fatal("hello body must be 0xff")
	}
}

func TestPacketEncodeDecode(t *testing.T) {
	p := &Packet{DeviceID: 0x01020304, Stamp: 77, Data: []byte("0123456789abcdef")}
	frame := p.Encode(testToken)

	if binary.BigEndian.Uint16(frame[2:4]) != uint16(len(frame)) {
		t.Fatal("length field does not match frame size")
	}

	got, err := DecodePacket(frame)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeviceID != p.DeviceID || got.Stamp != 77 || !bytes.Equal(got.Data, p.Data) {
		t.Fatalf("decoded %+v", got)
	}
	if err := got.Verify(frame, testToken); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := got.Verify(frame, []byte("wrong-token-0000")); err == nil {
		t.Fatal("Verify accepted a wrong token")
	}
}

func TestDecodePacketRejectsGarbage(t *testing.T) {
	if _, err := DecodePacket([]byte{0x21, 0x31}); err == nil {
		t.Fatal("short packet accepted")
	}
	bad := HelloPacket()
	bad[0] = 0x00
	if _, err := DecodePacket(bad); err == nil {
		t.Fatal("bad magic accepted")
	}
	trunc := (&Packet{Data: []byte("0123456789abcdef")}).Encode(testToken)
	if _, err := DecodePacket(trunc[:40]); err == nil {
		t.Fatal("truncated packet accepted")
	}
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testToken)
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range []string{"", "x", `{"id":1,"method":"get_prop","params":["all"]}`, "0123456789abcdef"} {
		enc := c.Encrypt([]byte(msg))
		if len(enc)%16 != 0 || len(enc) == 0 {
			t.Fatalf("ciphertext length %d", len(enc))
		}
		dec, err := c.Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", msg, err)
		}
		if string(dec) != msg {
			t.Fatalf("round trip %q -> %q", msg, dec)
		}
	}
	if _, err := c.Decrypt([]byte("short")); err == nil {
		t.Fatal("Decrypt accepted misaligned input")
	}
}

func TestParseToken(t *testing.T) {
	if _, err := ParseToken("00112233445566778899aabbccddeeff"); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"", "0011", "zz112233445566778899aabbccddeeff"} {
		if _, err := ParseToken(bad); err == nil {
			t.Fatalf("ParseToken(%q) accepted", bad)
		}
	}
}
