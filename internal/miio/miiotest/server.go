// Package miiotest runs a fake miio device on a loopback UDP socket.
package miiotest

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/KevinKickass/OpenWalkingPad/internal/miio"
)

// Token is the hex token the fake device accepts.
const Token = "00112233445566778899aabbccddeeff"

const (
	DeviceID = 0x0badcafe
	Stamp    = 1000
)

// Handler answers one RPC call. Returning a non-nil DeviceError sends an error reply.
type Handler func(method string, params json.RawMessage) (any, *miio.DeviceError)

// Call is one received RPC request.
type Call struct {
	Method string
	Params json.RawMessage
}

type Server struct {
	conn   *net.UDPConn
	token  []byte
	cipher *miio.Cipher

	mu      sync.Mutex
	handler Handler
	calls   []Call
	drop    int
	hellos  int
	done    chan struct{}
}

// NewServer starts the fake device and stops it on test cleanup.
func NewServer(t testing.TB, handler Handler) *Server {
	t.Helper()

	token, err := miio.ParseToken(Token)
	if err != nil {
		t.Fatal(err)
	}
	c, err := miio.NewCipher(token)
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}

	s := &Server{
		conn:    conn,
		token:   token,
		cipher:  c,
		handler: handler,
		done:    make(chan struct{}),
	}
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Addr returns host:port of the fake device.
func (s *Server) Addr() string {
	return s.conn.LocalAddr().String()
}

func (s *Server) Close() {
	s.conn.Close()
	<-s.done
}

// SetHandler swaps the RPC handler.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// DropNext ignores the next n RPC requests, simulating packet loss.
func (s *Server) DropNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop = n
}

func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Methods returns the method names received so far.
func (s *Server) Methods() []string {
	var out []string
	for _, c := range s.Calls() {
		out = append(out, c.Method)
	}
	return out
}

func (s *Server) Hellos() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hellos
}

func (s *Server) serve() {
	defer close(s.done)
	buf := make([]byte, 4096)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		s.handle(buf[:n], addr)
	}
}

func (s *Server) handle(data []byte, addr *net.UDPAddr) {
	pkt, err := miio.DecodePacket(data)
	if err != nil {
		return
	}

	if len(pkt.Data) == 0 {
		s.mu.Lock()
		s.hellos++
		s.mu.Unlock()

		reply := miio.HelloPacket()
		binary.BigEndian.PutUint32(reply[4:8], 0)
		binary.BigEndian.PutUint32(reply[8:12], DeviceID)
		binary.BigEndian.PutUint32(reply[12:16], Stamp)
		s.conn.WriteToUDP(reply, addr)
		return
	}

	if pkt.Verify(data, s.token) != nil {
		return
	}
	plain, err := s.cipher.Decrypt(pkt.Data)
	if err != nil {
		return
	}
	var req struct {
		ID     int             `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(plain, &req); err != nil {
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: req.Method, Params: req.Params})
	if s.drop > 0 {
		s.drop--
		s.mu.Unlock()
		return
	}
	handler := s.handler
	s.mu.Unlock()

	body := map[string]any{"id": req.ID}
	result, devErr := handler(req.Method, req.Params)
	if devErr != nil {
		body["error"] = devErr
	} else {
		body["result"] = result
	}
	payload, _ := json.Marshal(body)

	out := &miio.Packet{DeviceID: DeviceID, Stamp: Stamp, Data: s.cipher.Encrypt(payload)}
	s.conn.WriteToUDP(out.Encode(s.token), addr)
}

// OK is a handler that answers every call with ["ok"].
func OK(string, json.RawMessage) (any, *miio.DeviceError) {
	return []string{"ok"}, nil
}
