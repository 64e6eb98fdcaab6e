package miio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DeviceError is an "error" object returned by the device.
type DeviceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error %d: %s", e.Code, e.Message)
}

type request struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type response struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *DeviceError    `json:"error"`
}

// Client speaks the encrypted miio protocol with one device over UDP.
// It allows one exchange at a time.
type Client struct {
	address string
	token   []byte
	cipher  *Cipher
	timeout time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	conn      net.Conn
	deviceID  uint32
	stamp     uint32
	stampAt   time.Time
	messageID int
}

// NewClient creates a client. address is host or host:port.
func NewClient(address string, token []byte, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(DefaultPort))
	}
	suite, err := NewCipher(token)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		address: address,
		token:   append([]byte(nil), token...),
		cipher:  suite,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Address returns host:port of the device.
func (c *Client) Address() string {
	return c.address
}

// Close schließt die Verbindung
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.stampAt = time.Time{}
	return err
}

// Handshake sends a hello and records device id and stamp.
func (c *Client) Handshake(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshakeLocked(ctx)
}

func (c *Client) handshakeLocked(ctx context.Context) error {
	if c.conn == nil {
		d := net.Dialer{Timeout: c.timeout}
		conn, err := d.DialContext(ctx, "udp", c.address)
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}
		c.conn = conn
	}

	deadline := c.deadline(ctx)
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(HelloPacket()); err != nil {
		return fmt.Errorf("hello write failed: %w", err)
	}

	buf := make([]byte, 1024)
	n, err := c.conn.Read(buf)
	if err != nil {
		return fmt.Errorf("hello read failed: %w", err)
	}
	pkt, err := DecodePacket(buf[:n])
	if err != nil {
		return fmt.Errorf("hello decode failed: %w", err)
	}

	c.deviceID = pkt.DeviceID
	c.stamp = pkt.Stamp
	c.stampAt = time.Now()

	c.logger.Debug("Handshake completed",
		zap.String("address", c.address),
		zap.Uint32("device_id", c.deviceID),
		zap.Uint32("stamp", c.stamp))
	return nil
}

// Send executes one RPC call and returns the raw "result".
// A timeout triggers one fresh handshake and a retry.
func (c *Client) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if params == nil {
		params = []any{}
	}

	result, err := c.exchangeLocked(ctx, method, params)
	if err != nil && isTimeout(err) && ctx.Err() == nil {
		c.logger.Debug("Request timed out, retrying with new handshake",
			zap.String("method", method))
		c.closeLocked()
		result, err = c.exchangeLocked(ctx, method, params)
	}
	return result, err
}

func (c *Client) exchangeLocked(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.stampAt.IsZero() {
		if err := c.handshakeLocked(ctx); err != nil {
			return nil, err
		}
	}

	c.messageID++
	if c.messageID > 9999 {
		c.messageID = 1
	}
	id := c.messageID

	body, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	pkt := &Packet{
		DeviceID: c.deviceID,
		Stamp:    c.stamp + uint32(time.Since(c.stampAt).Seconds()),
		Data:     c.cipher.Encrypt(body),
	}

	// Timeout setzen
	deadline := c.deadline(ctx)
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(pkt.Encode(c.token)); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("read failed: %w", err)
		}

		reply, err := c.decodeReply(buf[:n])
		if err != nil {
			return nil, err
		}
		// Antworten auf ältere Requests verwerfen
		if reply.ID != id {
			c.logger.Debug("Discarding stale reply",
				zap.Int("expected_id", id),
				zap.Int("got_id", reply.ID))
			continue
		}
		if reply.Error != nil {
			return nil, reply.Error
		}
		return reply.Result, nil
	}
}

func (c *Client) decodeReply(data []byte) (*response, error) {
	pkt, err := DecodePacket(data)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}
	if err := pkt.Verify(data, c.token); err != nil {
		return nil, err
	}
	plain, err := c.cipher.Decrypt(pkt.Data)
	if err != nil {
		return nil, fmt.Errorf("decrypt failed: %w", err)
	}

	var reply response
	if err := json.Unmarshal(plain, &reply); err != nil {
		return nil, fmt.Errorf("invalid reply %q: %w", plain, err)
	}
	return &reply, nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
