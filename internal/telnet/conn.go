package telnet

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport errors. Callers match them with errors.Is.
var (
	ErrConnect = errors.New("connect failed")
	ErrTimeout = errors.New("timeout waiting for prompt")
	ErrClosed  = errors.New("connection closed")
	ErrWrite   = errors.New("write failed")
)

// Prompt is the byte the device appends to every frame.
const Prompt = '>'

const (
	defaultBannerChunkTimeout = 500 * time.Millisecond
	defaultBannerTotal        = 5 * time.Second
	maxBannerBytes            = 64 << 10
)

// Conn is a framed view of one TCP session with the device.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial opens a TCP stream to host:port, bounded by connectTimeout.
func Dial(ctx context.Context, host string, port int, connectTimeout time.Duration) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var d net.Dialer
	c, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, err)
	}
	return NewConn(c), nil
}

// NewConn wraps an established connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{conn: c, r: bufio.NewReader(c)}
}

// ReadBanner accumulates newline-delimited chunks, each bounded by chunkTimeout,
// until the text ends with prompt or a read yields nothing. total caps the whole
// exchange.
func (c *Conn) ReadBanner(prompt byte, chunkTimeout, total time.Duration) ([]byte, error) {
	if chunkTimeout <= 0 {
		chunkTimeout = defaultBannerChunkTimeout
	}
	if total <= 0 {
		total = defaultBannerTotal
	}
	giveUp := time.Now().Add(total)

	var acc bytes.Buffer
	for acc.Len() < maxBannerBytes {
		deadline := time.Now().Add(chunkTimeout)
		if deadline.After(giveUp) {
			deadline = giveUp
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return acc.Bytes(), fmt.Errorf("%w: %w", ErrClosed, err)
		}

		chunk, err := c.r.ReadBytes('\n')
		acc.Write(chunk)

		if endsWithPrompt(acc.Bytes(), prompt) {
			return acc.Bytes(), nil
		}
		if len(chunk) == 0 || err != nil {
			if err != nil && !isTimeout(err) {
				return acc.Bytes(), fmt.Errorf("%w: %w", ErrClosed, err)
			}
			if len(chunk) == 0 || !time.Now().Before(giveUp) {
				return acc.Bytes(), nil
			}
		}
	}
	return acc.Bytes(), nil
}

// ReadUntil reads up to and including delim. When the deadline passes first the
// partial bytes are returned with ErrTimeout.
func (c *Conn) ReadUntil(delim byte, timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClosed, err)
	}
	b, err := c.r.ReadBytes(delim)
	switch {
	case err == nil:
		return b, nil
	case isTimeout(err):
		return b, ErrTimeout
	default:
		return b, fmt.Errorf("%w: %w", ErrClosed, err)
	}
}

// Write sends b, bounded by timeout.
func (c *Conn) Write(b []byte, timeout time.Duration) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if _, err := c.conn.Write(b); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// Discard drops buffered bytes and anything that keeps arriving on the socket
// until a read waits window without data. The read deadline is cleared after.
func (c *Conn) Discard(window time.Duration) int {
	n, _ := c.r.Discard(c.r.Buffered())
	if window <= 0 {
		return n
	}
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, 512)
	for n < maxBannerBytes {
		if err := c.conn.SetReadDeadline(time.Now().Add(window)); err != nil {
			return n
		}
		m, err := c.conn.Read(buf)
		n += m
		if err != nil {
			return n
		}
	}
	return n
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// StripPrompt trims whitespace and removes exactly one trailing prompt if present.
// Text without the prompt (a timed-out read) is returned trimmed but otherwise as is.
func StripPrompt(text string, prompt byte) string {
	s := strings.TrimSpace(text)
	if strings.HasSuffix(s, string(prompt)) {
		s = strings.TrimSpace(s[:len(s)-1])
	}
	return s
}

func endsWithPrompt(b []byte, prompt byte) bool {
	b = bytes.TrimRight(b, " \t\r\n")
	return len(b) > 0 && b[len(b)-1] == prompt
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout() && !errors.Is(err, io.EOF)
}
