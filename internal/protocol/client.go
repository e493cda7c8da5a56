package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"minicorr/internal/telnet"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrInvalidCommand  = errors.New("invalid command code")
	ErrInvalidArgument = errors.New("invalid command argument")
)

// ErrorMarker prefixes every failure returned as text.
const ErrorMarker = "error: "

// NotConnected is returned by SendCommand when no session is live.
const NotConnected = ErrorMarker + "not connected"

const (
	defaultConnectTimeout     = 5 * time.Second
	defaultReplyTimeout       = 5 * time.Second
	defaultBannerChunkTimeout = 500 * time.Millisecond
	defaultDrainWindow        = 20 * time.Millisecond
)

// Transport is the framed stream a session runs on.
type Transport interface {
	ReadBanner(prompt byte, chunkTimeout, total time.Duration) ([]byte, error)
	ReadUntil(delim byte, timeout time.Duration) ([]byte, error)
	Write(b []byte, timeout time.Duration) error
	Discard(window time.Duration) int
	Close() error
}

// DialFunc opens a Transport to host:port.
type DialFunc func(ctx context.Context, host string, port int, timeout time.Duration) (Transport, error)

// Options tune timeouts. Zero values take defaults.
type Options struct {
	ConnectTimeout     time.Duration
	ReplyTimeout       time.Duration
	BannerChunkTimeout time.Duration
	// DrainWindow is how long the socket must stay quiet before a command is
	// written. Anything arriving meanwhile is stale and dropped.
	DrainWindow time.Duration
	Dial        DialFunc
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = defaultReplyTimeout
	}
	if o.BannerChunkTimeout <= 0 {
		o.BannerChunkTimeout = defaultBannerChunkTimeout
	}
	if o.DrainWindow <= 0 {
		o.DrainWindow = defaultDrainWindow
	}
	if o.Dial == nil {
		o.Dial = dialTCP
	}
	return o
}

func dialTCP(ctx context.Context, host string, port int, timeout time.Duration) (Transport, error) {
	return telnet.Dial(ctx, host, port, timeout)
}

type session struct {
	t    Transport
	host string
	port int
	// stale is set when a reply timed out; its prompt may still be in flight.
	stale bool
}

// Client owns the single device session. Each command's write and read run
// under mu, so replies from concurrent callers never interleave.
type Client struct {
	opts Options

	mu        sync.Mutex
	sess      *session
	connected atomic.Bool
}

func NewClient(opts Options) *Client {
	return &Client{opts: opts.withDefaults()}
}

// Connect opens a session and returns the welcome banner, or error text.
func (c *Client) Connect(ctx context.Context, host string, port int) string {
	welcome, err := c.Open(ctx, host, port)
	if err != nil {
		return ErrorText(err)
	}
	return welcome
}

// Open replaces any live session with a new one and returns the banner.
func (c *Client) Open(ctx context.Context, host string, port int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()

	t, err := c.opts.Dial(ctx, host, port, c.opts.ConnectTimeout)
	if err != nil {
		return "", err
	}

	banner, err := t.ReadBanner(telnet.Prompt, c.opts.BannerChunkTimeout, c.opts.ReplyTimeout)
	if err != nil {
		_ = t.Close()
		return "", err
	}

	c.sess = &session{t: t, host: host, port: port}
	c.connected.Store(true)
	return telnet.StripPrompt(string(banner), telnet.Prompt), nil
}

// SendCommand runs one command and returns the reply text. Failures come back
// as text starting with ErrorMarker.
func (c *Client) SendCommand(code Code, args ...string) string {
	resp, err := c.Do(context.Background(), NewCommand(code, args...))
	if err != nil {
		if errors.Is(err, telnet.ErrTimeout) && resp != "" {
			return resp
		}
		return ErrorText(err)
	}
	return resp
}

// Do runs cmd and returns the reply with the prompt stripped. On a reply
// timeout the partial text, if any, is returned along with telnet.ErrTimeout,
// and the next command first consumes the late reply up to its prompt.
// Anything else arriving before the write is dropped.
func (c *Client) Do(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.validate(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return "", ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t := c.sess.t
	timeout := c.replyTimeout(ctx)

	if c.sess.stale {
		if _, err := t.ReadUntil(telnet.Prompt, timeout); err != nil && !errors.Is(err, telnet.ErrTimeout) {
			c.teardownLocked()
			return "", err
		}
		c.sess.stale = false
	}
	t.Discard(c.opts.DrainWindow)
	if err := t.Write(cmd.Encode(), timeout); err != nil {
		c.teardownLocked()
		return "", err
	}

	b, err := t.ReadUntil(telnet.Prompt, timeout)
	text := telnet.StripPrompt(string(b), telnet.Prompt)
	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, telnet.ErrTimeout):
		c.sess.stale = true
		return text, err
	default:
		c.teardownLocked()
		return "", err
	}
}

// Disconnect waits for any in-flight command and closes the session.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Endpoint returns the address of the live session.
func (c *Client) Endpoint() (string, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return "", 0, false
	}
	return c.sess.host, c.sess.port, true
}

func (c *Client) teardownLocked() {
	if c.sess == nil {
		return
	}
	_ = c.sess.t.Close()
	c.sess = nil
	c.connected.Store(false)
}

func (c *Client) replyTimeout(ctx context.Context) time.Duration {
	timeout := c.opts.ReplyTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	return timeout
}

// ErrorText renders err the way SendCommand reports failures.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNotConnected) {
		return NotConnected
	}
	return fmt.Sprintf("%s%v", ErrorMarker, err)
}

// IsError reports whether a reply text is a failure produced by this package.
func IsError(text string) bool {
	return strings.HasPrefix(text, ErrorMarker)
}
