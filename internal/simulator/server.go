package simulator

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

// Server exposes a Device over the line protocol: a banner ending in '>' on
// connect, then one "<reply>>" frame per request line.
type Server struct {
	dev *Device
	ln  net.Listener

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Listen binds addr (use "127.0.0.1:0" for an ephemeral port).
func Listen(addr string, dev *Device) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{dev: dev, ln: ln, conns: make(map[net.Conn]struct{})}, nil
}

// Addr returns host and port the server listens on.
func (s *Server) Addr() (string, int) {
	a := s.ln.Addr().(*net.TCPAddr)
	return a.IP.String(), a.Port
}

func (s *Server) Device() *Device { return s.dev }

// Serve accepts connections until ctx is canceled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		c, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.add(c) {
			_ = c.Close()
			return nil
		}
		go s.handle(c)
	}
}

// Close stops accepting, drops open sessions and waits for handlers.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) handle(c net.Conn) {
	defer s.wg.Done()
	defer s.remove(c)
	defer c.Close()

	if _, err := c.Write([]byte(s.dev.Banner() + ">")); err != nil {
		return
	}

	sc := bufio.NewScanner(c)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if d := s.dev.ReplyDelay(); d > 0 {
			time.Sleep(d)
		}
		reply := s.dev.Handle(line)
		if _, err := c.Write([]byte(reply + ">")); err != nil {
			return
		}
	}
}

// add registers c and its handler. It refuses once Close has run, so no
// handler starts after Close stops waiting.
func (s *Server) add(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) remove(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}
