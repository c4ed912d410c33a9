package network

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"sunsetdb/pkg/core"
	"sunsetdb/pkg/protocol"
	"sunsetdb/pkg/storage"
)

const DefaultRequestTimeout = 5 * time.Second

var ErrServerClosed = errors.New("network: server closed")

// TCPServer speaks the line protocol. Every connection gets its own goroutine
// which submits one command at a time and waits on that command's reply.
type TCPServer struct {
	engine  *core.Engine
	timeout time.Duration
	maxLine int

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewTCPServer(engine *core.Engine, timeout time.Duration, maxLine int) *TCPServer {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if maxLine <= 0 {
		maxLine = protocol.DefaultMaxLineSize
	}
	return &TCPServer{
		engine:  engine,
		timeout: timeout,
		maxLine: maxLine,
		conns:   make(map[net.Conn]struct{}),
	}
}

func (s *TCPServer) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts connections on l until Close is called.
func (s *TCPServer) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()
	log.Printf("[TCP] Listening on %s (Line Protocol)", l.Addr())

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Printf("[TCP] Accept error: %v", err)
				continue
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *TCPServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *TCPServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *TCPServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// Close stops accepting, drops open connections and waits for their
// goroutines to return.
func (s *TCPServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *TCPServer) handleConn(conn net.Conn) {
	id := uuid.NewString()[:8]
	log.Printf("[TCP] conn %s opened from %s", id, conn.RemoteAddr())
	defer log.Printf("[TCP] conn %s closed", id)

	r := protocol.NewReader(conn, s.maxLine)
	for {
		req, err := r.ReadRequest()
		if err != nil {
			if isFramingError(err) {
				if werr := writeError(conn, err.Error()); werr != nil {
					return
				}
				continue
			}
			if err != io.EOF && !s.isClosed() {
				log.Printf("[TCP] conn %s read error: %v", id, err)
			}
			return
		}

		resp := s.execute(req)
		if err := protocol.EncodeResponse(conn, resp); err != nil {
			if !errors.Is(err, protocol.ErrInvalidData) {
				return
			}
			// a value written over HTTP may hold the terminator
			if werr := writeError(conn, err.Error()); werr != nil {
				return
			}
		}
	}
}

func isFramingError(err error) bool {
	return errors.Is(err, protocol.ErrMalformed) ||
		errors.Is(err, protocol.ErrLineTooLong) ||
		errors.Is(err, protocol.ErrInvalidKey)
}

func writeError(w io.Writer, msg string) error {
	return protocol.EncodeResponse(w, &protocol.Response{Status: protocol.RespErr, Value: []byte(msg)})
}

// execute runs one request through the engine. If the reply does not arrive
// within the request timeout the client gets an error and the reply, when it
// comes, is left in its slot and dropped.
func (s *TCPServer) execute(req *protocol.Request) *protocol.Response {
	cmd := &core.Command{Key: req.Key}
	switch req.Op {
	case protocol.OpGet:
		cmd.Op = core.OpGet
	case protocol.OpPut:
		cmd.Op = core.OpPut
		cmd.Value = req.Value
	case protocol.OpDel:
		cmd.Op = core.OpDel
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	reply, err := s.engine.Submit(ctx, cmd)
	if err != nil {
		return errorResponse(err)
	}
	res, err := reply.Wait(ctx)
	switch {
	case err == nil && cmd.Op == core.OpGet:
		return &protocol.Response{Status: protocol.RespValue, Value: res.Value}
	case err == nil:
		return &protocol.Response{Status: protocol.RespOK}
	case errors.Is(err, storage.ErrKeyNotFound):
		return &protocol.Response{Status: protocol.RespNotFound}
	}
	return errorResponse(err)
}

func errorResponse(err error) *protocol.Response {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &protocol.Response{Status: protocol.RespErr, Value: []byte(msg)}
}
