package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"sunsetdb/pkg/protocol"
)

const dialTimeout = 5 * time.Second

var ErrNotFound = errors.New("client: key not found")

// ServerError is an "[error]" line sent back by the server.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string { return "server: " + e.Msg }

// Client is a single connection to a server. Requests are sent one at a
// time; it is safe for concurrent use but calls are serialized.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *protocol.Reader
	addr string
}

func Dial(addr string) (*Client, error) {
	c := &Client{addr: addr}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
	if err != nil {
		return err
	}
	c.conn = conn
	c.r = protocol.NewReader(conn, 0)
	return nil
}

func (c *Client) Put(key, value []byte) error {
	resp, err := c.do(&protocol.Request{Op: protocol.OpPut, Key: key, Value: value})
	if err != nil {
		return err
	}
	return expectOK(resp)
}

func (c *Client) Get(key []byte) ([]byte, error) {
	resp, err := c.do(&protocol.Request{Op: protocol.OpGet, Key: key})
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case protocol.RespValue:
		return resp.Value, nil
	case protocol.RespNotFound:
		return nil, ErrNotFound
	case protocol.RespErr:
		return nil, &ServerError{Msg: string(resp.Value)}
	}
	return nil, fmt.Errorf("client: unexpected response %s", resp.Status)
}

func (c *Client) Delete(key []byte) error {
	resp, err := c.do(&protocol.Request{Op: protocol.OpDel, Key: key})
	if err != nil {
		return err
	}
	return expectOK(resp)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

func expectOK(resp *protocol.Response) error {
	switch resp.Status {
	case protocol.RespOK:
		return nil
	case protocol.RespErr:
		return &ServerError{Msg: string(resp.Value)}
	}
	return fmt.Errorf("client: unexpected response %s", resp.Status)
}

// do sends req and reads its response. After a transport error the
// connection is redialed. The request is sent again only if none of its bytes
// reached the old connection; otherwise the server may already have applied
// it and a second copy could overwrite another client's later write.
func (c *Client) do(req *protocol.Request) (*protocol.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, sent, err := c.roundTrip(req)
	if err == nil {
		return resp, nil
	}
	c.conn.Close()
	if sent > 0 {
		// a failed redial leaves the closed conn; the next call dials again
		c.connect()
		return nil, fmt.Errorf("client: request may have been applied: %w", err)
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	resp, _, err = c.roundTrip(req)
	return resp, err
}

// roundTrip also reports how many request bytes were written.
func (c *Client) roundTrip(req *protocol.Request) (*protocol.Response, int, error) {
	w := &countingWriter{w: c.conn}
	if err := protocol.Encode(w, req); err != nil {
		return nil, w.n, err
	}
	resp, err := c.r.ReadResponse()
	return resp, w.n, err
}

type countingWriter struct {
	w io.Writer
	n int
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += n
	return n, err
}
