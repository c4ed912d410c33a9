package client

import (
	"bufio"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"sunsetdb/pkg/core"
	"sunsetdb/pkg/network"
	"sunsetdb/pkg/protocol"
	"sunsetdb/pkg/storage"
)

func TestDialInvalidAddr(t *testing.T) {
	_, err := Dial("invalid:invalid:invalid")
	if err == nil {
		t.Fatal("expected error for invalid address")
	}
}

func TestDialUnreachable(t *testing.T) {
	// Connect to non-routable IP (RFC 5737) - expect error
	_, err := Dial("192.0.2.1:9999")
	if err == nil {
		t.Skip("connection unexpectedly succeeded (e.g. in sandbox)")
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sunset.db")
	if err := storage.CreateLogFile(path); err != nil {
		t.Fatalf("create log: %v", err)
	}
	store, err := storage.Open(path, storage.DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	engine := core.NewEngine(store, 16)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := network.NewTCPServer(engine, time.Second, 0)
	go srv.Serve(l)
	t.Cleanup(func() {
		srv.Close()
		engine.Close()
	})
	return l.Addr().String()
}

func TestClientPutGetDelete(t *testing.T) {
	cli, err := Dial(startServer(t))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cli.Close()

	if _, err := cli.Get([]byte("a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := cli.Put([]byte("a"), []byte("value with spaces")); err != nil {
		t.Fatalf("put: %v", err)
	}
	val, err := cli.Get([]byte("a"))
	if err != nil || string(val) != "value with spaces" {
		t.Fatalf("get: %q %v", val, err)
	}
	if err := cli.Put([]byte("a"), []byte("2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if val, _ := cli.Get([]byte("a")); string(val) != "2" {
		t.Fatalf("last write should win, got %q", val)
	}
	if err := cli.Delete([]byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cli.Get([]byte("a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestClientRejectsBadKeyLocally(t *testing.T) {
	cli, err := Dial(startServer(t))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cli.Close()

	if err := cli.Put([]byte("has space"), []byte("v")); !errors.Is(err, protocol.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := cli.Get(nil); !errors.Is(err, protocol.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestClientDoesNotResendDeliveredRequest(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	lines := make(chan string, 4)
	go func() {
		// the first connection is dropped after reading one request
		conn, err := l.Accept()
		if err != nil {
			return
		}
		line, _ := bufio.NewReader(conn).ReadString('\n')
		lines <- line
		conn.Close()

		conn, err = l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
			conn.Write([]byte("[ok]\r\n"))
		}
	}()

	cli, err := Dial(l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cli.Close()

	if err := cli.Put([]byte("k1"), []byte("v")); err == nil {
		t.Fatal("expected error when the response is lost")
	}
	if err := cli.Put([]byte("k2"), []byte("v")); err != nil {
		t.Fatalf("put on redialed connection: %v", err)
	}

	want := []string{"[put] k1 v\r\n", "[put] k2 v\r\n"}
	for _, w := range want {
		select {
		case got := <-lines:
			if got != w {
				t.Fatalf("server got %q, want %q", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("server never got %q", w)
		}
	}
	select {
	case extra := <-lines:
		t.Fatalf("request sent twice: %q", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientResendsUnsentRequest(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	go func() {
		first, err := l.Accept()
		if err != nil {
			return
		}
		defer first.Close()

		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte("[ok]\r\n"))
	}()

	cli, err := Dial(l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cli.Close()

	// nothing can be written to a closed conn, so the request is safe to send again
	cli.conn.Close()
	if err := cli.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put after reconnect: %v", err)
	}
}

func TestClientServerError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte("[error] storage: broken\r\n"))
	}()

	cli, err := Dial(l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cli.Close()

	err = cli.Put([]byte("k"), []byte("v"))
	var se *ServerError
	if !errors.As(err, &se) || se.Msg != "storage: broken" {
		t.Fatalf("expected ServerError, got %v", err)
	}
}
