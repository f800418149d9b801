package httpcall

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

type result struct {
	task    *Task
	code    int
	headers map[string]string
	body    []byte
}

// serve answers every connection with reply, returning the listener's
// host and port.
func serve(t *testing.T, reply string) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				// drain the request before replying
				buf := make([]byte, 4096)
				c.Read(buf)
				io.WriteString(c, reply)
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func await(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
		return result{}
	}
}

func newClientWithSink(t *testing.T) (*Client, <-chan result) {
	t.Helper()
	c := NewClient(nil)
	ch := make(chan result, 1)
	c.Register("cb", func(task *Task, code int, headers map[string]string, body []byte) {
		ch <- result{task, code, headers, body}
	})
	return c, ch
}

func TestGetSuccess(t *testing.T) {
	host, port := serve(t, "HTTP/1.1 200 OK\r\nServer: test\r\nContent-Length: 5\r\n\r\nhello")
	c, ch := newClientWithSink(t)

	task := NewTask("payload")
	c.Get(task, "cb", host, "/path", WithPort(port))

	r := await(t, ch)
	if r.code != 200 {
		t.Fatalf("code = %d, want 200", r.code)
	}
	if string(r.body) != "hello" {
		t.Fatalf("body = %q, want hello", r.body)
	}
	if r.headers["Server"] != "test" {
		t.Fatalf("headers = %v", r.headers)
	}
	if r.task != task || r.task.ID == "" {
		t.Fatal("task must round-trip with its id")
	}
}

func TestNon200ReportsCodeOnly(t *testing.T) {
	host, port := serve(t, "HTTP/1.1 404 Not Found\r\nContent-Length: 9\r\n\r\nnot found")
	c, ch := newClientWithSink(t)

	c.Get(NewTask(nil), "cb", host, "/", WithPort(port))

	r := await(t, ch)
	if r.code != 404 {
		t.Fatalf("code = %d, want 404", r.code)
	}
	if r.headers != nil || r.body != nil {
		t.Fatal("non-200 replies carry no headers or body")
	}
}

func TestMissingContentLengthIs450(t *testing.T) {
	host, port := serve(t, "HTTP/1.1 200 OK\r\nServer: test\r\n\r\nbody")
	c, ch := newClientWithSink(t)

	c.Get(NewTask(nil), "cb", host, "/", WithPort(port))

	if r := await(t, ch); r.code != CodeRequestFailed {
		t.Fatalf("code = %d, want %d", r.code, CodeRequestFailed)
	}
}

func TestGarbageReplyIs500(t *testing.T) {
	host, port := serve(t, "not http at all\r\n")
	c, ch := newClientWithSink(t)

	c.Get(NewTask(nil), "cb", host, "/", WithPort(port))

	if r := await(t, ch); r.code != CodeReadFailed {
		t.Fatalf("code = %d, want %d", r.code, CodeReadFailed)
	}
}

func TestTruncatedBodyIs500(t *testing.T) {
	host, port := serve(t, "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\nshort")
	c, ch := newClientWithSink(t)

	c.Get(NewTask(nil), "cb", host, "/", WithPort(port), WithTimeout(500*time.Millisecond))

	if r := await(t, ch); r.code != CodeReadFailed {
		t.Fatalf("code = %d, want %d", r.code, CodeReadFailed)
	}
}

func TestDNSFailureIs450(t *testing.T) {
	c, ch := newClientWithSink(t)

	c.Get(NewTask(nil), "cb", "nosuchhost.invalid", "/")

	r := await(t, ch)
	if r.code != CodeRequestFailed {
		t.Fatalf("code = %d, want %d", r.code, CodeRequestFailed)
	}
	if r.headers != nil || r.body != nil {
		t.Fatal("transport failures carry no headers or body")
	}
}

func TestConnectFailureIs450(t *testing.T) {
	// grab a port and close it again so nothing listens there
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c, ch := newClientWithSink(t)
	c.Get(NewTask(nil), "cb", "127.0.0.1", "/", WithPort(port))

	if r := await(t, ch); r.code != CodeRequestFailed {
		t.Fatalf("code = %d, want %d", r.code, CodeRequestFailed)
	}
}

func TestBuildRequestGet(t *testing.T) {
	req := &request{host: "example.org", path: "/q", port: 80}
	got := string(buildRequest(req))

	want := "GET /q HTTP/1.1\r\nConnection: close\r\nHost: example.org\r\n\r\n"
	if got != want {
		t.Fatalf("request = %q, want %q", got, want)
	}
}

func TestBuildRequestPostWithHeaders(t *testing.T) {
	req := &request{
		host:    "example.org",
		path:    "/submit",
		body:    []byte("a=1"),
		headers: map[string]string{"X-Two": "2", "X-One": "1"},
	}
	got := string(buildRequest(req))

	if !strings.HasPrefix(got, "POST /submit HTTP/1.1\r\n") {
		t.Fatalf("request = %q", got)
	}
	if !strings.Contains(got, "Content-Length: 3\r\n") {
		t.Fatal("POST must carry Content-Length")
	}
	// extra headers come in sorted order before the blank line
	if !strings.Contains(got, "X-One: 1\r\nX-Two: 2\r\n\r\na=1") {
		t.Fatalf("request = %q", got)
	}
}

func TestPostRoundTrip(t *testing.T) {
	host, port := serve(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
	c, ch := newClientWithSink(t)

	c.Post(NewTask(nil), "cb", host, "/p", []byte("data"), WithPort(port))

	r := await(t, ch)
	if r.code != 200 || !bytes.Equal(r.body, []byte("ok")) {
		t.Fatalf("code/body = %d/%q", r.code, r.body)
	}
}

func TestParseStatusLine(t *testing.T) {
	if code, err := parseStatusLine("HTTP/1.1 301 Moved Permanently"); err != nil || code != 301 {
		t.Fatalf("code/err = %d/%v", code, err)
	}
	for _, bad := range []string{"", "HTTP/1.1", "HTTP/1.1 abc", "FTP 200 OK", "HTTP/1.1 " + strconv.Itoa(9999)} {
		if _, err := parseStatusLine(bad); err == nil {
			t.Fatalf("parseStatusLine(%q) should fail", bad)
		}
	}
}
