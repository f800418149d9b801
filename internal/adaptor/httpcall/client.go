// Package httpcall is the asynchronous HTTP adaptor exposed to the
// embedded scripting host.
//
// A request names its callback; the adaptor resolves the host, opens a
// TCP connection, writes a minimal HTTP/1.1 request, parses the reply
// line by line, and invokes the callback with the outcome. Transport
// failures surface as synthetic status codes instead of errors:
// 450 for resolve/connect/write problems and a 200 reply without a
// Content-Length, 500 for read and timeout problems.
package httpcall

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Synthetic status codes reported for transport failures.
const (
	CodeRequestFailed = 450
	CodeReadFailed    = 500
)

// Defaults applied when an option is not given.
const (
	DefaultPort    = 80
	DefaultTimeout = 1000 * time.Millisecond
)

// Task is the opaque context handed back to the callback, identified
// by a ULID for log correlation.
type Task struct {
	ID      string
	Payload any
}

// NewTask creates a task around an arbitrary payload.
func NewTask(payload any) *Task {
	return &Task{
		ID:      ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()).String(),
		Payload: payload,
	}
}

// Callback receives the reply: the server's status code or a synthetic
// one, the response headers, and the body. headers and body are nil on
// every non-200 outcome.
type Callback func(task *Task, code int, headers map[string]string, body []byte)

// Option adjusts a single request.
type Option func(*request)

// WithHeaders adds extra request headers.
func WithHeaders(h map[string]string) Option {
	return func(r *request) { r.headers = h }
}

// WithPort overrides the destination port.
func WithPort(port int) Option {
	return func(r *request) { r.port = port }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *request) { r.timeout = d }
}

type request struct {
	host    string
	path    string
	body    []byte
	headers map[string]string
	port    int
	timeout time.Duration
}

// Client issues asynchronous requests and dispatches named callbacks.
type Client struct {
	mu        sync.RWMutex
	callbacks map[string]Callback

	resolver *net.Resolver
	dialer   net.Dialer
	log      *slog.Logger
}

// NewClient creates a client. log may be nil.
func NewClient(log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		callbacks: make(map[string]Callback),
		resolver:  net.DefaultResolver,
		log:       log,
	}
}

// Register binds a callback name. Re-registering replaces the binding.
func (c *Client) Register(name string, cb Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[name] = cb
}

// Get issues an asynchronous GET request.
func (c *Client) Get(task *Task, callback, host, path string, opts ...Option) {
	c.start(task, callback, host, path, nil, opts)
}

// Post issues an asynchronous POST request carrying body.
func (c *Client) Post(task *Task, callback, host, path string, body []byte, opts ...Option) {
	c.start(task, callback, host, path, body, opts)
}

func (c *Client) start(task *Task, callback, host, path string, body []byte, opts []Option) {
	req := &request{
		host:    host,
		path:    path,
		body:    body,
		port:    DefaultPort,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(req)
	}
	go c.run(task, callback, req)
}

func (c *Client) run(task *Task, callback string, req *request) {
	code, headers, body := c.exchange(task, req)
	c.dispatch(task, callback, code, headers, body)
}

func (c *Client) dispatch(task *Task, callback string, code int, headers map[string]string, body []byte) {
	c.mu.RLock()
	cb, ok := c.callbacks[callback]
	c.mu.RUnlock()
	if !ok {
		c.log.Warn("no such callback", "callback", callback, "task", task.ID)
		return
	}
	cb(task, code, headers, body)
}

// exchange performs the whole request; the returned headers and body
// are non-nil only for a well-formed 200 reply.
func (c *Client) exchange(task *Task, req *request) (int, map[string]string, []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), req.timeout)
	defer cancel()

	addrs, err := c.resolver.LookupIP(ctx, "ip4", req.host)
	if err != nil || len(addrs) == 0 {
		c.log.Info("resolve failed", "task", task.ID, "host", req.host, "error", err)
		return CodeRequestFailed, nil, nil
	}
	addr := addrs[rand.Intn(len(addrs))]

	conn, err := c.dialer.DialContext(ctx, "tcp",
		net.JoinHostPort(addr.String(), strconv.Itoa(req.port)))
	if err != nil {
		c.log.Info("connect failed", "task", task.ID, "host", req.host, "error", err)
		return CodeRequestFailed, nil, nil
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(req.timeout))

	if _, err := conn.Write(buildRequest(req)); err != nil {
		c.log.Info("write failed", "task", task.ID, "host", req.host, "error", err)
		return CodeRequestFailed, nil, nil
	}

	code, headers, body, err := parseReply(conn)
	if err != nil {
		c.log.Info("read failed", "task", task.ID, "host", req.host,
			"code", code, "error", err)
		return code, nil, nil
	}
	return code, headers, body
}

// buildRequest renders the wire form of the request.
func buildRequest(req *request) []byte {
	method := "GET"
	if req.body != nil {
		method = "POST"
	}
	buf := make([]byte, 0, 256+len(req.body))
	buf = fmt.Appendf(buf, "%s %s HTTP/1.1\r\nConnection: close\r\nHost: %s\r\n",
		method, req.path, req.host)
	if len(req.body) > 0 {
		buf = fmt.Appendf(buf, "Content-Length: %d\r\n", len(req.body))
	}
	// deterministic header order keeps the output testable
	names := make([]string, 0, len(req.headers))
	for name := range req.headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		buf = fmt.Appendf(buf, "%s: %s\r\n", name, req.headers[name])
	}
	buf = append(buf, '\r', '\n')
	buf = append(buf, req.body...)
	return buf
}
