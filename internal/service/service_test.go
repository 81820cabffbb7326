package service

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/imagefeed/internal/events"
	"github.com/and161185/imagefeed/internal/httpclient"
	"github.com/and161185/imagefeed/internal/loop"
	"github.com/and161185/imagefeed/internal/tokenstore"
)

// reply is one scripted response. When gate is set the response is held until
// the gate is closed.
type reply struct {
	status int
	body   string
	gate   chan struct{}
}

func ok(body string) reply { return reply{status: http.StatusOK, body: body} }

// scriptDoer answers requests from per-route queues. The last reply of a
// route repeats. It ignores the request context, like a transport that
// cannot be interrupted.
type scriptDoer struct {
	mu     sync.Mutex
	routes map[string][]reply
	seen   []*http.Request
}

func newScriptDoer() *scriptDoer { return &scriptDoer{routes: map[string][]reply{}} }

func (d *scriptDoer) on(method, path string, rs ...reply) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes[method+" "+path] = append(d.routes[method+" "+path], rs...)
}

func (d *scriptDoer) Do(req *http.Request) (*http.Response, error) {
	key := req.Method + " " + req.URL.Path

	d.mu.Lock()
	d.seen = append(d.seen, req)
	r := reply{status: http.StatusNotFound, body: `{"errors":["Couldn't find route"]}`}
	if q := d.routes[key]; len(q) > 0 {
		r = q[0]
		if len(q) > 1 {
			d.routes[key] = q[1:]
		}
	}
	d.mu.Unlock()

	if r.gate != nil {
		<-r.gate
	}
	return &http.Response{
		StatusCode: r.status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Request:    req,
	}, nil
}

func (d *scriptDoer) requests() []*http.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*http.Request(nil), d.seen...)
}

func (d *scriptDoer) count(method, path string) int {
	n := 0
	for _, r := range d.requests() {
		if r.Method == method && r.URL.Path == path {
			n++
		}
	}
	return n
}

type harness struct {
	loop   *loop.Loop
	doer   *scriptDoer
	client *httpclient.Client
	tokens *tokenstore.Store
	bus    *events.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := loop.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})

	h := &harness{loop: l, doer: newScriptDoer(), tokens: tokenstore.New(nil, nil), bus: events.NewBus()}
	c, err := httpclient.New("https://api.example.test", h.tokens, l, httpclient.WithDoer(h.doer))
	require.NoError(t, err)
	h.client = c
	return h
}

// settle waits until everything posted so far has run and every request
// started by it has been delivered.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, h.loop.Flush(ctx))
	h.client.Wait()
	require.NoError(t, h.loop.Flush(ctx))
}

// onLoopSync runs fn on the loop and waits for it.
func (h *harness) onLoopSync(t *testing.T, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, h.loop.Call(ctx, fn))
}

// recorder collects callback invocations.
type recorder[T any] struct {
	mu    sync.Mutex
	calls []result[T]
}

type result[T any] struct {
	v   T
	err error
}

func (r *recorder[T]) fn(v T, err error) {
	r.mu.Lock()
	r.calls = append(r.calls, result[T]{v, err})
	r.mu.Unlock()
}

func (r *recorder[T]) all() []result[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]result[T](nil), r.calls...)
}

func (r *recorder[T]) only(t *testing.T) result[T] {
	t.Helper()
	got := r.all()
	require.Len(t, got, 1)
	return got[0]
}

func TestOnLoop_StoppedLoopFailsOnCaller(t *testing.T) {
	l := loop.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = l.Run(ctx)

	var got error
	onLoop(l, func() { t.Fatal("must not run") }, func(err error) { got = err })
	require.Error(t, got)
}
