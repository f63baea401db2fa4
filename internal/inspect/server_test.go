package inspect

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/refs/internal/errors"
	"github.com/vango-dev/refs/pkg/loop"
	"github.com/vango-dev/refs/pkg/refs"
)

type fixture struct {
	clock  *loop.Manual
	count  *refs.Ref[int]
	name   *refs.Ref[string]
	server *Server
	ts     *httptest.Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	rt, clock := newRuntime(t)
	f := &fixture{
		clock: clock,
		count: refs.NewRef(1, refs.WithRuntime(rt), refs.WithName("count")),
		name:  refs.NewRef("ada", refs.WithRuntime(rt), refs.WithName("name")),
	}

	reg := NewRegistry()
	MustRegister(reg, "count", f.count)
	MustRegister(reg, "name", f.name)

	base := []Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	f.server = New(reg, append(base, opts...)...)
	f.ts = httptest.NewServer(f.server.Handler())
	t.Cleanup(func() {
		f.server.CloseWatchers()
		f.ts.Close()
	})
	return f
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/watch" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestServer_ListRefs(t *testing.T) {
	f := newFixture(t)
	f.count.Set(5)

	resp, body := f.get(t, "/refs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snaps []Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snaps))
	require.Len(t, snaps, 2)
	assert.Equal(t, "count", snaps[0].Name)
	assert.EqualValues(t, 5, snaps[0].Value)
	assert.Equal(t, "name", snaps[1].Name)
	assert.Equal(t, "ada", snaps[1].Value)
}

func TestServer_GetRef(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/refs/name")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	assert.Equal(t, "ref", snap.Kind)
	assert.Equal(t, "ada", snap.Value)

	resp, body = f.get(t, "/refs/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, `"name":"missing"`)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, WithRegistry(reg))

	resp, body := f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "inspect_watchers 0")
}

func TestServer_WatchStreamsChanges(t *testing.T) {
	f := newFixture(t, WithRegistry(prometheus.NewRegistry()))
	conn := f.dial(t, "?ref=count")

	hello := readMessage(t, conn)
	assert.Equal(t, MessageHello, hello.Type)
	assert.NotEmpty(t, hello.Watcher)
	require.Len(t, hello.Refs, 1)
	assert.Equal(t, "count", hello.Refs[0].Name)
	assert.EqualValues(t, 1, hello.Refs[0].Value)
	assert.Equal(t, 1, f.server.Watchers())

	f.count.Set(2)
	f.count.Set(3)
	f.name.Set("grace")
	f.clock.Flush()

	change := readMessage(t, conn)
	assert.Equal(t, MessageChange, change.Type)
	assert.Equal(t, "count", change.Ref)
	assert.EqualValues(t, 1, change.Seq)
	assert.EqualValues(t, 3, change.Value)

	f.count.Set(4)
	f.clock.Flush()
	change = readMessage(t, conn)
	assert.EqualValues(t, 2, change.Seq)
	assert.EqualValues(t, 4, change.Value)
}

func TestServer_WatchAllByDefault(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "")

	hello := readMessage(t, conn)
	require.Len(t, hello.Refs, 2)

	f.name.Set("grace")
	f.clock.Flush()

	change := readMessage(t, conn)
	assert.Equal(t, "name", change.Ref)
	assert.Equal(t, "grace", change.Value)
}

func TestServer_WatchUnknownRef(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/watch?ref=missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_WatcherIDsAreUnique(t *testing.T) {
	f := newFixture(t)
	a := readMessage(t, f.dial(t, ""))
	b := readMessage(t, f.dial(t, ""))
	assert.NotEqual(t, a.Watcher, b.Watcher)
}

func TestServer_CloseWatchers(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "")
	readMessage(t, conn)

	f.server.CloseWatchers()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.Eventually(t, func() bool { return f.server.Watchers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_Heartbeat(t *testing.T) {
	f := newFixture(t, WithHeartbeat(20*time.Millisecond))
	conn := f.dial(t, "")
	readMessage(t, conn)

	pings := make(chan struct{}, 4)
	conn.SetPingHandler(func(data string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat ping received")
	}
}

func TestServer_StreamFailureIsCoded(t *testing.T) {
	var logs bytes.Buffer
	metrics := prometheus.NewRegistry()
	s := New(NewRegistry(),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithRegistry(metrics))
	w := &watcher{id: "w1", logger: s.logger.With("watcher", "w1"), done: make(chan struct{})}

	coded := s.streamFailed(w, "write", io.ErrClosedPipe)
	assert.True(t, errors.Is(coded, "R302"))
	assert.ErrorIs(t, coded, io.ErrClosedPipe)
	assert.Contains(t, logs.String(), "R302: Watch stream failed: write: io: read/write on closed pipe")

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "inspect_stream_failures_total 1")
}
