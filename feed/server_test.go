package feed

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"liquidfield/metrics"
)

type event struct {
	kind string
	a, b float64
}

type chanSink chan event

func (c chanSink) PointerMoved(x, y float64) { c <- event{"pointer", x, y} }
func (c chanSink) Resized(w, h int)           { c <- event{"resize", float64(w), float64(h)} }

func next(t *testing.T, c chanSink) event {
	t.Helper()
	select {
	case e := <-c:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return event{}
	}
}

func startServer(t *testing.T, opts Options) (*Server, *httptest.Server, chanSink) {
	t.Helper()
	sink := make(chanSink, 16)
	s := NewServer(sink, opts)
	ts := httptest.NewServer(s.Handler())
	return s, ts, sink
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestFeedForwardsEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, ts, sink := startServer(t, Options{})
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: TypeResize, Width: 1024, Height: 768}))
	require.NoError(t, conn.WriteJSON(Message{Type: TypePointer, X: 12.5, Y: 40}))
	// Malformed and unknown messages are dropped without closing the socket
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(Message{Type: "scroll"}))
	require.NoError(t, conn.WriteJSON(Message{Type: TypeResize, Width: 0, Height: 10}))
	require.NoError(t, conn.WriteJSON(Message{Type: TypePointer, X: 0, Y: 0}))

	assert.Equal(t, event{"resize", 1024, 768}, next(t, sink))
	assert.Equal(t, event{"pointer", 12.5, 40}, next(t, sink))
	assert.Equal(t, event{"pointer", 0, 0}, next(t, sink))
	assert.Equal(t, 1, s.Clients())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, 0, s.Clients())

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestFeedRoutesFirstTouch(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, ts, sink := startServer(t, Options{})
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: TypeTouch}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"touch","touches":[{"x":30,"y":45},{"x":500,"y":600}]}`)))

	assert.Equal(t, event{"pointer", 30, 45}, next(t, sink))
	select {
	case e := <-sink:
		t.Fatalf("unexpected event %v", e)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestFeedOriginCheck(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, ts, _ := startServer(t, Options{AllowedOrigins: []string{"https://example.com/"}})
	defer ts.Close()

	header := http.Header{"Origin": {"https://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	header = http.Header{"Origin": {"https://EXAMPLE.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.NoError(t, err)
	conn.Close()

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestFeedServesMetrics(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Fallback(metrics.ReasonBackend)

	_, ts, _ := startServer(t, Options{Gatherer: reg})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `liquidfield_fallbacks_total{reason="backend"} 1`)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	allowAll := originChecker(nil)
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://anything.test")
	assert.True(t, allowAll(r))

	check := originChecker([]string{"http://localhost:5173"})
	r.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(r))
	r.Header.Set("Origin", "http://localhost:3000")
	assert.False(t, check(r))
	r.Header.Del("Origin")
	assert.True(t, check(r))
}
