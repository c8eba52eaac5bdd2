package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codefionn/ronkey/internal/config"
	"github.com/codefionn/ronkey/internal/interp"
	"github.com/codefionn/ronkey/internal/monkey/ast"
	"github.com/codefionn/ronkey/internal/monkey/object"
	"github.com/codefionn/ronkey/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	return cfg
}

// startTestServer serves srv through httptest and returns the HTTP base URL
// and the WebSocket evaluation URL
func startTestServer(t *testing.T, cfg *config.Config, opts ...Option) (*Server, string, string) {
	t.Helper()

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	srv := NewServer(cfg, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Stop()
		ts.Close()
	})

	return srv, ts.URL, "ws" + strings.TrimPrefix(ts.URL, "http") + "/eval"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, source string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(source)))
}

func receive(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	return string(data)
}

func roundTrip(t *testing.T, conn *websocket.Conn, source string) string {
	t.Helper()
	send(t, conn, source)
	return receive(t, conn)
}

func TestGreeting(t *testing.T) {
	cfg := testConfig()
	_, base, _ := startTestServer(t, cfg)

	resp, err := http.Get(base + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, cfg.Greeting, string(body))
}

func TestHealth(t *testing.T) {
	_, base, _ := startTestServer(t, testConfig())

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(body))
}

func TestEvalRequiresUpgrade(t *testing.T) {
	_, base, _ := startTestServer(t, testConfig())

	resp, err := http.Get(base + "/eval")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatePersistsWithinConnection(t *testing.T) {
	_, _, wsURL := startTestServer(t, testConfig())
	conn := dial(t, wsURL)

	assert.Equal(t, `{"ok":"null"}`, roundTrip(t, conn, "let x = 5;"))
	assert.Equal(t, `{"ok":"5"}`, roundTrip(t, conn, "x;"))
	assert.Equal(t, `{"ok":"10"}`, roundTrip(t, conn, "let double = fn(n) { n * 2 }; double(x)"))
}

func TestSyntaxErrorLeavesSessionUntouched(t *testing.T) {
	rt := &countingRuntime{}
	_, _, wsURL := startTestServer(t, testConfig(), WithRuntime(rt))
	conn := dial(t, wsURL)

	assert.Equal(t, `{"ok":"null"}`, roundTrip(t, conn, "let x = 1;"))
	assert.Equal(t, `{"err":["expected next token to be =, got INT instead"]}`, roundTrip(t, conn, "let x 2;"))
	assert.Equal(t, `{"ok":"1"}`, roundTrip(t, conn, "x"))
	assert.Equal(t, 2, rt.Calls())
}

func TestRuntimeErrorIsReportedAsOK(t *testing.T) {
	_, _, wsURL := startTestServer(t, testConfig())
	conn := dial(t, wsURL)

	assert.Equal(t, `{"ok":"ERROR: type mismatch: INTEGER + BOOLEAN"}`, roundTrip(t, conn, "1 + true"))
	assert.Equal(t, `{"ok":"2"}`, roundTrip(t, conn, "1 + 1"))
}

func TestSessionsAreIsolated(t *testing.T) {
	_, _, wsURL := startTestServer(t, testConfig())
	a := dial(t, wsURL)
	b := dial(t, wsURL)

	assert.Equal(t, `{"ok":"null"}`, roundTrip(t, a, "let x = 1;"))
	assert.Equal(t, `{"ok":"ERROR: identifier not found: x"}`, roundTrip(t, b, "x;"))

	assert.Equal(t, `{"ok":"null"}`, roundTrip(t, b, "let x = 2;"))
	assert.Equal(t, `{"ok":"1"}`, roundTrip(t, a, "x;"))
	assert.Equal(t, `{"ok":"2"}`, roundTrip(t, b, "x;"))
}

func TestPipelinedMessagesAnsweredInOrder(t *testing.T) {
	_, _, wsURL := startTestServer(t, testConfig())
	conn := dial(t, wsURL)

	const n = 100
	for i := 0; i < n; i++ {
		send(t, conn, fmt.Sprintf("%d + 1", i))
	}
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf(`{"ok":"%d"}`, i+1), receive(t, conn))
	}
}

func TestNewConnectionsStartFresh(t *testing.T) {
	_, _, wsURL := startTestServer(t, testConfig())

	for i := 0; i < 20; i++ {
		conn := dial(t, wsURL)
		assert.Equal(t, `{"ok":"ERROR: identifier not found: leaked"}`, roundTrip(t, conn, "leaked"))
		assert.Equal(t, `{"ok":"null"}`, roundTrip(t, conn, "let leaked = 1;"))
		require.NoError(t, conn.Close())
	}
}

func TestConcurrentConnections(t *testing.T) {
	_, _, wsURL := startTestServer(t, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()

			for _, msg := range []string{fmt.Sprintf("let v = %d;", i), "v * 10"} {
				if !assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg))) {
					return
				}
			}
			_, first, err := conn.ReadMessage()
			if !assert.NoError(t, err) {
				return
			}
			_, second, err := conn.ReadMessage()
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, `{"ok":"null"}`, string(first))
			assert.Equal(t, fmt.Sprintf(`{"ok":"%d"}`, i*10), string(second))
		}(i)
	}
	wg.Wait()
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "expected close, got frame %q", data)
	assert.True(t, websocket.IsCloseError(err, code), "unexpected error: %v", err)
}

func TestBinaryFrameClosesOnlyThatConnection(t *testing.T) {
	_, _, wsURL := startTestServer(t, testConfig())
	bad := dial(t, wsURL)
	good := dial(t, wsURL)

	assert.Equal(t, `{"ok":"null"}`, roundTrip(t, bad, "let x = 1;"))
	require.NoError(t, bad.WriteMessage(websocket.BinaryMessage, []byte("x")))
	expectClose(t, bad, websocket.CloseUnsupportedData)

	assert.Equal(t, `{"ok":"3"}`, roundTrip(t, good, "1 + 2"))
}

func TestInvalidUTF8ClosesConnection(t *testing.T) {
	_, _, wsURL := startTestServer(t, testConfig())
	conn := dial(t, wsURL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte{'1', 0xff}))
	expectClose(t, conn, websocket.CloseInvalidFramePayloadData)
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageBytes = 16
	_, _, wsURL := startTestServer(t, cfg)
	conn := dial(t, wsURL)

	send(t, conn, strings.Repeat("1 + ", 20)+"1")
	expectClose(t, conn, websocket.CloseMessageTooBig)
}

// blockingRuntime waits for release before evaluating and reports the
// context state it observed afterwards
type blockingRuntime struct {
	interp.Monkey
	started  chan struct{}
	release  chan struct{}
	finished chan error
}

func (r *blockingRuntime) Eval(ctx context.Context, program *ast.Program, env *object.Environment) object.Object {
	close(r.started)
	<-r.release
	r.finished <- ctx.Err()
	return r.Monkey.Eval(ctx, program, env)
}

func TestClientCloseDoesNotInterruptEvaluation(t *testing.T) {
	rt := &blockingRuntime{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		finished: make(chan error, 1),
	}
	_, _, wsURL := startTestServer(t, testConfig(), WithRuntime(rt))
	conn := dial(t, wsURL)

	send(t, conn, "1")
	<-rt.started
	require.NoError(t, conn.Close())
	close(rt.release)

	select {
	case err := <-rt.finished:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("evaluation did not finish")
	}
}

// sleepyRuntime never finishes on its own
type sleepyRuntime struct {
	interp.Monkey
}

func (sleepyRuntime) Eval(ctx context.Context, _ *ast.Program, _ *object.Environment) object.Object {
	<-ctx.Done()
	return &object.Error{Message: "evaluation cancelled: " + ctx.Err().Error()}
}

func TestEvalTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.EvalTimeoutSeconds = 1
	_, _, wsURL := startTestServer(t, cfg, WithRuntime(sleepyRuntime{}))
	conn := dial(t, wsURL)

	assert.Equal(t, `{"ok":"ERROR: evaluation cancelled: context deadline exceeded"}`, roundTrip(t, conn, "1"))
}

func TestStopClosesOpenConnections(t *testing.T) {
	srv, _, wsURL := startTestServer(t, testConfig())
	conn := dial(t, wsURL)
	assert.Equal(t, `{"ok":"1"}`, roundTrip(t, conn, "1"))

	require.NoError(t, srv.Stop())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_ = conn.WriteMessage(websocket.TextMessage, []byte("2"))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestUpgradeRefusedAfterStop(t *testing.T) {
	srv, _, wsURL := startTestServer(t, testConfig())
	require.NoError(t, srv.Stop())

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if conn != nil {
		conn.Close()
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStartAndStop(t *testing.T) {
	srv := NewServer(testConfig(), WithLogger(quietLogger()))
	require.Nil(t, srv.Addr())
	require.NoError(t, srv.Start())
	assert.Error(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn := dial(t, "ws://"+srv.Addr().String()+"/eval")
	assert.Equal(t, `{"ok":"true"}`, roundTrip(t, conn, "1 < 2"))

	require.NoError(t, srv.Stop())
}

func TestRunStopsWithContext(t *testing.T) {
	srv := NewServer(testConfig(), WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestEnvelopeDecodesWithCodec(t *testing.T) {
	_, _, wsURL := startTestServer(t, testConfig())
	conn := dial(t, wsURL)

	resp, err := protocol.Decode([]byte(roundTrip(t, conn, "if (")))
	require.NoError(t, err)
	assert.Equal(t, protocol.KindErr, resp.Kind)
	assert.NotEmpty(t, resp.Errors)
}

func TestEmptyMessageAnswersNull(t *testing.T) {
	_, _, wsURL := startTestServer(t, testConfig())
	conn := dial(t, wsURL)

	assert.Equal(t, `{"ok":"null"}`, roundTrip(t, conn, ""))
	assert.Equal(t, `{"ok":"null"}`, roundTrip(t, conn, "  \n\t"))
}
