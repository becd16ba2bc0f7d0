package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/reactor/pkg/eventbus"
	"github.com/goclaw/reactor/pkg/logger"
	"github.com/goclaw/reactor/pkg/reactor"
)

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Output: "discard"})
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func startEvents(t *testing.T, cfg EventsConfig) (*eventbus.MemoryBus, *EventsHandler, *httptest.Server) {
	t.Helper()
	bus := eventbus.NewMemoryBus()
	handler := NewEventsHandler(bus, testLogger(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = handler.Run(ctx)
	}()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
		handler.Close()
		cancel()
		<-done
	})
	return bus, handler, server
}

func TestEventsHandler_RejectsNonUpgrade(t *testing.T) {
	handler := NewEventsHandler(eventbus.NewMemoryBus(), testLogger(), EventsConfig{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsHandler_StreamsSubscribedRun(t *testing.T) {
	bus, handler, server := startEvents(t, EventsConfig{MaxConnections: 5})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server.URL), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return handler.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "run_id": "run-b"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack ackMessage
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, ackMessage{Type: "ack", Action: "subscribe", RunID: "run-b"}, ack)

	publisher, err := eventbus.NewPublisher("api-test", bus, eventbus.DefaultRetryConfig(), nil)
	require.NoError(t, err)

	var seq atomic.Int32
	exec := reactor.NewExecutor(
		reactor.WithLogger(testLogger()),
		reactor.WithMiddleware(eventbus.NewBusObserver(publisher, testLogger())),
		reactor.WithRunIDGenerator(func() string {
			if seq.Add(1) == 1 {
				return "run-a"
			}
			return "run-b"
		}),
	)
	wf, err := reactor.New("hello").
		Step("greet", reactor.Run(func(*reactor.StepContext, reactor.Args) (any, error) { return "hi", nil })).
		Return("greet").
		Build()
	require.NoError(t, err)

	exec.Execute(context.Background(), wf, nil)
	exec.Execute(context.Background(), wf, nil)

	var types []string
	for len(types) < 4 {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var env eventbus.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		assert.Equal(t, "run-b", env.RunID)
		types = append(types, env.EventType)
	}
	assert.Equal(t, []string{"run.started", "step.dispatched", "step.completed", "run.finished"}, types)
}

func TestEventsHandler_ConnectionLimit(t *testing.T) {
	_, handler, server := startEvents(t, EventsConfig{MaxConnections: 1})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server.URL), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return handler.Clients() == 1 }, time.Second, 5*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server.URL), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.True(t, errors.Is(err, websocket.ErrBadHandshake))
}

func TestEventsHandler_RejectsForeignOrigin(t *testing.T) {
	_, _, server := startEvents(t, EventsConfig{AllowedOrigins: []string{"https://ops.example.com"}})

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server.URL), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://ops.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server.URL), header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestEventsHandler_DropsInvalidAndDuplicateEnvelopes(t *testing.T) {
	handler := NewEventsHandler(eventbus.NewMemoryBus(), testLogger(), EventsConfig{})
	client := newWSClient(nil)
	require.NoError(t, handler.manager.Register(client))

	env, err := eventbus.BuildEnvelope(eventbus.BuildEnvelopeInput{
		EventType: "run.started",
		Source:    "n",
		RunID:     "r",
		Workflow:  "w",
		Sequence:  1,
	})
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	handler.forward(eventbus.Message{Subject: "reactor.run.started", Payload: []byte("{")})
	handler.forward(eventbus.Message{Subject: "reactor.run.started", Payload: raw})
	handler.forward(eventbus.Message{Subject: "reactor.run.started", Payload: raw})

	assert.Len(t, client.send, 1)
}

func TestWSClient_Subscriptions(t *testing.T) {
	client := newWSClient(nil)
	a := eventbus.Envelope{RunID: "run-1", Workflow: "orders"}
	b := eventbus.Envelope{RunID: "run-2", Workflow: "shipping"}

	assert.True(t, client.shouldReceive(a))

	client.apply(clientMessage{Type: "subscribe", Workflow: "orders"})
	assert.True(t, client.shouldReceive(a))
	assert.False(t, client.shouldReceive(b))

	client.apply(clientMessage{Type: "SUBSCRIBE", RunID: " run-2 "})
	assert.True(t, client.shouldReceive(b))

	client.apply(clientMessage{Type: "unsubscribe", Workflow: "orders"})
	assert.False(t, client.shouldReceive(a))

	client.close()
	client.close()
	assert.False(t, client.trySend([]byte("x")))
}
