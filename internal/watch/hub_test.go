package watch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/generation"
	"github.com/worldforge/server/internal/jobs"
)

func TestNewMessage(t *testing.T) {
	m := NewMessage(jobs.Event{JobID: "j", Kind: jobs.KindGenerate, Stage: generation.StageSimulation, Message: "plate simulation: step 3", Step: 3, HasStep: true})
	require.Equal(t, ProgressAction, m.Type)
	require.NotNil(t, m.Data.Step)
	require.Equal(t, 3, *m.Data.Step)

	m = NewMessage(jobs.Event{JobID: "j", Final: true, Outcome: generation.Failed, Err: errors.New("boom")})
	require.Equal(t, DoneAction, m.Type)
	require.Equal(t, "failed", m.Data.Outcome)
	require.Equal(t, "boom", m.Data.Error)
	require.Nil(t, m.Data.Step)
}

func dial(t *testing.T, srv *Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws://" + srv.Addr().String() + "/jobs" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcastsAndFilters(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	srv, err := Listen("127.0.0.1:0", "/jobs", hub, zap.NewNop())
	require.NoError(t, err)
	go srv.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		hub.Close()
		_ = srv.Shutdown(ctx)
	})

	all := dial(t, srv, "")
	only := dial(t, srv, "?job=b")
	require.Eventually(t, func() bool { return hub.Count() == 2 }, 5*time.Second, 10*time.Millisecond)

	hub.Publish(jobs.Event{JobID: "a", Message: "first"})
	hub.Publish(jobs.Event{JobID: "b", Final: true, Outcome: generation.Completed})

	read := func(c *websocket.Conn) Message {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		var m Message
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	}

	m := read(all)
	require.Equal(t, "a", m.Data.JobID)
	require.Equal(t, "first", m.Data.Message)
	m = read(all)
	require.Equal(t, DoneAction, m.Type)
	require.Equal(t, "completed", m.Data.Outcome)

	m = read(only)
	require.Equal(t, "b", m.Data.JobID)
}
