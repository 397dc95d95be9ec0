package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/auth"
	"rollcall/internal/broadcast"
	"rollcall/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T, bus *broadcast.Bus) (*httptest.Server, auth.Signer) {
	t.Helper()
	signer := auth.NewSigner("stream-key", "rollcall-test", time.Hour)
	r := gin.New()
	r.GET("/ws", auth.StreamGuard(signer), auth.Require(auth.CapSubscribe), NewStream(bus, 4, []string{"http://localhost:3000"}).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, signer
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
}

func TestStreamDeliversEnvelopes(t *testing.T) {
	bus := broadcast.NewBus()
	srv, signer := newServer(t, bus)
	tok, err := signer.Issue("s1", model.RoleStudent)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, tok.Value), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return bus.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	ev := model.SingleEvent(model.AttendanceRecord{
		ID: "r1", StudentID: "s1", ClassID: "c1", ClassName: "Math101", Date: "2024-01-10", Status: model.StatusPresent,
	})
	require.NoError(t, bus.Publish(context.Background(), ev))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env model.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, model.EventName, env.Event)
	assert.Equal(t, model.EventSingle, env.Data.Type)
	require.NotNil(t, env.Data.Record)
	assert.Equal(t, "Math101", env.Data.Record.ClassName)
	assert.False(t, env.Data.Timestamp.IsZero())
}

func TestStreamUnsubscribesOnClose(t *testing.T) {
	bus := broadcast.NewBus()
	srv, signer := newServer(t, bus)
	tok, err := signer.Issue("t1", model.RoleTeacher)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, tok.Value), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return bus.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return bus.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamRejectsMissingAndBadCredentials(t *testing.T) {
	srv, _ := newServer(t, broadcast.NewBus())

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "garbage"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamRejectsForeignOrigin(t *testing.T) {
	srv, signer := newServer(t, broadcast.NewBus())
	tok, err := signer.Issue("s1", model.RoleStudent)
	require.NoError(t, err)

	header := http.Header{"Origin": []string{"https://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tok.Value), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeliverNeverBlocks(t *testing.T) {
	cl := &client{send: make(chan model.Envelope, 1), done: make(chan struct{})}
	ev := model.BulkEvent(model.Class{ID: "c1"}, "2024-01-10", []string{"s1"})

	assert.NoError(t, cl.deliver(context.Background(), ev))
	assert.NoError(t, cl.deliver(context.Background(), ev), "full buffer drops the frame")
	assert.Len(t, cl.send, 1)

	close(cl.done)
	assert.ErrorIs(t, cl.deliver(context.Background(), ev), errClosed)
}
