package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/meshwire/rtms/internal/app"
	"github.com/meshwire/rtms/internal/auth"
	"github.com/meshwire/rtms/internal/config"
	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/protocol"
)

const (
	testClientID = "client-1"
	testSecret   = "secret-1"
	testMeeting  = "m-100"
	testStream   = "s-100"
)

type fakeRelay struct {
	ensureErr error
}

func (f *fakeRelay) Ensure() error { return f.ensureErr }

func (f *fakeRelay) URLs() protocol.ServerURLs {
	return protocol.ServerURLs{
		Audio:      "ws://127.0.0.1:9/audio",
		Video:      "ws://127.0.0.1:9/video",
		Transcript: "ws://127.0.0.1:9/transcript",
		All:        "ws://127.0.0.1:9/all",
	}
}

func testStore() *auth.Store {
	return auth.NewStore(
		[]domain.Credential{{ClientID: testClientID, ClientSecret: testSecret}},
		[]domain.StreamBinding{{MeetingUUID: testMeeting, RTMSStreamID: testStream}},
		"",
	)
}

func startSignaling(t *testing.T, relay Relay) (*httptest.Server, *Controller) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		SignalingKeepAlive: time.Minute, // quiet during tests
		KeepAliveMisses:    3,
		HandshakeTimeout:   time.Minute,
		ReadLimit:          1 << 20,
	}
	ctl := NewController(app.NewRegistry(), testStore(), relay, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, ctl))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, ctl
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/signaling"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readResp(t *testing.T, ws *websocket.Conn) protocol.SignalingHandshakeResp {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var resp protocol.SignalingHandshakeResp
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func handshakeReq() protocol.SignalingHandshakeReq {
	return protocol.SignalingHandshakeReq{
		MsgType:         protocol.TypeSignalingHandshakeReq,
		ProtocolVersion: protocol.Version,
		MeetingUUID:     testMeeting,
		RTMSStreamID:    testStream,
		Signature:       auth.Sign(testClientID, testMeeting, testStream, testSecret),
	}
}

func TestHandshakeBadVersion(t *testing.T) {
	srv, _ := startSignaling(t, &fakeRelay{})
	ws := dial(t, srv)

	req := handshakeReq()
	req.ProtocolVersion = 99
	require.NoError(t, ws.WriteJSON(req))

	resp := readResp(t, ws)
	require.Equal(t, protocol.TypeSignalingHandshakeResp, resp.MsgType)
	require.Equal(t, protocol.StatusInvalidVersion, resp.StatusCode)
	require.Nil(t, resp.MediaServer)
}

func TestHandshakeMissingFields(t *testing.T) {
	srv, _ := startSignaling(t, &fakeRelay{})
	ws := dial(t, srv)

	req := handshakeReq()
	req.Signature = ""
	require.NoError(t, ws.WriteJSON(req))

	resp := readResp(t, ws)
	require.Equal(t, protocol.StatusInvalidMessage, resp.StatusCode)
}

func TestHandshakeUnknownBinding(t *testing.T) {
	srv, _ := startSignaling(t, &fakeRelay{})
	ws := dial(t, srv)

	req := handshakeReq()
	req.MeetingUUID = "someone-else"
	require.NoError(t, ws.WriteJSON(req))

	resp := readResp(t, ws)
	require.Equal(t, protocol.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Invalid meeting or stream ID", resp.Reason)
}

func TestHandshakeBadSignature(t *testing.T) {
	srv, _ := startSignaling(t, &fakeRelay{})
	ws := dial(t, srv)

	req := handshakeReq()
	req.Signature = auth.Sign(testClientID, testMeeting, testStream, "wrong-secret")
	require.NoError(t, ws.WriteJSON(req))

	resp := readResp(t, ws)
	require.Equal(t, protocol.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Invalid signature", resp.Reason)
}

func TestHandshakeRelayFailure(t *testing.T) {
	srv, _ := startSignaling(t, &fakeRelay{ensureErr: errors.New("port taken")})
	ws := dial(t, srv)

	require.NoError(t, ws.WriteJSON(handshakeReq()))

	resp := readResp(t, ws)
	require.Equal(t, protocol.StatusError, resp.StatusCode)
}

func TestHandshakeSuccess(t *testing.T) {
	srv, ctl := startSignaling(t, &fakeRelay{})
	ws := dial(t, srv)

	require.NoError(t, ws.WriteJSON(handshakeReq()))

	resp := readResp(t, ws)
	require.Equal(t, protocol.StatusOK, resp.StatusCode)
	require.Equal(t, protocol.Version, resp.ProtocolVersion)
	require.NotNil(t, resp.MediaServer)
	require.Equal(t, "ws://127.0.0.1:9/audio", resp.MediaServer.ServerURLs.Audio)
	require.Equal(t, "ws://127.0.0.1:9/all", resp.MediaServer.ServerURLs.All)
	for _, k := range []string{
		resp.MediaServer.SRTPKeys.Audio,
		resp.MediaServer.SRTPKeys.Video,
		resp.MediaServer.SRTPKeys.Share,
	} {
		require.Len(t, k, 64)
	}

	key := domain.StreamKey{MeetingUUID: testMeeting, StreamID: testStream}
	require.Eventually(t, func() bool {
		_, ok := ctl.Registry.Session(key)
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestHandshakeSupersedes(t *testing.T) {
	srv, _ := startSignaling(t, &fakeRelay{})

	first := dial(t, srv)
	require.NoError(t, first.WriteJSON(handshakeReq()))
	require.Equal(t, protocol.StatusOK, readResp(t, first).StatusCode)

	second := dial(t, srv)
	require.NoError(t, second.WriteJSON(handshakeReq()))
	require.Equal(t, protocol.StatusOK, readResp(t, second).StatusCode)

	// the superseded connection gets torn down server-side
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	require.Error(t, err)
}

func TestKeepAliveReqEchoed(t *testing.T) {
	srv, _ := startSignaling(t, &fakeRelay{})
	ws := dial(t, srv)

	require.NoError(t, ws.WriteJSON(protocol.KeepAlive{
		MsgType:   protocol.TypeKeepAliveReq,
		Sequence:  7,
		Timestamp: time.Now().UnixMilli(),
	}))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var resp protocol.KeepAlive
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &resp))
	require.Equal(t, protocol.TypeKeepAliveResp, resp.MsgType)
	require.Equal(t, uint64(7), resp.Sequence)
}

func TestSessionStateDrivesLifecycle(t *testing.T) {
	srv, ctl := startSignaling(t, &fakeRelay{})
	ws := dial(t, srv)

	require.NoError(t, ws.WriteJSON(handshakeReq()))
	require.Equal(t, protocol.StatusOK, readResp(t, ws).StatusCode)

	require.NoError(t, ws.WriteJSON(protocol.SessionStateUpdate{
		MsgType: protocol.TypeSessionStateUpdate,
		State:   protocol.SessionStopped,
	}))

	// STOPPED pushes a terminal notice back and closes the connection
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var upd protocol.SessionStateUpdate
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &upd))
	require.Equal(t, protocol.TypeSessionStateUpdate, upd.MsgType)
	require.Equal(t, protocol.SessionStopped, upd.State)
	require.True(t, protocol.IsStopReason(upd.StopReason))

	_, _, err = ws.ReadMessage()
	require.Error(t, err)

	key := domain.StreamKey{MeetingUUID: testMeeting, StreamID: testStream}
	require.Eventually(t, func() bool {
		_, ok := ctl.Registry.Session(key)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestHandshakeTimeoutClosesIdleConn(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		SignalingKeepAlive: time.Minute,
		KeepAliveMisses:    3,
		HandshakeTimeout:   100 * time.Millisecond,
		ReadLimit:          1 << 20,
	}
	ctl := NewController(app.NewRegistry(), testStore(), &fakeRelay{}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(SetupRouter(ctx, ctl))
	defer srv.Close()

	ws := dial(t, srv)
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
}
