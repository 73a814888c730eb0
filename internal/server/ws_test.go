package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

func newTestServer(t *testing.T, r *Relay) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", HandleWebSocket(r))
	mux.HandleFunc("/api/status", HandleStatus(r))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func dial(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeMessage(t *testing.T, conn *websocket.Conn, msg net.Message) {
	t.Helper()
	b, err := net.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func is[T net.Message](m net.Message) bool {
	_, ok := m.(T)
	return ok
}

// waitFor reads frames until match accepts one or the deadline passes.
func waitFor(t *testing.T, conn *websocket.Conn, match func(net.Message) bool) net.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		msg, err := net.DecodeServer(b)
		if err != nil {
			t.Fatalf("decode %s: %v", b, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func TestWebSocketJoinUpdateAndLateJoiner(t *testing.T) {
	url := newTestServer(t, newTestRelay())

	connA := dial(t, url)
	welcome := waitFor(t, connA, is[net.InitMessage]).(net.InitMessage)
	if welcome.ID != "p1" {
		t.Fatalf("init id = %q, want p1", welcome.ID)
	}
	players := waitFor(t, connA, is[net.PlayersMessage]).(net.PlayersMessage)
	if len(players.Players) != 0 {
		t.Fatalf("first player saw roster %+v", players.Players)
	}

	writeMessage(t, connA, net.UpdateMessage{Position: net.Vec3{X: 1, Y: 0, Z: 2}, Rotation: net.Rotation{Y: 0}})

	// The update is applied asynchronously; poll until a joiner sees it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		connB := dial(t, url)
		players := waitFor(t, connB, is[net.PlayersMessage]).(net.PlayersMessage)
		if len(players.Players) == 1 && players.Players[0].ID == "p1" &&
			players.Players[0].Position == (net.Vec3{X: 1, Y: 0, Z: 2}) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("late joiner roster = %+v, want p1 at {1,0,2}", players.Players)
		}
		connB.Close()
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWebSocketMalformedFrameKeepsConnection(t *testing.T) {
	url := newTestServer(t, newTestRelay())
	connA := dial(t, url)
	waitFor(t, connA, is[net.PlayersMessage])
	connB := dial(t, url)
	waitFor(t, connB, is[net.PlayersMessage])

	if err := connA.WriteMessage(websocket.TextMessage, []byte("definitely not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	writeMessage(t, connA, net.UpdateMessage{Position: net.Vec3{X: 7}})

	got := waitFor(t, connB, is[net.PlayerUpdateMessage]).(net.PlayerUpdateMessage)
	if got.ID != "p1" || got.Position.X != 7 {
		t.Fatalf("update after bad frame = %+v", got)
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	r := newTestRelay()
	url := newTestServer(t, r)

	connA := dial(t, url)
	waitFor(t, connA, is[net.PlayersMessage])
	connB := dial(t, url)
	waitFor(t, connB, is[net.PlayersMessage])

	writeMessage(t, connA, net.FireProjectileMessage{Projectile: net.ProjectileRecord{ID: "ball"}})
	waitFor(t, connB, is[net.NewProjectileMessage])

	connA.Close()

	rm := waitFor(t, connB, is[net.RemoveProjectileMessage]).(net.RemoveProjectileMessage)
	if rm.ProjectileID != "ball" || rm.PlayerID != "p1" {
		t.Fatalf("removal = %+v", rm)
	}
	left := waitFor(t, connB, is[net.PlayerLeftMessage]).(net.PlayerLeftMessage)
	if left.ID != "p1" {
		t.Fatalf("playerLeft = %+v", left)
	}

	resp, err := http.Get(url + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(st.Players) != 1 || st.Players[0].ID != "p2" || st.Projectiles != 0 {
		t.Fatalf("status after disconnect = %+v", st)
	}
}

func TestRunBroadcastsSkullState(t *testing.T) {
	r := NewRelay(Options{SkullNormal: 50 * time.Millisecond, SkullEvent: time.Minute})
	peer := &fakePeer{}
	r.Join(peer)
	peer.drain(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, 10*time.Millisecond, 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range ofType[net.SkullModeMessage](peer.drain(t)) {
			if m.State.IsActive {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("skull mode never became active")
}

func TestStatusRejectsPost(t *testing.T) {
	url := newTestServer(t, newTestRelay())
	resp, err := http.Post(url+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d, want 405", resp.StatusCode)
	}
}
