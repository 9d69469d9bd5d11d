package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("listen") == "")
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) (Message, bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return Message{}, false
	}
	m, ok, err := Decode(data)
	if err != nil || !ok {
		t.Fatalf("Decode = %v, %v", ok, err)
	}
	return m, true
}

func TestHubRelaysToOthers(t *testing.T) {
	hub, url := startHub(t)
	received := make(chan Message, 4)
	hub.OnReceive(func(m Message) { received <- m })

	a, b := dial(t, url), dial(t, url)
	waitClients(t, hub, 2)

	m, _ := NewClear("scene", "r1")
	data, _ := Encode(m)
	if err := a.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}

	got, ok := readMessage(t, b)
	if !ok || got.Type != TypeClear {
		t.Fatalf("b got %v, %v", got.Type, ok)
	}
	select {
	case m := <-received:
		if p, _ := m.ClearPayload(); p.RouteID != "r1" {
			t.Errorf("hub got %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub receiver not called")
	}
	if _, ok := readMessage(t, a); ok {
		t.Error("sender received its own message")
	}
}

func TestHubSendReachesEveryClient(t *testing.T) {
	hub, url := startHub(t)
	a, b := dial(t, url), dial(t, url+"?listen=1")
	waitClients(t, hub, 2)

	m, _ := NewClearAll("scene")
	if err := hub.Send(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	for _, c := range []*websocket.Conn{a, b} {
		if got, ok := readMessage(t, c); !ok || got.Type != TypeClearAll {
			t.Errorf("got %v, %v", got.Type, ok)
		}
	}
}

func TestHubDropsListenOnlyMessages(t *testing.T) {
	hub, url := startHub(t)
	called := make(chan struct{}, 1)
	hub.OnReceive(func(Message) { called <- struct{}{} })

	listener, other := dial(t, url+"?listen=1"), dial(t, url)
	waitClients(t, hub, 2)

	m, _ := NewClearAll("scene")
	data, _ := Encode(m)
	listener.WriteMessage(websocket.TextMessage, data)

	if _, ok := readMessage(t, other); ok {
		t.Error("message from a listen-only client was relayed")
	}
	select {
	case <-called:
		t.Error("message from a listen-only client reached the hub")
	default:
	}
}

func TestClientRoundTrip(t *testing.T) {
	hub, url := startHub(t)
	got := make(chan Message, 1)
	hub.OnReceive(func(m Message) { got <- m })

	client := NewClient(url, nil)
	fromHub := make(chan Message, 1)
	client.OnReceive(func(m Message) { fromHub <- m })

	if err := client.Send(context.Background(), Message{Type: TypeClearAll}); err != ErrNotConnected {
		t.Errorf("Send before Run = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()
	waitClients(t, hub, 1)
	for !client.Connected() {
		time.Sleep(5 * time.Millisecond)
	}

	m, _ := NewClear("scene", "r9")
	if err := client.Send(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-got:
		if p, _ := m.ClearPayload(); p.RouteID != "r9" {
			t.Errorf("hub got %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not receive the client message")
	}

	all, _ := NewClearAll("scene")
	hub.Send(context.Background(), all)
	select {
	case m := <-fromHub:
		if m.Type != TypeClearAll {
			t.Errorf("client got %v", m.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client did not receive the hub message")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
