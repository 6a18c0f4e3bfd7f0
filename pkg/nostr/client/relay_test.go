package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Hubmakerlabs/agentstr/pkg/context"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/timestamp"
	"golang.org/x/net/websocket"
)

func TestPublish(t *testing.T) {
	// test note to be sent over websocket
	priv, pub := makeKeyPair(t)
	textNote := &event.T{
		Kind:      kind.TextNote,
		Content:   "hello",
		CreatedAt: timestamp.T(1672068534), // random fixed timestamp
		Tags:      tags.T{tag.T{"foo", "bar"}},
		PubKey:    pub,
	}
	if err := textNote.Sign(priv); err != nil {
		t.Fatalf("textNote.Sign: %v", err)
	}

	// fake relay server
	var mu sync.Mutex // guards published to satisfy go test -race
	var published bool
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		mu.Lock()
		published = true
		mu.Unlock()
		// verify the client sent exactly the textNote
		var raw []json.RawMessage
		if err := websocket.JSON.Receive(conn, &raw); err != nil {
			t.Errorf("websocket.JSON.Receive: %v", err)
		}
		ev := parseEventMessage(t, raw)
		if !bytes.Equal(ev.Serialize(), textNote.Serialize()) {
			t.Errorf("received event:\n%+v\nwant:\n%+v", ev, textNote)
		}
		// send back an ok command result
		res := []any{"OK", textNote.ID, true, ""}
		if err := websocket.JSON.Send(conn, res); err != nil {
			t.Errorf("websocket.JSON.Send: %v", err)
		}
	})
	defer ws.Close()

	// connect a client and send the text note
	rl := mustConnect(t, ws.URL)
	err := rl.Publish(context.Bg(), textNote)
	if err != nil {
		t.Errorf("publish should have succeeded")
	}
	mu.Lock()
	defer mu.Unlock()
	if !published {
		t.Errorf("fake relay server saw no event")
	}
}

func TestPublishBlocked(t *testing.T) {
	// test note to be sent over websocket
	textNote := event.T{Kind: kind.TextNote, Content: "hello"}
	textNote.ID = textNote.GetID()

	// fake relay server
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		// discard received message; not interested
		var raw []json.RawMessage
		if err := websocket.JSON.Receive(conn, &raw); err != nil {
			t.Errorf("websocket.JSON.Receive: %v", err)
		}
		// send back a not ok command result
		res := []any{"OK", textNote.ID, false, "blocked"}
		websocket.JSON.Send(conn, res)
	})
	defer ws.Close()

	// connect a client and send a text note
	rl := mustConnect(t, ws.URL)
	err := rl.Publish(context.Bg(), &textNote)
	if err == nil {
		t.Errorf("should have failed to publish")
	}
}

func TestPublishWriteFailed(t *testing.T) {
	// test note to be sent over websocket
	textNote := event.T{Kind: kind.TextNote, Content: "hello"}
	textNote.ID = textNote.GetID()

	// fake relay server
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		// reject receive - force send error
		conn.Close()
	})
	defer ws.Close()

	// connect a client and send a text note
	rl := mustConnect(t, ws.URL)
	// brief pause so that publish always fails on the closed socket
	time.Sleep(1 * time.Millisecond)
	err := rl.Publish(context.Bg(), &textNote)
	if err == nil {
		t.Errorf("should have failed to publish")
	}
}

func TestConnectContext(t *testing.T) {
	// fake relay server
	var mu sync.Mutex // guards connected to satisfy go test -race
	var connected bool
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		mu.Lock()
		connected = true
		mu.Unlock()
		io.ReadAll(conn) // discard all input
	})
	defer ws.Close()

	// relay client
	ctx, cancel := context.Timeout(context.Bg(), 3*time.Second)
	defer cancel()
	r, err := Connect(ctx, ws.URL)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	mu.Lock()
	defer mu.Unlock()
	if !connected {
		t.Error("fake relay server saw no client connect")
	}
}

func TestConnectWithOrigin(t *testing.T) {
	// fake relay server
	// default handler requires origin golang.org/x/net/websocket
	ws := httptest.NewServer(websocket.Handler(discardingHandler))
	defer ws.Close()

	// relay client
	r := NewRelay(context.Bg(), normalize.URL(ws.URL))
	r.RequestHeader = http.Header{"origin": {"https://example.com"}}
	ctx, cancel := context.Timeout(context.Bg(), 3*time.Second)
	defer cancel()
	err := r.Connect(ctx)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSubscribeReceivesStoredEvents(t *testing.T) {
	priv, _ := makeKeyPair(t)
	stored := &event.T{
		Kind:      kind.TextNote,
		Content:   "stored note",
		CreatedAt: timestamp.Now(),
	}
	if err := stored.Sign(priv); err != nil {
		t.Fatal(err)
	}

	ws := newWebsocketServer(func(conn *websocket.Conn) {
		var raw []json.RawMessage
		if err := websocket.JSON.Receive(conn, &raw); err != nil {
			t.Errorf("websocket.JSON.Receive: %v", err)
			return
		}
		subid, _ := parseSubscriptionMessage(t, raw)
		eb, _ := stored.MarshalJSON()
		websocket.Message.Send(conn,
			`["EVENT","`+subid+`",`+string(eb)+`]`)
		websocket.Message.Send(conn, `["EOSE","`+subid+`"]`)
		io.ReadAll(conn)
	})
	defer ws.Close()

	rl := mustConnect(t, ws.URL)
	defer rl.Close()

	ctx, cancel := context.Timeout(context.Bg(), 3*time.Second)
	defer cancel()
	evs, err := rl.QuerySync(ctx, &filter.T{
		Kinds: []kind.T{kind.TextNote},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].Content != "stored note" {
		t.Fatalf("got %d events: %v", len(evs), evs)
	}
}

func TestSubscribeDropsBadSignature(t *testing.T) {
	priv, _ := makeKeyPair(t)
	good := &event.T{Kind: kind.TextNote, Content: "good",
		CreatedAt: timestamp.Now()}
	if err := good.Sign(priv); err != nil {
		t.Fatal(err)
	}
	bad := &event.T{Kind: kind.TextNote, Content: "forged",
		CreatedAt: timestamp.Now()}
	if err := bad.Sign(priv); err != nil {
		t.Fatal(err)
	}
	bad.Content = "tampered"
	bad.ID = bad.GetID() // consistent id but now a wrong signature

	ws := newWebsocketServer(func(conn *websocket.Conn) {
		var raw []json.RawMessage
		if err := websocket.JSON.Receive(conn, &raw); err != nil {
			return
		}
		subid, _ := parseSubscriptionMessage(t, raw)
		bb, _ := bad.MarshalJSON()
		gb, _ := good.MarshalJSON()
		websocket.Message.Send(conn,
			`["EVENT","`+subid+`",`+string(bb)+`]`)
		websocket.Message.Send(conn,
			`["EVENT","`+subid+`",`+string(gb)+`]`)
		websocket.Message.Send(conn, `["EOSE","`+subid+`"]`)
		io.ReadAll(conn)
	})
	defer ws.Close()

	rl := mustConnect(t, ws.URL)
	defer rl.Close()

	ctx, cancel := context.Timeout(context.Bg(), 3*time.Second)
	defer cancel()
	evs, err := rl.QuerySync(ctx, &filter.T{
		Kinds: []kind.T{kind.TextNote},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].Content != "good" {
		t.Fatalf("expected only the valid event, got %v", evs)
	}
}

func discardingHandler(conn *websocket.Conn) {
	io.ReadAll(conn) // discard all input
}

func newWebsocketServer(handler func(*websocket.Conn)) *httptest.Server {
	return httptest.NewServer(&websocket.Server{
		Handshake: anyOriginHandshake,
		Handler:   handler,
	})
}

// anyOriginHandshake is an alternative to default in
// golang.org/x/net/websocket which checks for origin. nostr clients send no
// origin and it makes no difference for the tests here anyway.
var anyOriginHandshake = func(conf *websocket.Config,
	r *http.Request) error {
	return nil
}

func mustConnect(t *testing.T, url string) *T {
	t.Helper()
	rl, err := Connect(context.Bg(), url)
	if err != nil {
		t.Fatalf("Connect(%q): %v", url, err)
	}
	return rl
}

func makeKeyPair(t *testing.T) (priv, pub string) {
	t.Helper()
	privkey := keys.GeneratePrivateKey()
	pubkey, err := keys.GetPublicKey(privkey)
	if err != nil {
		t.Fatalf("GetPublicKey(%q): %v", privkey, err)
	}
	return privkey, pubkey
}

func parseEventMessage(t *testing.T, raw []json.RawMessage) event.T {
	t.Helper()
	if len(raw) < 2 {
		t.Fatalf("len(raw) = %d; want at least 2", len(raw))
	}
	var typ string
	json.Unmarshal(raw[0], &typ)
	if typ != "EVENT" {
		t.Errorf("typ = %q; want EVENT", typ)
	}
	var ev event.T
	if err := json.Unmarshal(raw[1], &ev); err != nil {
		t.Errorf("json.Unmarshal(`%s`): %v", string(raw[1]), err)
	}
	return ev
}

func parseSubscriptionMessage(t *testing.T,
	raw []json.RawMessage) (subid string, ff []filter.T) {
	t.Helper()
	if len(raw) < 3 {
		t.Fatalf("len(raw) = %d; want at least 3", len(raw))
	}
	var typ string
	json.Unmarshal(raw[0], &typ)
	if typ != "REQ" {
		t.Errorf("typ = %q; want REQ", typ)
	}
	if err := json.Unmarshal(raw[1], &subid); err != nil {
		t.Errorf("json.Unmarshal sub id: %v", err)
	}
	for i, b := range raw[2:] {
		var f filter.T
		if err := json.Unmarshal(b, &f); err != nil {
			t.Errorf("json.Unmarshal filter %d: %v", i, err)
		}
		ff = append(ff, f)
	}
	return subid, ff
}
