package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeFeed is an httptest WebSocket server that records subscription frames
// and lets tests push frames to the current connection.
type fakeFeed struct {
	server *httptest.Server
	mu     sync.Mutex
	conns  []*websocket.Conn
	subs   []subscription
	subCh  chan subscription
}

func newFakeFeed(t *testing.T) *fakeFeed {
	t.Helper()

	f := &fakeFeed{subCh: make(chan subscription, 16)}
	upgrader := websocket.Upgrader{}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var sub subscription
			if json.Unmarshal(data, &sub) == nil {
				f.mu.Lock()
				f.subs = append(f.subs, sub)
				f.mu.Unlock()
				f.subCh <- sub
			}
		}
	}))
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeFeed) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeFeed) current() *websocket.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.conns[len(f.conns)-1]
}

func (f *fakeFeed) push(t *testing.T, frame string) {
	t.Helper()
	require.NoError(t, f.current().WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (f *fakeFeed) nextSubscription(t *testing.T) subscription {
	t.Helper()

	select {
	case sub := <-f.subCh:
		return sub
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription")
		return subscription{}
	}
}

func testConfig(url string) Config {
	return Config{
		URL:                   url,
		Sources:               []string{"kraken"},
		Instruments:           []string{"BTCUSD"},
		DialTimeout:           time.Second,
		PongTimeout:           15 * time.Second,
		PingInterval:          10 * time.Second,
		ReconnectInitialDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:     50 * time.Millisecond,
		ReconnectBackoffMult:  2.0,
		MessageBufferSize:     10,
		Logger:                zap.NewNop(),
	}
}

func TestNew(t *testing.T) {
	cfg := testConfig("ws://localhost:1")
	mgr := New(cfg)

	require.NotNil(t, mgr)
	assert.Equal(t, cfg.URL, mgr.url)
	assert.NotNil(t, mgr.reconnectMgr)
	assert.Equal(t, cfg.MessageBufferSize, cap(mgr.messageChan))
	assert.True(t, mgr.sources["kraken"])
	assert.True(t, mgr.instruments["BTCUSD"])
	assert.False(t, mgr.IsConnected())
}

func TestManager_StartSubscribesAndForwardsBooks(t *testing.T) {
	feed := newFakeFeed(t)
	mgr := New(testConfig(feed.url()))
	require.NoError(t, mgr.Start())
	defer mgr.Close()

	sub := feed.nextSubscription(t)
	assert.Equal(t, "subscribe", sub.Type)
	assert.Equal(t, []string{"kraken"}, sub.Sources)
	assert.Equal(t, []string{"BTCUSD"}, sub.Instruments)

	feed.push(t, `{"type":"subscribed"}`)
	feed.push(t, `{"source":"kraken","asset":"BTCUSD","timestamp":"2024-03-01T12:00:00Z",`+
		`"bids":[{"price":"9000","volume":"1"}],"asks":[{"price":9010,"volume":2}]}`)
	feed.push(t, `[{"source":"binance","asset":"BTCUSD","timestamp":"2024-03-01T12:00:01Z","bids":[],"asks":[]},`+
		`{"source":"kraken","asset":"ETHUSD","timestamp":"2024-03-01T12:00:02Z","bids":[],"asks":[]}]`)

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case msg := <-mgr.MessageChan():
			got = append(got, msg.Source+"-"+msg.Asset)
			if i == 0 {
				require.Len(t, msg.Asks, 1)
				assert.Equal(t, "9010", msg.Asks[0].Price.String())
				assert.Equal(t, "9000", msg.Bids[0].Price.String())
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d messages", i)
		}
	}

	assert.Equal(t, []string{"kraken-BTCUSD", "binance-BTCUSD", "kraken-ETHUSD"}, got)
	assert.True(t, mgr.IsConnected())
}

func TestManager_SubscribeSendsOnlyNewEntries(t *testing.T) {
	feed := newFakeFeed(t)
	mgr := New(testConfig(feed.url()))
	require.NoError(t, mgr.Start())
	defer mgr.Close()

	feed.nextSubscription(t)

	require.NoError(t, mgr.Subscribe([]string{"kraken", "binance"}, []string{"BTCUSD"}))
	sub := feed.nextSubscription(t)
	assert.Equal(t, []string{"binance"}, sub.Sources)
	assert.Empty(t, sub.Instruments)

	require.NoError(t, mgr.Subscribe([]string{"binance"}, nil))
	select {
	case extra := <-feed.subCh:
		t.Fatalf("unexpected subscription %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, mgr.Unsubscribe([]string{"binance"}, nil))
	unsub := feed.nextSubscription(t)
	assert.Equal(t, "unsubscribe", unsub.Type)
	assert.Equal(t, []string{"binance"}, unsub.Sources)
	assert.False(t, mgr.sources["binance"])
}

func TestManager_SubscribeWithoutConnectionRollsBack(t *testing.T) {
	mgr := New(testConfig("ws://localhost:1"))

	err := mgr.Subscribe([]string{"bitstamp"}, nil)
	require.Error(t, err)
	assert.False(t, mgr.sources["bitstamp"])
}

func TestManager_ReconnectResubscribes(t *testing.T) {
	feed := newFakeFeed(t)
	mgr := New(testConfig(feed.url()))
	require.NoError(t, mgr.Start())
	defer mgr.Close()

	feed.nextSubscription(t)
	require.NoError(t, mgr.Subscribe([]string{"binance"}, nil))
	feed.nextSubscription(t)

	require.NoError(t, feed.current().Close())

	sub := feed.nextSubscription(t)
	assert.Equal(t, "subscribe", sub.Type)
	assert.Equal(t, []string{"binance", "kraken"}, sub.Sources)
	assert.Equal(t, []string{"BTCUSD"}, sub.Instruments)

	feed.push(t, `{"source":"kraken","asset":"BTCUSD","timestamp":"2024-03-01T12:00:00Z","bids":[],"asks":[]}`)
	select {
	case msg := <-mgr.MessageChan():
		assert.Equal(t, "kraken", msg.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("no message after reconnect")
	}
}

func TestManager_Close(t *testing.T) {
	feed := newFakeFeed(t)
	mgr := New(testConfig(feed.url()))
	require.NoError(t, mgr.Start())

	require.NoError(t, mgr.Close())

	_, open := <-mgr.MessageChan()
	assert.False(t, open, "message channel closed")
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    []string
		wantErr bool
	}{
		{name: "empty", frame: "  ", want: nil},
		{name: "heartbeat-array", frame: "[]", want: []string{}},
		{name: "control-message", frame: `{"type":"heartbeat"}`, want: nil},
		{
			name:  "single",
			frame: `{"source":"kraken","asset":"BTCUSD","timestamp":"2024-03-01T12:00:00Z"}`,
			want:  []string{"kraken"},
		},
		{
			name:  "array-skips-null",
			frame: `[{"source":"a","asset":"X"},null,{"source":"b","asset":"Y"}]`,
			want:  []string{"a", "b"},
		},
		{name: "malformed", frame: `{"source":`, wantErr: true},
		{name: "not-json", frame: `PONG`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := decodeFrame([]byte(tt.frame))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			if tt.want == nil {
				assert.Empty(t, msgs)
				return
			}
			sources := make([]string, 0, len(msgs))
			for _, m := range msgs {
				sources = append(sources, m.Source)
			}
			assert.Equal(t, tt.want, sources)
		})
	}
}
