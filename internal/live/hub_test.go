package live

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/orderdesk/internal/cache"
	"github.com/jogardn/orderdesk/internal/query"
	"github.com/jogardn/orderdesk/internal/store"
	"github.com/jogardn/orderdesk/pkg/models"
)

type wireSnapshot struct {
	Status     string       `json:"status"`
	Params     query.Params `json:"params"`
	TotalCount int          `json:"total_count"`
	Error      string       `json:"error"`
}

type wireMessage struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	Source string          `json:"source"`
}

func insert(t *testing.T, mem *store.Memory, customer string) {
	t.Helper()
	_, err := mem.Insert(context.Background(), models.OrderFormData{
		ProductName:     "Widget",
		CustomerName:    customer,
		Quantity:        1,
		PricePerUnit:    decimal.NewFromInt(5),
		DeliveryAddress: "1 Main St",
		Status:          models.StatusCreated,
	})
	require.NoError(t, err)
}

func startHub(t *testing.T, mem *store.Memory) (*Hub, string) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	hub := NewHub(query.NewFetcher(mem, cache.Nop{}, time.Minute, logger), "test-instance", logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// next reads until a message of type typ satisfies match.
func next(t *testing.T, conn *websocket.Conn, typ string, match func(wireMessage) bool) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var m wireMessage
		require.NoError(t, conn.ReadJSON(&m))
		if m.Type == typ && (match == nil || match(m)) {
			return m
		}
	}
}

func idleSnapshot(t *testing.T, conn *websocket.Conn, match func(wireSnapshot) bool) wireSnapshot {
	t.Helper()
	var snap wireSnapshot
	next(t, conn, "snapshot", func(m wireMessage) bool {
		var s wireSnapshot
		require.NoError(t, json.Unmarshal(m.Data, &s))
		if s.Status != "idle" || (match != nil && !match(s)) {
			return false
		}
		snap = s
		return true
	})
	return snap
}

func TestInitialSnapshotAndSearchIntent(t *testing.T) {
	mem := store.NewMemory()
	insert(t, mem, "Ana Horvat")
	insert(t, mem, "Bob Stone")
	_, url := startHub(t, mem)
	conn := dial(t, url)

	first := idleSnapshot(t, conn, nil)
	assert.Equal(t, 2, first.TotalCount)

	require.NoError(t, conn.WriteJSON(Intent{Type: "search", Search: "ana"}))
	filtered := idleSnapshot(t, conn, func(s wireSnapshot) bool { return s.Params.SearchTerm == "ana" })
	assert.Equal(t, 1, filtered.TotalCount)
	assert.Equal(t, 0, filtered.Params.Page)
}

func TestInvalidateRefreshesSessions(t *testing.T) {
	mem := store.NewMemory()
	insert(t, mem, "Ana Horvat")
	hub, url := startHub(t, mem)
	conn := dial(t, url)
	idleSnapshot(t, conn, nil)

	insert(t, mem, "Carla Diaz")
	hub.Invalidate(context.Background(), models.Invalidation{List: true, Reason: "create"})

	refreshed := idleSnapshot(t, conn, func(s wireSnapshot) bool { return s.TotalCount == 2 })
	assert.Equal(t, 2, refreshed.TotalCount)
}

func TestUnknownIntentReportsError(t *testing.T) {
	_, url := startHub(t, store.NewMemory())
	conn := dial(t, url)
	idleSnapshot(t, conn, nil)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "explode"}))

	m := next(t, conn, "error", nil)
	assert.Contains(t, string(m.Data), "unknown intent")
	assert.Equal(t, "test-instance", m.Source)
}

func TestInvalidPageReportsError(t *testing.T) {
	_, url := startHub(t, store.NewMemory())
	conn := dial(t, url)
	idleSnapshot(t, conn, nil)

	require.NoError(t, conn.WriteJSON(Intent{Type: "page", Page: -3}))

	m := next(t, conn, "error", nil)
	assert.Contains(t, string(m.Data), "Page must be 0 or greater")
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t, store.NewMemory())
	conn := dial(t, url)
	idleSnapshot(t, conn, nil)
	require.Equal(t, 1, hub.ClientCount())

	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}
