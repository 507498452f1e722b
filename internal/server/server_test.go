package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/tradesim/internal/config"
	"github.com/aristath/tradesim/internal/di"
	"github.com/aristath/tradesim/internal/events"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func setupServer(t *testing.T) (*httptest.Server, *di.Container) {
	t.Helper()

	cfg := &config.Config{
		DataDir:              t.TempDir(),
		Port:                 8001,
		DevMode:              true,
		CommissionFlat:       decimal.RequireFromString("7.95"),
		MarginLeverage:       decimal.NewFromInt(2),
		OrderLifetime:        24 * time.Hour,
		AnalysisSchedule:     "@daily",
		AnalysisLookbackDays: 1,
		SettlementSchedule:   "@hourly",
	}
	container, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)

	s := New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,
	})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		container.Close()
	})
	return ts, container
}

func TestServer_Health(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "tradesim", body["service"])
}

func TestServer_ModuleRoutesMounted(t *testing.T) {
	ts, _ := setupServer(t)

	for _, path := range []string{
		"/api/orders",
		"/api/brokerage/orders",
		"/api/portfolio/holdings",
		"/api/portfolio/summary",
		"/api/prices",
		"/api/jobs",
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestServer_SystemStatus(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/system/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body SystemStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Positive(t, body.Goroutines)
	require.NotNil(t, body.Database)
	assert.Equal(t, "orders", body.Database.Name)
	assert.True(t, body.Database.Healthy)
}

func TestServer_Jobs(t *testing.T) {
	ts, container := setupServer(t)

	var generated []*events.Event
	container.EventBus.Subscribe(events.OrdersGenerated, func(e *events.Event) {
		generated = append(generated, e)
	})

	resp, err := http.Post(ts.URL+"/api/jobs/analysis", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, generated, 1)

	resp, err = http.Post(ts.URL+"/api/jobs/settlement", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/jobs/backup", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Jobs []struct {
			Name string `json:"name"`
			Runs int    `json:"runs"`
		} `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Jobs, 3)
	assert.Equal(t, "analysis", body.Jobs[0].Name)
	assert.Equal(t, 1, body.Jobs[0].Runs)
}

func TestServer_WebSocketStream(t *testing.T) {
	ts, container := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/ws?types=PRICE_UPDATED"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg streamMessage
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "connected", msg.Type)

	// Filtered out
	container.EventManager.EmitTyped("trading", &events.OrderCancelledData{OrderID: "x"})
	container.EventManager.EmitTyped("historical", &events.PriceUpdatedData{Ticker: "AAPL", Points: 3})

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, string(events.PriceUpdated), msg.Type)
	assert.Equal(t, "historical", msg.Module)
	assert.Equal(t, "AAPL", msg.Data["ticker"])
}

func TestServer_WebSocketUnsubscribesOnClose(t *testing.T) {
	ts, container := setupServer(t)
	bus := container.EventBus
	before := bus.SubscriberCount(events.OrderFilled)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events/ws", nil)
	require.NoError(t, err)
	_, _, err = conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, bus.SubscriberCount(events.OrderFilled))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool {
		return bus.SubscriberCount(events.OrderFilled) == before
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServer_SSEStream(t *testing.T) {
	ts, container := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() streamMessage {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var msg streamMessage
				require.NoError(t, json.Unmarshal([]byte(payload), &msg))
				return msg
			}
		}
	}

	assert.Equal(t, "connected", next().Type)

	container.EventManager.EmitTyped("analysis", &events.OrdersGeneratedData{Count: 2})
	msg := next()
	assert.Equal(t, string(events.OrdersGenerated), msg.Type)
	assert.Equal(t, float64(2), msg.Data["count"])
}
