package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgusMolinaCode/bitlab/internal/models"
)

func dialRealtime(t *testing.T, api *testAPI, token, mode string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime?mode=" + mode + "&token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) realtimeMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var m realtimeMessage
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func waitForSubscriber(t *testing.T, api *testAPI, userID string) {
	t.Helper()
	require.Eventually(t, func() bool { return api.hub.Subscribers(userID) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestRealtime_EventsMode(t *testing.T) {
	api := newTestAPI(t, nil)
	token, userID := api.signup(t, "ana@example.com")
	conn := dialRealtime(t, api, token, "events")
	waitForSubscriber(t, api, userID)

	coin := &models.Coin{UserID: userID, Symbol: "btc", CoinGeckoID: "bitcoin", CurrentPrice: decimal.NewFromInt(1)}
	require.NoError(t, api.coins.Create(context.Background(), coin))

	m := readMessage(t, conn)
	assert.Equal(t, "change", m.Type)
	assert.Equal(t, models.CollectionCoins, m.Collection)
}

func TestRealtime_DashboardMode(t *testing.T) {
	api := newTestAPI(t, nil)
	token, userID := api.signup(t, "ana@example.com")
	conn := dialRealtime(t, api, token, "dashboard")

	first := readMessage(t, conn)
	require.Equal(t, "dashboard", first.Type)
	require.NotNil(t, first.Dashboard)
	assert.Empty(t, first.Dashboard.Coins)

	waitForSubscriber(t, api, userID)
	coin := &models.Coin{UserID: userID, Symbol: "eth", CoinGeckoID: "ethereum", CurrentPrice: decimal.NewFromInt(5)}
	require.NoError(t, api.coins.Create(context.Background(), coin))

	next := readMessage(t, conn)
	require.Equal(t, "dashboard", next.Type)
	assert.Len(t, next.Dashboard.Coins, 1)
}

func TestRealtime_RejectsUnknownModeAndOrigin(t *testing.T) {
	api := newTestAPI(t, nil)
	token, _ := api.signup(t, "ana@example.com")

	w := api.do(t, http.MethodGet, "/realtime?mode=firehose", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	srv := httptest.NewServer(api.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
