package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"
)

type recordingUpdater struct {
	mu      sync.Mutex
	batches [][]domain.PriceUpdate
	got     chan struct{}
}

func newRecordingUpdater() *recordingUpdater {
	return &recordingUpdater{got: make(chan struct{}, 8)}
}

func (r *recordingUpdater) PropagateBatch(_ context.Context, updates []domain.PriceUpdate) domain.PropagationResult {
	r.mu.Lock()
	r.batches = append(r.batches, updates)
	r.mu.Unlock()
	r.got <- struct{}{}
	return domain.PropagationResult{Updated: []domain.Position{}, Failures: []domain.PropagationFailure{}}
}

func (r *recordingUpdater) Batches() [][]domain.PriceUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]domain.PriceUpdate(nil), r.batches...)
}

func TestDecodeFrame_JSONObject(t *testing.T) {
	updates, rejected, err := DecodeFrame(websocket.MessageText, []byte(`{"symbol":" btc ","price":41000.25}`))
	require.NoError(t, err)
	assert.Empty(t, rejected)
	require.Len(t, updates, 1)
	assert.Equal(t, "BTC", updates[0].Symbol)
	assert.True(t, decimal.RequireFromString("41000.25").Equal(updates[0].Price))
}

func TestDecodeFrame_JSONArray(t *testing.T) {
	frame := `[{"symbol":"BTC","price":"41000"},{"symbol":"ETH","price":2100}]`
	updates, rejected, err := DecodeFrame(websocket.MessageText, []byte(frame))
	require.NoError(t, err)
	assert.Empty(t, rejected)
	require.Len(t, updates, 2)
	assert.Equal(t, "BTC", updates[0].Symbol)
	assert.Equal(t, "ETH", updates[1].Symbol)
	assert.True(t, decimal.NewFromInt(2100).Equal(updates[1].Price))
}

func TestDecodeFrame_MsgpackObject(t *testing.T) {
	data, err := msgpack.Marshal(map[string]interface{}{"symbol": "sol", "price": 150.5})
	require.NoError(t, err)

	updates, rejected, err := DecodeFrame(websocket.MessageBinary, data)
	require.NoError(t, err)
	assert.Empty(t, rejected)
	require.Len(t, updates, 1)
	assert.Equal(t, "SOL", updates[0].Symbol)
	assert.True(t, decimal.RequireFromString("150.5").Equal(updates[0].Price))
}

func TestDecodeFrame_MsgpackArray(t *testing.T) {
	data, err := msgpack.Marshal([]map[string]interface{}{
		{"symbol": "BTC", "price": 40000},
		{"symbol": "ETH", "price": "2000.10"},
	})
	require.NoError(t, err)

	updates, rejected, err := DecodeFrame(websocket.MessageBinary, data)
	require.NoError(t, err)
	assert.Empty(t, rejected)
	require.Len(t, updates, 2)
	assert.True(t, decimal.NewFromInt(40000).Equal(updates[0].Price))
	assert.True(t, decimal.RequireFromString("2000.1").Equal(updates[1].Price))
}

func TestDecodeFrame_UnreadableFrame(t *testing.T) {
	tests := []struct {
		name    string
		msgType websocket.MessageType
		frame   string
	}{
		{"malformed json", websocket.MessageText, `{"symbol":`},
		{"scalar", websocket.MessageText, `42`},
		{"malformed msgpack", websocket.MessageBinary, "\xc1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeFrame(tt.msgType, []byte(tt.frame))
			assert.Error(t, err)
		})
	}
}

func TestDecodeFrame_InvalidItemIsRejected(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		symbol string
	}{
		{"missing symbol", `{"price":1}`, ""},
		{"blank symbol", `{"symbol":"  ","price":1}`, ""},
		{"missing price", `{"symbol":"BTC"}`, "BTC"},
		{"negative price", `{"symbol":"btc","price":-1}`, "BTC"},
		{"non-numeric price", `{"symbol":"BTC","price":"abc"}`, "BTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updates, rejected, err := DecodeFrame(websocket.MessageText, []byte(tt.frame))
			require.NoError(t, err)
			assert.Empty(t, updates)
			require.Len(t, rejected, 1)
			assert.Equal(t, tt.symbol, rejected[0].Symbol)
			assert.Equal(t, domain.CodeInvalidInput, rejected[0].Code)
			assert.ErrorIs(t, rejected[0].Err, domain.ErrInvalidInput)
		})
	}
}

func TestDecodeFrame_MixedArrayKeepsValidItems(t *testing.T) {
	frame := `[{"symbol":"BTC","price":50000},{"symbol":"ETH","price":"abc"},"x",{"symbol":"SOL","price":"150"}]`

	updates, rejected, err := DecodeFrame(websocket.MessageText, []byte(frame))
	require.NoError(t, err)

	require.Len(t, updates, 2)
	assert.Equal(t, "BTC", updates[0].Symbol)
	assert.True(t, decimal.NewFromInt(50000).Equal(updates[0].Price))
	assert.Equal(t, "SOL", updates[1].Symbol)

	require.Len(t, rejected, 2)
	assert.Equal(t, "ETH", rejected[0].Symbol)
	assert.Contains(t, rejected[0].Message, "invalid price for ETH")
	assert.Empty(t, rejected[1].Symbol)
}

func TestCalculateBackoff(t *testing.T) {
	c := NewClient("ws://feed", newRecordingUpdater(), zerolog.Nop())

	assert.Equal(t, 5*time.Second, c.calculateBackoff(1))
	assert.Equal(t, 10*time.Second, c.calculateBackoff(2))
	assert.Equal(t, 40*time.Second, c.calculateBackoff(4))
	assert.Equal(t, maxReconnectDelay, c.calculateBackoff(20))
}

func TestStart_DisabledWithoutURL(t *testing.T) {
	c := NewClient("", newRecordingUpdater(), zerolog.Nop())

	assert.False(t, c.Enabled())
	assert.ErrorIs(t, c.Start(context.Background()), ErrDisabled)
	c.Stop()
}

func TestClient_ForwardsFramesToUpdater(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"symbol":"BTC","price":41000}`))
		packed, _ := msgpack.Marshal([]map[string]interface{}{{"symbol": "ETH", "price": 2100}})
		_ = conn.Write(ctx, websocket.MessageBinary, packed)

		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	updater := newRecordingUpdater()
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), updater, zerolog.Nop())
	c.baseDelay = 10 * time.Millisecond

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-updater.got:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for price frames")
		}
	}

	batches := updater.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, "BTC", batches[0][0].Symbol)
	assert.Equal(t, "ETH", batches[1][0].Symbol)

	status := c.Status()
	assert.True(t, status.Enabled)
	assert.Equal(t, int64(2), status.Received)
}

func TestHandleMessage_ForwardsOnlyValidItems(t *testing.T) {
	updater := newRecordingUpdater()
	c := NewClient("ws://feed", updater, zerolog.Nop())

	frame := `[{"symbol":"BTC","price":50000},{"symbol":"ETH","price":"abc"}]`
	require.NoError(t, c.handleMessage(context.Background(), websocket.MessageText, []byte(frame)))

	batches := updater.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "BTC", batches[0][0].Symbol)
	assert.Equal(t, int64(1), c.Status().Received)
}

func TestHandleMessage_AllItemsRejectedSkipsPropagation(t *testing.T) {
	updater := newRecordingUpdater()
	c := NewClient("ws://feed", updater, zerolog.Nop())

	require.NoError(t, c.handleMessage(context.Background(), websocket.MessageText, []byte(`[{"symbol":"ETH"}]`)))
	assert.Empty(t, updater.Batches())
}
