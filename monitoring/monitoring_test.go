package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cytodx/errdefs"
	"cytodx/ml"
	"cytodx/serving"
	"cytodx/store"
	"cytodx/testutil"
)

type staticSource struct {
	p *serving.Predictor
}

func (s staticSource) Current() (*serving.Predictor, error) {
	if s.p == nil {
		return nil, fmt.Errorf("%w: no model loaded", errdefs.ErrArtifactNotFound)
	}
	return s.p, nil
}

func newPredictor(t *testing.T) *serving.Predictor {
	t.Helper()
	result, err := ml.Train(testutil.SyntheticDataset(60, 3), ml.DefaultTrainConfig())
	require.NoError(t, err)
	p, err := serving.NewPredictor(&store.Pair{
		Version:  "v-test",
		Model:    result.Model,
		Scaler:   result.Scaler,
		Metadata: store.Metadata{Algorithm: ml.AlgorithmLinear, Metrics: result.Metrics},
	})
	require.NoError(t, err)
	return p
}

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("POST /api/predict", 200, 5*time.Millisecond)
	m.ObserveRequest("POST /api/predict", 400, time.Millisecond)
	m.ObservePrediction("malignant")
	m.ObservePredictionError("invalid_input")
	m.ModelLoaded("v1", "linear", 0.95)
	m.ModelLoaded("v2", "ensemble", 0.97)
	m.ObserveTrainingRun(true)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.requests.WithLabelValues("POST /api/predict", "4xx")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.reloads))
	assert.Equal(t, 0.97, promtest.ToFloat64(m.modelAccuracy))
	assert.Equal(t, 1, promtest.CollectAndCount(m.modelInfo), "old version series removed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `cytodx_model_info{algorithm="ensemble",version="v2"} 1`)
	assert.Contains(t, string(body), `cytodx_predictions_total{label="malignant"} 1`)
}

func TestNilMetricsDiscard(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePrediction("benign")
		m.ModelLoaded("v", "linear", 1)
		m.ClientConnected()
	})
}

func dial(t *testing.T, s *Stream) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamRepliesInOrder(t *testing.T) {
	p := newPredictor(t)
	metrics := NewMetrics()
	s := NewStream(staticSource{p: p}, metrics, nil, []string{"*"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	conn := dial(t, s)
	ds := testutil.SyntheticDataset(6, 9)
	for i, rec := range ds.Records {
		require.NoError(t, conn.WriteJSON(map[string]any{"id": fmt.Sprint(i), "features": rec.Features}))
	}
	require.NoError(t, conn.WriteJSON(map[string]any{"id": "bad", "features": []float64{1, 2}}))

	for i, rec := range ds.Records {
		msg := readMessage(t, conn)
		require.Equal(t, MsgPrediction, msg.Type, msg.Error)
		assert.Equal(t, fmt.Sprint(i), msg.ID)

		var pred serving.Prediction
		require.NoError(t, json.Unmarshal(msg.Data, &pred))
		want, err := p.Predict(rec.Features)
		require.NoError(t, err)
		assert.Equal(t, want, pred)
	}
	msg := readMessage(t, conn)
	assert.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "bad", msg.ID)
	assert.Contains(t, msg.Error, "invalid input")
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.predictErrors.WithLabelValues("invalid_input")))
}

func TestStreamWithoutModel(t *testing.T) {
	s := NewStream(staticSource{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	conn := dial(t, s)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"features":[]}`)))
	msg := readMessage(t, conn)
	assert.Equal(t, MsgError, msg.Type)
	assert.Contains(t, msg.Error, "artifact not found")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	msg = readMessage(t, conn)
	assert.Equal(t, MsgError, msg.Type)
	assert.Contains(t, msg.Error, "invalid request")
}

func TestStreamBroadcastsModelLoaded(t *testing.T) {
	p := newPredictor(t)
	s := NewStream(staticSource{p: p}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	conn := dial(t, s)
	// a reply proves the client is registered before the broadcast
	require.NoError(t, conn.WriteJSON(map[string]any{"features": testutil.Constant(1)}))
	readMessage(t, conn)

	s.ModelLoaded(p)
	msg := readMessage(t, conn)
	require.Equal(t, MsgModelLoaded, msg.Type)
	var event ModelEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, "v-test", event.Version)
	assert.Equal(t, "linear", event.Algorithm)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://lab.example"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://lab.example")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, "invalid_input", ErrorReason(fmt.Errorf("x: %w", errdefs.ErrInvalidInput)))
	assert.Equal(t, "no_model", ErrorReason(errdefs.ErrArtifactNotFound))
	assert.Equal(t, "internal", ErrorReason(io.EOF))
}
