// internal/predict/gateway_test.go
package predict

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCategories = []string{
	"apple", "airplane", "cat", "bicycle", "dog", "car", "fish",
	"house", "tree", "bird", "banana", "pencil", "flower", "sun",
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestGateway(baseURL string) *Gateway {
	return NewGateway(Config{
		BaseURL:        baseURL,
		AttemptTimeout: 200 * time.Millisecond,
		MaxAttempts:    2,
		Backoff:        5 * time.Millisecond,
	}, testCategories, quietLogger())
}

func serviceResponse(preds ...map[string]any) map[string]any {
	return map[string]any{
		"success": true,
		"predictions": map[string]any{
			"top_predictions": preds,
		},
	}
}

func TestClassifyParsesAndSortsPredictions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/recognize", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req["image_data"])

		json.NewEncoder(w).Encode(serviceResponse(
			map[string]any{"class": "dog", "confidence": 0.12},
			map[string]any{"class": "cat", "confidence": 0.81},
			map[string]any{"class": "fish", "confidence": 0.07},
		))
	}))
	defer srv.Close()

	gw := newTestGateway(srv.URL)
	res, err := gw.Classify(context.Background(), []byte("png-bytes"), "cat", 1)
	require.NoError(t, err)

	assert.False(t, res.Fallback)
	require.Len(t, res.Labels, 3)
	assert.Equal(t, "cat", res.Labels[0].Label)
	assert.InDelta(t, 0.81, res.Labels[0].Confidence, 1e-9)
}

func TestClassifyNormalizesPercentageScale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(serviceResponse(
			map[string]any{"label": "tree", "confidence": 92.5},
			map[string]any{"label": "house", "confidence": 4.25},
		))
	}))
	defer srv.Close()

	gw := newTestGateway(srv.URL)
	res, err := gw.Classify(context.Background(), []byte("png"), "tree", 1)
	require.NoError(t, err)

	require.Len(t, res.Labels, 2)
	assert.InDelta(t, 0.925, res.Labels[0].Confidence, 1e-9)
	assert.InDelta(t, 0.0425, res.Labels[1].Confidence, 1e-9)
	// "label" is accepted where older deployments say "class".
	assert.Equal(t, "tree", res.Labels[0].Label)
}

func TestClassifyRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(serviceResponse(
			map[string]any{"class": "sun", "confidence": 0.7},
		))
	}))
	defer srv.Close()

	gw := newTestGateway(srv.URL)
	res, err := gw.Classify(context.Background(), []byte("png"), "sun", 1)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassifyFallsBackWhenServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	srv.Close() // refuse connections outright

	gw := newTestGateway(srv.URL)
	res, err := gw.Classify(context.Background(), []byte("png"), "bicycle", 99)
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	require.NotEmpty(t, res.Labels)
	assert.Equal(t, "bicycle", res.Labels[0].Label, "hinted word leads the offline ranking")
	for i := 1; i < len(res.Labels); i++ {
		assert.LessOrEqual(t, res.Labels[i].Confidence, res.Labels[i-1].Confidence)
	}
}

func TestFallbackIsDeterministicPerSeed(t *testing.T) {
	gw := newTestGateway("http://127.0.0.1:0")

	a := gw.fallback("cat", 42)
	b := gw.fallback("cat", 42)
	assert.Equal(t, a, b)

	c := gw.fallback("cat", 43)
	assert.NotEqual(t, a.Labels, c.Labels)
}

func TestClassifyRejectsServiceErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "no model loaded"})
	}))
	defer srv.Close()

	gw := newTestGateway(srv.URL)
	res, err := gw.Classify(context.Background(), []byte("png"), "dog", 7)
	require.NoError(t, err)
	assert.True(t, res.Fallback, "an error envelope counts as unavailability")
}

func TestClassifyHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw := newTestGateway(srv.URL)
	res, err := gw.Classify(ctx, []byte("png"), "fish", 7)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
}

func TestTopKTruncation(t *testing.T) {
	preds := make([]map[string]any, 10)
	for i := range preds {
		preds[i] = map[string]any{"class": testCategories[i], "confidence": float64(10-i) / 10}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(serviceResponse(preds...))
	}))
	defer srv.Close()

	gw := NewGateway(Config{BaseURL: srv.URL, TopK: 3}, testCategories, quietLogger())
	res, err := gw.Classify(context.Background(), []byte("png"), "", 1)
	require.NoError(t, err)
	assert.Len(t, res.Labels, 3)
}
