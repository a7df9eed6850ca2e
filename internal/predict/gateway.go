// internal/predict/gateway.go

// Package predict is the client for the external sketch recognition service.
// When the service is unreachable the gateway degrades to a deterministic
// offline ranking so a round can always be settled.
package predict

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Prediction is one ranked label from the oracle, confidence on the unit
// interval. The service reports percentages in some deployments; the gateway
// normalizes at the boundary so nothing upstream ever sees a mixed scale.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Result is a full classification outcome. Fallback is true when the labels
// came from the offline ranking rather than the service.
type Result struct {
	Labels   []Prediction `json:"labels"`
	Fallback bool         `json:"fallback"`
}

// Config tunes the gateway's retry behavior.
type Config struct {
	BaseURL        string
	AttemptTimeout time.Duration
	MaxAttempts    int
	Backoff        time.Duration // linear: attempt n waits n*Backoff
	TopK           int
}

func (c *Config) withDefaults() {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 3 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 200 * time.Millisecond
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
}

// Gateway calls the recognition service over HTTP.
type Gateway struct {
	cfg        Config
	client     *http.Client
	logger     *logrus.Logger
	categories []string
}

// NewGateway builds a gateway over the given category set, which is the label
// universe for the offline fallback ranking.
func NewGateway(cfg Config, categories []string, logger *logrus.Logger) *Gateway {
	cfg.withDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	owned := make([]string, len(categories))
	copy(owned, categories)
	return &Gateway{
		cfg:        cfg,
		client:     &http.Client{},
		logger:     logger,
		categories: owned,
	}
}

// recognizeRequest mirrors the service's JSON body.
type recognizeRequest struct {
	ImageData string `json:"image_data"`
}

// recognizeResponse mirrors the service's envelope. Individual predictions
// may label the class field either "class" or "label" across service
// versions, so both are decoded.
type recognizeResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Predictions struct {
		TopPredictions []struct {
			Class      string  `json:"class"`
			Label      string  `json:"label"`
			Confidence float64 `json:"confidence"`
		} `json:"top_predictions"`
	} `json:"predictions"`
}

// Classify submits a PNG drawing to the recognition service and returns the
// ranked labels. On persistent failure it returns the deterministic fallback
// ranking for (hint, seed) with Fallback set; the error is non-nil only when
// even the fallback cannot be produced.
func (gw *Gateway) Classify(ctx context.Context, image []byte, hint string, seed int64) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= gw.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return gw.fallback(hint, seed), nil
			case <-time.After(time.Duration(attempt-1) * gw.cfg.Backoff):
			}
		}

		labels, err := gw.classifyOnce(ctx, image)
		if err == nil {
			return Result{Labels: labels}, nil
		}
		lastErr = err
		gw.logger.WithError(err).WithField("attempt", attempt).Warn("recognition request failed")

		if ctx.Err() != nil {
			break
		}
	}

	gw.logger.WithError(lastErr).Warn("recognition unavailable, using offline ranking")
	return gw.fallback(hint, seed), nil
}

func (gw *Gateway) classifyOnce(ctx context.Context, image []byte) ([]Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, gw.cfg.AttemptTimeout)
	defer cancel()

	body, err := json.Marshal(recognizeRequest{
		ImageData: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gw.cfg.BaseURL+"/recognize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := gw.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recognize: unexpected status %d", resp.StatusCode)
	}

	var decoded recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !decoded.Success {
		return nil, fmt.Errorf("recognize: service error: %s", decoded.Error)
	}

	raw := decoded.Predictions.TopPredictions
	if len(raw) == 0 {
		return nil, fmt.Errorf("recognize: empty prediction list")
	}

	labels := make([]Prediction, 0, len(raw))
	for _, p := range raw {
		label := p.Class
		if label == "" {
			label = p.Label
		}
		labels = append(labels, Prediction{Label: label, Confidence: normalizeConfidence(p.Confidence)})
	}
	sort.SliceStable(labels, func(i, j int) bool {
		return labels[i].Confidence > labels[j].Confidence
	})
	if len(labels) > gw.cfg.TopK {
		labels = labels[:gw.cfg.TopK]
	}
	return labels, nil
}

// normalizeConfidence maps percentage-scale values onto the unit interval.
// Anything above 1 is taken to be a percentage.
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		c = c / 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// fallback produces the deterministic offline ranking for (hint, seed). The
// same inputs always yield the same ranking, and the hinted word always
// appears in it so a round settled offline still reads sensibly.
func (gw *Gateway) fallback(hint string, seed int64) Result {
	rng := rand.New(rand.NewSource(seed))

	pool := make([]string, 0, len(gw.categories))
	for _, c := range gw.categories {
		if c != hint {
			pool = append(pool, c)
		}
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	k := gw.cfg.TopK
	if k > len(pool)+1 {
		k = len(pool) + 1
	}

	picked := make([]string, 0, k)
	if hint != "" {
		picked = append(picked, hint)
	}
	for _, c := range pool {
		if len(picked) == k {
			break
		}
		picked = append(picked, c)
	}

	// Descending synthetic confidences; the hinted word leads but below the
	// threshold a confident real model would report.
	labels := make([]Prediction, len(picked))
	conf := 0.35 + rng.Float64()*0.15
	for i, label := range picked {
		labels[i] = Prediction{Label: label, Confidence: conf}
		conf *= 0.5 + rng.Float64()*0.25
	}
	return Result{Labels: labels, Fallback: true}
}
