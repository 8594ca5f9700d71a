// Package gate implements the final qualitative entry check. A quantitative
// Signal that survived validation and the technical filter is forwarded to an
// external reasoning service together with market-context descriptors; the
// service answers approve/reject with a confidence and a reason. The gate is
// fail-closed: any transport error, timeout, or malformed response rejects
// the entry, logged distinctly from a legitimate rejection.
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/juanjaure777-art/TRAD/config"
	"github.com/juanjaure777-art/TRAD/logger"
	"github.com/juanjaure777-art/TRAD/metrics"
	"github.com/juanjaure777-art/TRAD/types"
)

const defaultBaseURL = "https://api.anthropic.com/v1/messages"

// MarketContext carries the qualitative descriptors forwarded alongside the
// signal. AlignmentScore is 0-100.
type MarketContext struct {
	Volatility     string
	Momentum       string
	AlignmentScore float64
	OpenPositions  int
}

// Decision is the gate's verdict. Confidence is in [0,1]. ServiceFailed is
// set when the rejection came from an unreachable or malformed service
// rather than a considered "no".
type Decision struct {
	Approved      bool
	Confidence    float64
	Reason        string
	ServiceFailed bool
}

// Gate wraps the external approval service.
type Gate struct {
	cfg     config.GateConfig
	log     logger.Logger
	client  *http.Client
	baseURL string
}

// New builds a Gate from config. A zero BaseURL targets the default
// messages endpoint.
func New(cfg config.GateConfig, log logger.Logger) *Gate {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Gate{
		cfg:     cfg,
		log:     log,
		client:  &http.Client{Timeout: cfg.GateTimeout()},
		baseURL: base,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// verdict is the JSON document the service is instructed to answer with.
// should_enter is accepted as an alias for approved.
type verdict struct {
	Approved    *bool   `json:"approved"`
	ShouldEnter *bool   `json:"should_enter"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

const systemPrompt = `You are a trading entry gatekeeper. You receive one
candidate trade with indicator readings and market context, and must decide
whether to enter.

Selectivity level (1=permissive ... 5=maximally selective) adjusts how strict
you are:
LEVEL 1: accept any setup with reward:risk >= 1 and a directional signal.
LEVEL 2: require reward:risk >= 1.5 and momentum agreeing with the side.
LEVEL 3 (default): require reward:risk >= 2, alignment > 75%, RSI at a
genuine extreme for the side.
LEVEL 4: require reward:risk >= 3, alignment > 85%, low volatility.
LEVEL 5: require reward:risk >= 4, near-perfect alignment, reject anything
marginal.

Higher volatility always raises the effective selectivity. Many open
positions argue against entering.

Respond ONLY with valid JSON, no markdown:
{"approved": true/false, "confidence": 0.0-1.0, "reason": "one line"}`

// Decide submits the signal for approval. It never returns an error: every
// failure mode collapses into a rejection.
func (g *Gate) Decide(ctx context.Context, sig types.Signal, mc MarketContext) Decision {
	if g.cfg.APIKey == "" {
		// No service configured: deliberate offline mode, decided by the
		// deterministic rule. Service failures stay fail-closed.
		return g.fallback(sig, mc)
	}

	text, err := g.call(ctx, g.buildAnalysis(sig, mc))
	if err != nil {
		g.log.Warn("gate_service_failure", logger.Err(err))
		return g.reject(fmt.Sprintf("approval service unavailable: %v", err), true)
	}

	v, err := parseVerdict(text)
	if err != nil {
		g.log.Warn("gate_malformed_response",
			logger.Err(err), logger.String("body", text))
		return g.reject("approval service returned malformed decision", true)
	}

	d := Decision{
		Approved:   v.approved(),
		Confidence: clamp01(v.Confidence),
		Reason:     v.Reason,
	}
	g.record(d)
	return d
}

func (v verdict) approved() bool {
	if v.Approved != nil {
		return *v.Approved
	}
	if v.ShouldEnter != nil {
		return *v.ShouldEnter
	}
	return false
}

// fallback is the deterministic offline rule: approve only when both the
// signal's own confidence and the timeframe alignment clear a floor that
// rises with the selectivity level.
func (g *Gate) fallback(sig types.Signal, mc MarketContext) Decision {
	floor := 40.0 + 10.0*float64(g.cfg.Level)
	approved := sig.Confidence >= floor && mc.AlignmentScore >= floor &&
		mc.OpenPositions == 0
	conf := sig.Confidence
	if mc.AlignmentScore < conf {
		conf = mc.AlignmentScore
	}
	d := Decision{
		Approved:   approved,
		Confidence: clamp01(conf / 100),
		Reason: fmt.Sprintf("deterministic rule (no service): confidence %.0f, alignment %.0f, floor %.0f",
			sig.Confidence, mc.AlignmentScore, floor),
	}
	g.record(d)
	return d
}

// reject produces the fail-closed decision and records it.
func (g *Gate) reject(reason string, serviceFailed bool) Decision {
	d := Decision{Approved: false, Confidence: 0, Reason: reason, ServiceFailed: serviceFailed}
	g.record(d)
	return d
}

func (g *Gate) record(d Decision) {
	outcome := "rejected"
	switch {
	case d.Approved:
		outcome = "approved"
	case d.ServiceFailed:
		outcome = "error"
	}
	metrics.GateDecisions.WithLabelValues("approval", outcome).Inc()
	metrics.GateConfidence.Observe(d.Confidence)
	g.log.Info("gate_decision",
		logger.Bool("approved", d.Approved),
		logger.Float64("confidence", d.Confidence),
		logger.String("reason", d.Reason),
		logger.Bool("service_failed", d.ServiceFailed),
		logger.Int("level", g.cfg.Level))
}

// buildAnalysis renders the compact per-decision message.
func (g *Gate) buildAnalysis(sig types.Signal, mc MarketContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ANALYSIS:\nLevel: %d\nSide: %s\nRSI: %.1f\n", g.cfg.Level, sig.Side, sig.RSI)
	fmt.Fprintf(&b, "Price: %.4f\nEMA: %.2f vs %.2f\n", sig.EntryPrice, sig.EMAFast, sig.EMASlow)
	rr := 0.0
	risk := sig.EntryPrice - sig.StopLoss
	reward := sig.TakeProfit1 - sig.EntryPrice
	if sig.Side == types.Short {
		risk, reward = -risk, -reward
	}
	if risk > 0 {
		rr = reward / risk
	}
	fmt.Fprintf(&b, "R:R: 1:%.1f\nSignal confidence: %.0f/100\n", rr, sig.Confidence)
	fmt.Fprintf(&b, "Open positions: %d\nAlignment: %.0f%%\n", mc.OpenPositions, mc.AlignmentScore)
	if mc.Volatility != "" {
		fmt.Fprintf(&b, "Volatility: %s\n", mc.Volatility)
	}
	if mc.Momentum != "" {
		fmt.Fprintf(&b, "Momentum: %s\n", mc.Momentum)
	}
	if sig.Rationale != "" {
		fmt.Fprintf(&b, "Rationale: %s\n", sig.Rationale)
	}
	return b.String()
}

func (g *Gate) call(ctx context.Context, analysis string) (string, error) {
	req := apiRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		System:      systemPrompt,
		Messages:    []message{{Role: "user", Content: analysis}},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", types.ErrServiceUnavailable, resp.StatusCode)
	}

	var ar apiResponse
	if err := json.Unmarshal(respBody, &ar); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if ar.Error != nil {
		return "", fmt.Errorf("api error: %s: %s", ar.Error.Type, ar.Error.Message)
	}
	if len(ar.Content) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return ar.Content[0].Text, nil
}

// parseVerdict tolerates markdown code fences around the JSON document.
func parseVerdict(text string) (verdict, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		parts := strings.SplitN(text, "```", 3)
		if len(parts) >= 2 {
			text = parts[1]
		}
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimSpace(text)
	}
	var v verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return verdict{}, err
	}
	if v.Approved == nil && v.ShouldEnter == nil {
		return verdict{}, fmt.Errorf("decision missing approved field")
	}
	return v, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
