package nlq

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/metad/internal/fault"
	"github.com/roach88/metad/internal/metrics"
	"github.com/roach88/metad/internal/oracle"
	"github.com/roach88/metad/internal/protocol"
	"github.com/roach88/metad/internal/query"
)

// Response lines produced by the front-end itself.
const (
	CouldNotParse = "ERR: Could not parse NLQ"
	echoPrefix    = "ECHO: "
)

// Executor runs a structured command.
type Executor interface {
	Execute(ctx context.Context, cmd query.Command) (query.Result, error)
}

// Handler answers NLQ requests.
type Handler struct {
	engine  Executor
	oracle  oracle.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithOracle sets the oracle client. A nil client means unconfigured.
func WithOracle(c oracle.Client) Option {
	return func(h *Handler) {
		h.oracle = c
	}
}

// WithRateLimit caps oracle calls per minute. Requests over the limit use
// the local parser. Zero or less means unlimited.
func WithRateLimit(perMinute int) Option {
	return func(h *Handler) {
		if perMinute <= 0 {
			h.limiter = nil
			return
		}
		h.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

// WithLogger sets the handler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics records oracle outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// New creates a Handler executing commands with engine.
func New(engine Executor, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle answers one free-text request with one response line.
//
// A request that is already a JSON command is executed directly without
// consulting the oracle.
func (h *Handler) Handle(ctx context.Context, text string) (line string) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("nlq panic", "panic", r, "text", text)
			line = CouldNotParse
		}
	}()

	text = strings.TrimSpace(text)
	if text == "" {
		return CouldNotParse
	}

	if strings.HasPrefix(text, "{") {
		if cmd, err := query.ParseCommand([]byte(text)); err == nil {
			return h.execute(ctx, cmd)
		}
	}

	raw, err := h.ask(ctx, text)
	if err != nil {
		h.logger.Debug("oracle unavailable, using keyword parser", "error", err)
		return h.fallback(ctx, text)
	}

	cmd, err := query.ParseCommand([]byte(ExtractCommand(raw)))
	if err != nil {
		h.metrics.OracleRequest(metrics.OracleUnparsed)
		h.logger.Info("oracle output is not a command", "error", err)
		return Echo(raw)
	}
	h.metrics.OracleRequest(metrics.OracleOK)
	return h.execute(ctx, cmd)
}

// ask consults the oracle. Every failure is reported as OracleUnavailable.
func (h *Handler) ask(ctx context.Context, text string) (string, error) {
	if h.oracle == nil {
		return "", fault.New(fault.OracleUnavailable, "oracle not configured")
	}
	if h.limiter != nil && !h.limiter.Allow() {
		h.metrics.OracleRequest(metrics.OracleRateLimited)
		return "", fault.New(fault.OracleUnavailable, "oracle rate limit exceeded")
	}

	raw, err := h.oracle.Ask(ctx, text)
	if err != nil {
		h.metrics.OracleRequest(metrics.OracleError)
		h.logger.Warn("oracle request failed", "error", err)
		if fault.Is(err, fault.OracleUnavailable) {
			return "", err
		}
		return "", fault.Wrap(fault.OracleUnavailable, "oracle request failed", err)
	}
	return raw, nil
}

func (h *Handler) fallback(ctx context.Context, text string) string {
	cmd, err := ParseKeywords(text)
	if err != nil {
		h.logger.Debug("keyword parser found no command", "text", text, "error", err)
		return CouldNotParse
	}
	h.metrics.OracleRequest(metrics.OracleFallback)
	return h.execute(ctx, cmd)
}

func (h *Handler) execute(ctx context.Context, cmd query.Command) string {
	res, err := h.engine.Execute(ctx, cmd)
	if err != nil {
		h.logger.Info("nlq command failed", "action", cmd.Action, "error", err)
		return protocol.ErrorLine(err)
	}
	return res.Line()
}

// Echo tags raw oracle text that was not executed. Line breaks are folded
// so the reply stays on one line.
func Echo(raw string) string {
	return echoPrefix + strings.Join(strings.Fields(raw), " ")
}

// ExtractCommand cuts the JSON command out of oracle text: the body of the
// first fenced code block if there is one, else the span from the first
// '{' to the last '}'. Text without braces is returned trimmed.
func ExtractCommand(raw string) string {
	s := strings.TrimSpace(raw)

	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
