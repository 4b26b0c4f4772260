package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oleg-kozlyuk-grafana/go-webhooksig/internal/metrics"
	"github.com/oleg-kozlyuk-grafana/go-webhooksig/internal/queue"
	"github.com/oleg-kozlyuk-grafana/go-webhooksig/signature"
)

const (
	defaultHeaderName   = "Stripe-Signature"
	defaultMaxBodyBytes = 65536
)

// HandlerConfig configures a WebhookHandler.
type HandlerConfig struct {
	// Secrets are tried in order until one verifies
	Secrets [][]byte

	// DisableVerification accepts every delivery unchecked (dev only)
	DisableVerification bool

	// Tolerance bounds |now - t|; zero disables the check
	Tolerance time.Duration

	HeaderName   string
	MaxBodyBytes int64

	Queue   queue.MessageQueue
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Now is overridable for tests
	Now func() time.Time
}

// WebhookHandler verifies signed deliveries and publishes them to the queue.
type WebhookHandler struct {
	cfg HandlerConfig
}

// NewWebhookHandler validates cfg and fills in defaults.
func NewWebhookHandler(cfg HandlerConfig) (*WebhookHandler, error) {
	if cfg.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if !cfg.DisableVerification && len(cfg.Secrets) == 0 {
		return nil, errors.New("at least one secret is required")
	}
	if cfg.Tolerance < 0 {
		return nil, errors.New("tolerance must not be negative")
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = defaultHeaderName
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.DisableVerification {
		cfg.Logger.Warn("signature verification is disabled; every delivery will be accepted")
	}

	return &WebhookHandler{cfg: cfg}, nil
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.cfg.Logger.With("request_id", RequestIDFromContext(r.Context()))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("delivery rejected", "reason", "body too large", "limit", tooLarge.Limit)
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		logger.Warn("delivery rejected", "reason", "unreadable body", "error", err)
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	receivedAt := h.cfg.Now()
	signedAt := receivedAt

	if !h.cfg.DisableVerification {
		var status int
		signedAt, status = h.verify(logger, r.Header.Get(h.cfg.HeaderName), body, receivedAt)
		if status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
	}

	event := queue.NewEvent(body, signedAt, receivedAt)
	if err := h.cfg.Queue.Publish(r.Context(), event); err != nil {
		h.cfg.Metrics.PublishErrors.Inc()
		logger.Error("failed to publish event", "event_id", event.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "event could not be queued")
		return
	}

	logger.Info("delivery accepted", "event_id", event.ID, "bytes", len(body))
	writeJSON(w, http.StatusAccepted, map[string]string{"id": event.ID})
}

// verify checks header against every secret and then the timestamp window.
// It returns the signed time and 0 on success, or the status to reply with.
func (h *WebhookHandler) verify(logger *slog.Logger, header string, body []byte, now time.Time) (time.Time, int) {
	if header == "" {
		h.cfg.Metrics.Observe(metrics.ResultMalformed)
		logger.Warn("delivery rejected", "reason", "missing signature header", "header", h.cfg.HeaderName)
		return time.Time{}, http.StatusBadRequest
	}

	matched := false
	for _, secret := range h.cfg.Secrets {
		ok, err := signature.Verify(secret, header, body)
		if err != nil {
			// structure doesn't depend on the secret
			h.cfg.Metrics.Observe(metrics.ResultMalformed)
			logger.Warn("delivery rejected", "reason", "malformed signature header", "error", err)
			return time.Time{}, http.StatusBadRequest
		}
		if ok {
			matched = true
			break
		}
	}
	if !matched {
		h.cfg.Metrics.Observe(metrics.ResultInvalid)
		logger.Warn("delivery rejected", "reason", "signature mismatch")
		return time.Time{}, http.StatusUnauthorized
	}

	// Verify accepted the header, so it parses
	parsed, _ := signature.ParseHeader(header)
	signedAt, tsErr := parsed.Timestamp()

	if h.cfg.Tolerance > 0 {
		if tsErr != nil {
			h.cfg.Metrics.Observe(metrics.ResultMalformed)
			logger.Warn("delivery rejected", "reason", "unparseable timestamp", "error", tsErr)
			return time.Time{}, http.StatusBadRequest
		}
		if skew := now.Sub(signedAt).Abs(); skew > h.cfg.Tolerance {
			h.cfg.Metrics.Observe(metrics.ResultExpired)
			logger.Warn("delivery rejected", "reason", "timestamp outside tolerance", "skew", skew.String())
			return time.Time{}, http.StatusUnauthorized
		}
	}
	if tsErr != nil {
		signedAt = now
	}

	h.cfg.Metrics.Observe(metrics.ResultValid)
	return signedAt, 0
}
