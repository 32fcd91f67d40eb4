// Package webhook is the inbound HTTP boundary: it terminates the platform
// verification handshake, authenticates event deliveries, and hands decoded
// payloads to the inbox router. The contract with the platform is "don't
// block the ack": once a body parses, the handler returns 200 regardless of
// per-target processing outcomes, so a partially-failed batch is never
// retried into a storm.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/unibox/internal/config"
	"github.com/nextlevelbuilder/unibox/internal/events"
	"github.com/nextlevelbuilder/unibox/internal/store"
)

const maxBodyBytes = 1 << 20

// Processor consumes normalized deliveries. Implemented by inbox.Router.
type Processor interface {
	ProcessDelivery(ctx context.Context, d *events.Delivery)
}

// Server is the webhook HTTP server.
type Server struct {
	cfg         config.WebhookConfig
	processor   Processor
	rateLimiter *RateLimiter
	tracer      trace.Tracer

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates the webhook server.
func NewServer(cfg config.WebhookConfig, processor Processor) *Server {
	s := &Server{
		cfg:         cfg,
		processor:   processor,
		rateLimiter: NewRateLimiter(cfg.RateLimitRPM),
		tracer:      otel.Tracer("unibox/webhook"),
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /webhooks/{platform}", s.handleVerify)
	s.mux.HandleFunc("POST /webhooks/{platform}", s.handleDelivery)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start begins serving on addr. Non-blocking; errors surface on the
// returned channel.
func (s *Server) Start(host string, port int) <-chan error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("webhook.listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func platformFromPath(r *http.Request) (store.Platform, bool) {
	switch r.PathValue("platform") {
	case "facebook":
		return store.PlatformFacebook, true
	case "instagram":
		return store.PlatformInstagram, true
	default:
		return "", false
	}
}

// handleVerify terminates the GET verification handshake: echo the
// challenge on a token match, 403 otherwise.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	platform, ok := platformFromPath(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	echo, ok := VerifyChallenge(mode, token, challenge, s.cfg.VerifyToken)
	if !ok {
		slog.Warn("webhook.verify_rejected", "platform", platform, "mode", mode, "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	slog.Info("webhook.verified", "platform", platform)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, echo)
}

// handleDelivery accepts a POST event batch. Only authentication failures
// and unparseable bodies affect the status code; everything downstream is
// best-effort and isolated per fan-out leg.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	platform, ok := platformFromPath(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if !s.rateLimiter.Allow(clientKey(r)) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "webhook.delivery")
	defer span.End()
	span.SetAttributes(attribute.String("platform", string(platform)))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), s.cfg.AppSecret) {
	case SignatureInvalid:
		slog.Warn("webhook.signature_rejected", "platform", platform, "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case SignatureMissing:
		// Platforms vary in whether they sign feed vs. messaging events;
		// degraded trust is logged, not blocked.
		slog.Debug("webhook.signature_missing", "platform", platform)
	case SignatureValid:
	}

	delivery, err := events.Parse(platform, body)
	if err != nil {
		slog.Warn("webhook.unparseable", "platform", platform, "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	span.SetAttributes(attribute.Int("entries", len(delivery.Entries)))
	s.processor.ProcessDelivery(ctx, delivery)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("webhook.write_response", "error", err)
	}
}
