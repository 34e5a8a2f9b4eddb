package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

const (
	metricsService   = "api"
	maxJSONBodyBytes = 1 << 20
)

// Services are the inbound ports served over HTTP.
type Services struct {
	Ingest     ports.DocumentIngestor
	Documents  ports.DocumentService
	Router     ports.DocumentRouter
	Deliveries ports.DeliveryService
	Rules      ports.RuleService
	Queues     ports.QueueService
	Tenants    ports.TenantService
	Verifier   ports.WebhookVerifier
}

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

type Router struct {
	cfg     config.Config
	svc     Services
	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger
}

func NewRouter(cfg config.Config, svc Services, opts ...Option) *Router {
	rt := &Router{
		cfg:    cfg,
		svc:    svc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Handler builds the full middleware chain. It panics when request
// validation is enabled and the embedded OpenAPI document is broken.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents", rt.searchDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("POST /v1/documents/{id}/retry", rt.retryDocument)
	mux.HandleFunc("POST /v1/documents/{id}/route", rt.routeDocument)
	mux.HandleFunc("POST /v1/documents/{id}/tags", rt.addDocumentTag)
	mux.HandleFunc("DELETE /v1/documents/{id}/tags/{name}", rt.removeDocumentTag)
	mux.HandleFunc("POST /v1/documents/{id}/ai-suggestions", rt.generateSuggestion)
	mux.HandleFunc("POST /v1/documents/{id}/ai-suggestions/apply", rt.applySuggestion)
	mux.HandleFunc("GET /v1/documents/{id}/deliveries", rt.listDocumentDeliveries)
	mux.HandleFunc("POST /v1/deliveries/{id}/retry", rt.retryDelivery)

	mux.HandleFunc("POST /v1/rules", rt.createRule)
	mux.HandleFunc("GET /v1/rules", rt.listRules)
	mux.HandleFunc("POST /v1/rules/dry-run", rt.dryRunRules)
	mux.HandleFunc("PUT /v1/rules/{id}", rt.updateRule)
	mux.HandleFunc("POST /v1/rules/{id}/activate", rt.setRuleActive(true))
	mux.HandleFunc("POST /v1/rules/{id}/deactivate", rt.setRuleActive(false))

	mux.HandleFunc("POST /v1/queues", rt.createQueue)
	mux.HandleFunc("GET /v1/queues", rt.listQueues)
	mux.HandleFunc("POST /v1/queues/{id}/activate", rt.setQueueActive(true))
	mux.HandleFunc("POST /v1/queues/{id}/deactivate", rt.setQueueActive(false))

	mux.HandleFunc("POST /v1/webhooks/verify", rt.verifyWebhook)
	mux.HandleFunc("GET /v1/tenants/usage", rt.tenantUsage)

	var handler http.Handler = mux
	if rt.cfg.APIValidateRequests {
		validator, err := newRequestValidator()
		if err != nil {
			panic(err)
		}
		handler = validator.middleware(handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(metricsService, handler)
	}
	handler = accessLogMiddleware(handler, rt.logger)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		rt.logger.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			message = "internal server error"
		}
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("request body is required"))
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

// decodeOptionalJSON accepts an empty body and leaves dst untouched then.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

func pathID(r *http.Request, name string) (string, error) {
	value := strings.TrimSpace(r.PathValue(name))
	if value == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "path", fmt.Errorf("%s is required", name))
	}
	return value, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
