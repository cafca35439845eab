package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/auth"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/events"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/pipeline"
)

const (
	serviceName       = "member-sync"
	subjectContextKey = "member_sync_subject"
	maxPayloadBytes   = 1 << 20

	statusHealthy  = "healthy"
	statusDegraded = "degraded"

	messageInvalidPayload = "Invalid JSON payload"
)

var errMissingNotifier = errors.New("notifier dependency required")

// Notifier processes storage notifications and reports pipeline status.
type Notifier interface {
	HandleNotification(ctx context.Context, payload map[string]any) pipeline.Result
	Status(ctx context.Context) pipeline.Status
}

// BatchRegistrar registers every stored member file.
type BatchRegistrar interface {
	Register(ctx context.Context, request pipeline.RegisterRequest) (pipeline.RegisterReport, error)
}

// RequestAuthorizer validates bearer tokens on protected routes.
type RequestAuthorizer interface {
	ValidateRequest(r *http.Request, scope string) (auth.WebhookClaims, error)
}

// Dependencies wires the router. Registrar and Authorizer are optional; without
// an Authorizer the protected routes are open.
type Dependencies struct {
	Notifier    Notifier
	Registrar   BatchRegistrar
	Authorizer  RequestAuthorizer
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the webhook API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Notifier == nil {
		return nil, errMissingNotifier
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := &httpHandler{
		notifier:   deps.Notifier,
		registrar:  deps.Registrar,
		authorizer: deps.Authorizer,
		logger:     logger,
	}

	router := gin.New()
	router.Use(gin.CustomRecovery(handler.recoverPanic))
	router.Use(corsMiddleware(deps.CORSOrigins))

	router.GET("/", handler.handleHello)
	router.GET("/health", handler.handleHealth)
	router.GET("/webhook/status", handler.handleStatus)

	webhook := router.Group("/webhook")
	webhook.Use(handler.authorize(auth.ScopeWebhook))
	webhook.POST("/file-change", handler.handleFileChange)
	webhook.POST("/test", handler.handleTestWebhook)

	if deps.Registrar != nil {
		admin := router.Group("/members")
		admin.Use(handler.authorize(auth.ScopeRegister))
		admin.POST("/register", handler.handleRegister)
	}

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	notifier   Notifier
	registrar  BatchRegistrar
	authorizer RequestAuthorizer
	logger     *zap.Logger
}

type healthResponse struct {
	Status         string          `json:"status"`
	Service        string          `json:"service"`
	WebhookWatcher pipeline.Status `json:"webhook_watcher"`
}

func (h *httpHandler) handleHello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello from " + serviceName + "!", "status": statusHealthy})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	status := h.notifier.Status(c.Request.Context())
	response := healthResponse{Status: statusHealthy, Service: serviceName, WebhookWatcher: status}
	if !status.Healthy() {
		response.Status = statusDegraded
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": h.notifier.Status(c.Request.Context())})
}

func (h *httpHandler) handleFileChange(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxPayloadBytes))
	if err != nil {
		h.logger.Warn("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, failureResult(messageInvalidPayload, err))
		return
	}
	payload, err := events.DecodePayload(body)
	if err != nil {
		h.logger.Warn("rejected webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, failureResult(messageInvalidPayload, err))
		return
	}

	result := h.notifier.HandleNotification(c.Request.Context(), payload)
	c.JSON(resultStatusCode(result), result)
}

func (h *httpHandler) handleTestWebhook(c *gin.Context) {
	result := h.notifier.HandleNotification(c.Request.Context(), testPayload())
	c.JSON(http.StatusOK, gin.H{"message": "Test webhook processed", "result": result})
}

type registerRequestPayload struct {
	Mode  string   `json:"mode"`
	Kinds []string `json:"kinds"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	mode, err := pipeline.ParseMode(request.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_mode", "detail": err.Error()})
		return
	}
	kinds := make([]members.Kind, 0, len(request.Kinds))
	for _, rawKind := range request.Kinds {
		kind, err := members.ParseKind(rawKind)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind", "detail": err.Error()})
			return
		}
		kinds = append(kinds, kind)
	}

	report, err := h.registrar.Register(c.Request.Context(), pipeline.RegisterRequest{Kinds: kinds, Mode: mode})
	if err != nil {
		var batchErr *pipeline.BatchError
		if errors.As(err, &batchErr) {
			errorsList := report.Errors
			if len(errorsList) == 0 {
				errorsList = []string{batchErr.Error()}
			}
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "registration_failed", "mode": mode, "errors": errorsList})
			return
		}
		h.logger.Error("batch registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *httpHandler) authorize(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.authorizer == nil {
			c.Next()
			return
		}
		claims, err := h.authorizer.ValidateRequest(c.Request, scope)
		if err != nil {
			h.logger.Warn("token validation failed", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(subjectContextKey, claims.Subject)
		c.Next()
	}
}

func (h *httpHandler) recoverPanic(c *gin.Context, recovered any) {
	err := fmt.Errorf("%v", recovered)
	h.logger.Error("request panicked", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, failureResult("Internal server error: "+err.Error(), err))
}

func resultStatusCode(result pipeline.Result) int {
	if result.Success {
		return http.StatusOK
	}
	return http.StatusBadRequest
}

func failureResult(message string, err error) pipeline.Result {
	return pipeline.Result{
		Success:        false,
		Message:        message,
		ProcessedFiles: []string{},
		Errors:         []string{err.Error()},
	}
}
