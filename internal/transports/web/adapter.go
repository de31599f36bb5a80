package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"intelterm/internal/core"
	"intelterm/internal/storage"
	"intelterm/internal/transports/common"
)

var ginModeOnce sync.Once

const (
	ctxSubjectID = "subject_id"
	ctxRequestID = "request_id"
)

// TokenEntry описывает web bearer-токен.
type TokenEntry struct {
	ID          string
	TokenSHA256 string
	Subject     string
	Enabled     bool
}

// Config определяет параметры HTTP-транспорта.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	MaxRequestBody  int64
	Tokens          []TokenEntry
	AllowedOrigins  []string
}

// Adapter реализует HTTP transport поверх gin.
type Adapter struct {
	svc    *common.Service
	store  storage.Store
	cfg    Config
	logger *zap.Logger

	tokensByHash map[string]TokenEntry

	mu     sync.Mutex
	server *http.Server
}

type executeRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	// Text - альтернатива command/args в чат-формате: "/intel AI trends".
	Text string `json:"text"`
}

// NewAdapter создает web transport. store может быть nil: тогда
// эндпоинты истории и дайджестов отвечают 503.
func NewAdapter(proc common.Processor, authorizer core.Authorizer, limiter *common.RateLimiter, store storage.Store, cfg Config, logger *zap.Logger) *Adapter {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = 64 << 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tokensByHash := make(map[string]TokenEntry, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		h := strings.ToLower(strings.TrimSpace(token.TokenSHA256))
		if len(h) != 64 {
			continue
		}
		tokensByHash[h] = token
	}

	svc := &common.Service{
		Source:      "web",
		Processor:   proc,
		Authorizer:  authorizer,
		RateLimiter: limiter,
		Logger:      logger,
	}
	if store != nil {
		svc.History = storeWriter{store}
	}

	return &Adapter{
		svc:          svc,
		store:        store,
		cfg:          cfg,
		logger:       logger,
		tokensByHash: tokensByHash,
	}
}

type storeWriter struct{ storage.Store }

func (w storeWriter) Write(ctx context.Context, rec storage.CommandRecord) error {
	return w.SaveCommand(ctx, rec)
}

func (a *Adapter) Name() string { return "web" }

// Start запускает HTTP server и останавливает его при отмене контекста.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.server != nil {
		a.mu.Unlock()
		return errors.New("web transport already started")
	}
	srv := &http.Server{
		Addr:         a.cfg.ListenAddr,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
	}
	a.server = srv
	a.mu.Unlock()

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		_ = a.Stop(stopCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("web transport stopped", zap.String("addr", a.cfg.ListenAddr), zap.Error(err))
		}
	}()
	a.logger.Info("web transport listening", zap.String("addr", a.cfg.ListenAddr))
	return nil
}

// Stop завершает HTTP server.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler собирает gin router, обернутый CORS.
func (a *Adapter) Handler() http.Handler {
	ginModeOnce.Do(func() {
		if gin.Mode() == gin.DebugMode {
			gin.SetMode(gin.ReleaseMode)
		}
	})
	router := gin.New()
	router.Use(gin.Recovery(), a.requestIDMiddleware(), a.accessLogMiddleware())

	router.GET("/v1/health", a.handleHealth)

	v1 := router.Group("/v1", a.timeoutMiddleware(), a.authMiddleware())
	v1.POST("/commands", a.bodyLimitMiddleware(), a.handleExecute)
	v1.GET("/history", a.handleHistory)
	v1.GET("/digests/latest", a.handleLatestDigest)

	corsOpts := cors.Options{
		AllowedOrigins: a.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}
	// Пустой список в rs/cors означает "*"; у нас он означает "никому".
	if len(a.cfg.AllowedOrigins) == 0 {
		corsOpts.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(corsOpts).Handler(router)
}

func (a *Adapter) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := sanitizeRequestID(c.GetHeader("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (a *Adapter) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(ctxRequestID)))
	}
}

func (a *Adapter) timeoutMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), a.cfg.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (a *Adapter) bodyLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.cfg.MaxRequestBody)
		c.Next()
	}
}

func (a *Adapter) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "auth_required")
			return
		}
		token := strings.TrimSpace(authHeader[7:])
		sum := sha256.Sum256([]byte(token))
		entry, ok := a.tokensByHash[hex.EncodeToString(sum[:])]
		if token == "" || !ok || !entry.Enabled || entry.Subject == "" {
			writeError(c, http.StatusUnauthorized, "invalid_token")
			return
		}
		c.Set(ctxSubjectID, entry.Subject)
		c.Next()
	}
}

func (a *Adapter) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (a *Adapter) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_json")
		return
	}
	subject := c.GetString(ctxSubjectID)

	var (
		res core.Result
		err error
	)
	switch {
	case req.Command != "":
		res, err = a.svc.Execute(c.Request.Context(), subject, req.Command, req.Args)
	case strings.TrimSpace(req.Text) != "":
		res, err = a.svc.ExecuteText(c.Request.Context(), subject, req.Text)
	default:
		writeError(c, http.StatusBadRequest, "command_required")
		return
	}

	switch {
	case errors.Is(err, core.ErrAccessDenied):
		writeError(c, http.StatusForbidden, "access_denied")
	case errors.Is(err, common.ErrRateLimited):
		writeError(c, http.StatusTooManyRequests, "rate_limited")
	case err != nil:
		writeError(c, http.StatusBadRequest, "bad_command")
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (a *Adapter) handleHistory(c *gin.Context) {
	if a.store == nil {
		writeError(c, http.StatusServiceUnavailable, "storage_disabled")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	records, err := a.store.QueryHistory(c.Request.Context(), storage.HistoryQuery{
		Subject: c.Query("subject"),
		Limit:   limit,
	})
	if err != nil {
		a.logger.Error("query history", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "storage_error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": records})
}

func (a *Adapter) handleLatestDigest(c *gin.Context) {
	if a.store == nil {
		writeError(c, http.StatusServiceUnavailable, "storage_disabled")
		return
	}
	command := c.DefaultQuery("command", core.CmdIntel.String())
	rec, err := a.store.LatestDigest(c.Request.Context(), command)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(c, http.StatusNotFound, "digest_not_found")
	case err != nil:
		a.logger.Error("latest digest", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "storage_error")
	default:
		c.JSON(http.StatusOK, rec)
	}
}

func writeError(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      code,
		"request_id": c.GetString(ctxRequestID),
	})
}

func sanitizeRequestID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > 64 {
		return ""
	}
	for _, r := range v {
		if !(r == '-' || r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return ""
		}
	}
	return v
}
