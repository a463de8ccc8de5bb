package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"chaptergate/internal/cookie"
	"chaptergate/internal/engine"
	"chaptergate/internal/gate"
	"chaptergate/internal/repo"
)

// Config for the HTTP handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// Production marks the auth cookie Secure.
	Production bool
	Logger     *log.Logger
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

type apiErrorBody struct {
	Code      string `json:"code" example:"bad_request"`
	Message   string `json:"message" example:"invalid request"`
	RequestID string `json:"request_id,omitempty" example:"5f0c6d1e-7a61-4c1b-9a43-0f3e0c1a2b3c"`
}

type requestKey struct{}
type requestIDKey struct{}

// apiError is the error envelope every failure is rendered as.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type handlers struct {
	engine     engine.Engine
	logger     *log.Logger
	production bool
}

// New returns the HTTP handler serving the gate API and chapter redirects.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Engine.Config == nil {
		return nil, errors.New("engine config required")
	}
	logger := cfg.logger()
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Printf("WARNING: admin JWT secret not set; %s/admin is disabled", basePath)
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(context.Background(), status, "", msg)
	}
	huma.NewErrorWithContext = func(hctx huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema violations are malformed input.
			status = http.StatusBadRequest
		}
		ctx := context.Background()
		if hctx != nil {
			ctx = hctx.Context()
		}
		return newAPIError(ctx, status, "", genericMessage(status, msg))
	}

	h := handlers{engine: cfg.Engine, logger: logger, production: cfg.Production}
	router := chi.NewRouter()
	if cfg.TrustProxy {
		router.Use(middleware.RealIP)
	}
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.NewString()
			w.Header().Set("X-Request-Id", id)
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newBanMiddleware(basePath, cfg.Engine, logger))
	router.Use(newRateLimitMiddleware(basePath, newIPLimiter(cfg.Engine.Config.Limits.AnswersPerMinute, cfg.Engine.Config.Limits.AnswerBurst)))
	router.Use(newAdminMiddleware(basePath, cfg.Auth))

	hcfg := huma.DefaultConfig("Chaptergate API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	h.registerPlaques(group)
	h.registerKeywords(group)
	h.registerPuzzles(group)
	h.registerActs(group)
	h.registerGate(group)
	h.registerChapters(group)
	h.registerButtons(group)
	h.registerBans(group)
	h.registerEvents(group)
	h.registerChapterRedirect(router)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

// genericMessage keeps validator detail out of responses.
func genericMessage(status int, msg string) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusInternalServerError:
		return "internal error"
	}
	return msg
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestFromContext(ctx context.Context) *http.Request {
	r, _ := ctx.Value(requestKey{}).(*http.Request)
	return r
}

func newAPIError(ctx context.Context, status int, code, message string) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:      code,
			Message:   message,
			RequestID: requestIDFromContext(ctx),
		},
	}
}

// handleError maps engine errors to the envelope. Anything unrecognised is
// logged and reported as a generic 500.
func (h handlers) handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(ctx, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, engine.ErrUnknownAct), errors.Is(err, engine.ErrUnknownOutcome):
		return newAPIError(ctx, http.StatusBadRequest, "bad_request", err.Error())
	case strings.HasPrefix(err.Error(), "invalid "):
		return newAPIError(ctx, http.StatusBadRequest, "bad_request", err.Error())
	}
	h.logger.Printf("request %s failed: %v", requestIDFromContext(ctx), err)
	return newAPIError(ctx, http.StatusInternalServerError, "internal_error", "internal error")
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

// clientIP is the host part of RemoteAddr (already rewritten by RealIP when
// proxies are trusted).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func (h handlers) authToken(ctx context.Context) string {
	token, _ := cookie.Read(requestFromContext(ctx), h.engine.Config.Cookie.Name)
	return token
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAdminSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAdminSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	adminPrefix := path.Join(basePath, "admin")
	for route, item := range oas.Paths {
		if !strings.HasPrefix(route, adminPrefix) {
			continue
		}
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op != nil {
				op.Security = []map[string][]string{{"bearerAuth": {}}}
			}
		}
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// registerChapterRedirect serves the navigation entry point. Every decision
// other than allow is a single 302.
func (h handlers) registerChapterRedirect(r chi.Router) {
	r.Get("/chapters/{chapter}", func(w http.ResponseWriter, req *http.Request) {
		token, _ := cookie.Read(req, h.engine.Config.Cookie.Name)
		d, err := h.engine.Gate(req.Context(), gate.Request{Chapter: chi.URLParam(req, "chapter"), Path: req.URL.Path}, token)
		if err != nil {
			respondStatusError(w, h.handleError(req.Context(), err))
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		if d.Redirect() {
			http.Redirect(w, req, d.Location, http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "chapter %s\n", d.Act)
	})
}
