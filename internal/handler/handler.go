package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/mockinterview/internal/evaluator"
	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/session"
	"github.com/pavelanni/mockinterview/internal/store"
	"github.com/pavelanni/mockinterview/internal/view"
)

const maxBodyBytes = 1 << 20

// QuestionBank imports uploaded question bank files.
type QuestionBank interface {
	ImportData(name string, data []byte) (store.ImportStatus, int, error)
}

// Pinger reports whether the evaluation backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds settings for the HTTP API.
type Config struct {
	Roles        []string
	CallTimeout  time.Duration
	Capabilities model.Capabilities
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	client   evaluator.Client
	bank     QuestionBank
	registry *Registry
	config   Config
	validate *validator.Validate
}

// New creates a new Handler. bank may be nil when questions come from the
// remote service.
func New(client evaluator.Client, bank QuestionBank, reg *Registry, cfg Config) (*Handler, error) {
	if client == nil {
		return nil, errors.New("evaluation client is required")
	}
	if len(cfg.Roles) == 0 {
		cfg.Roles = model.DefaultRoles
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("difficulty", func(fl validator.FieldLevel) bool {
		_, err := model.ParseDifficulty(fl.Field().String())
		return err == nil
	}); err != nil {
		return nil, fmt.Errorf("register validation: %w", err)
	}
	return &Handler{client: client, bank: bank, registry: reg, config: cfg, validate: v}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.handleCatalog)
		r.Post("/questions", h.handleUploadQuestions)
		r.Post("/sessions", h.handleCreateSession)
		r.Route("/sessions/{token}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleDeleteSession)
			r.Post("/configure", h.handleConfigure)
			r.Post("/start", h.handleStart)
			r.Post("/answer", h.handleAnswer)
			r.Post("/advance", h.handleAdvance)
			r.Post("/reset", h.handleReset)
			r.Post("/abandon", h.handleAbandon)
		})
	})
}

type configureRequest struct {
	TargetRole string `json:"target_role" validate:"required,max=100"`
	Difficulty string `json:"difficulty" validate:"required,difficulty"`
}

type createRequest struct {
	TargetRole string `json:"target_role" validate:"omitempty,max=100"`
	Difficulty string `json:"difficulty" validate:"omitempty,difficulty"`
}

type answerRequest struct {
	Answer string `json:"answer" validate:"required,max=20000"`
}

type catalogResponse struct {
	Roles        []string           `json:"roles"`
	Difficulties []model.Difficulty `json:"difficulties"`
	Capabilities model.Capabilities `json:"capabilities"`
}

type sessionResponse struct {
	Token string    `json:"token"`
	View  view.View `json:"view"`
}

type errorResponse struct {
	Error     string     `json:"error"`
	Retriable bool       `json:"retriable,omitempty"`
	View      *view.View `json:"view,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "sessions": h.registry.Len()}
	if p, ok := h.client.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogResponse{
		Roles:        h.config.Roles,
		Difficulties: model.Difficulties,
		Capabilities: h.config.Capabilities,
	})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}

	p := view.NewPresenter(h.config.Capabilities)
	m := session.New(h.client, session.WithCallTimeout(h.config.CallTimeout))
	if err := m.Subscribe(p); err != nil {
		writeError(w, r, err, nil)
		return
	}
	if req.TargetRole != "" || req.Difficulty != "" {
		d, _ := model.ParseDifficulty(req.Difficulty)
		if err := m.Configure(req.TargetRole, d); err != nil {
			m.Close()
			writeError(w, r, err, nil)
			return
		}
	}

	token := h.registry.Add(m, p)
	slog.Info("session created", "token", token)
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, View: p.View(r.Context())})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: chi.URLParam(r, "token"), View: e.presenter.View(r.Context())})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Remove(chi.URLParam(r, "token")) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown session"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConfigure(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req configureRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, _ := model.ParseDifficulty(req.Difficulty)
	h.respond(w, r, e, e.machine.Configure(req.TargetRole, d))
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.respond(w, r, e, e.machine.Start(callContext(r)))
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r, e, e.machine.SubmitAnswer(callContext(r), req.Answer))
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.respond(w, r, e, e.machine.Advance(callContext(r)))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.respond(w, r, e, e.machine.Reset())
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.respond(w, r, e, e.machine.Abandon())
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*entry, bool) {
	e, ok := h.registry.Get(chi.URLParam(r, "token"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown session"})
	}
	return e, ok
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

// respond writes the session view, or the error with the view attached.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, e *entry, err error) {
	v := e.presenter.View(r.Context())
	if err != nil {
		writeError(w, r, err, &v)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: chi.URLParam(r, "token"), View: v})
}

// callContext keeps request values but not cancellation: a dropped
// connection must not roll back a call the machine bounds by its own timeout.
func callContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidPhase), errors.Is(err, session.ErrDiscarded):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusNotFound
	case evaluator.IsRetriable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, v *view.View) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), View: v}
	if status == http.StatusServiceUnavailable {
		resp.Error = view.ErrorText(r.Context(), err)
		resp.Retriable = true
	}
	if status >= 500 {
		slog.Warn("session call failed", "path", r.URL.Path, "kind", evaluator.Kind(err), "error", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
