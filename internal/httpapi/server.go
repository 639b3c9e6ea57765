// Package httpapi exposes the dispatcher over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"snotify/internal/storage"
	"snotify/pkg/channel"
	"snotify/pkg/logx"
	"snotify/pkg/notify"
)

// Notifier is the part of *notify.Dispatcher the API drives.
type Notifier interface {
	Send(ctx context.Context, msg channel.Message, opts ...notify.SendOption) (*notify.Outcome, error)
	Broadcast(ctx context.Context, msg channel.Message, opts ...notify.SendOption) (*notify.Outcome, error)
	ListChannels() []notify.NamedChannel
	FallbackOrder() []string
}

// History lists audited sends.
type History interface {
	RecentSends(ctx context.Context, limit int) ([]storage.SendRecord, error)
}

type Config struct {
	Addr         string
	Token        string // bearer token; empty disables auth
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Pprof mounts net/http/pprof under /debug, behind the same token as /v1.
	Pprof bool
}

// Deps wires the server. History, Metrics and Health are optional.
type Deps struct {
	Notifier Notifier
	History  History
	Metrics  http.Handler
	Health   func() any
	Log      logx.Logger
}

type Server struct {
	cfg  Config
	deps Deps
	log  logx.Logger
	v    *validator.Validate
}

func New(cfg Config, deps Deps) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, deps: deps, log: log, v: validator.New(validator.WithRequiredStructEnabled())}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", s.health)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/notify", s.notify)
		r.Get("/channels", s.channels)
		r.Get("/sends", s.sends)
	})
	if s.cfg.Pprof {
		r.With(s.auth).Mount("/debug", chimw.Profiler())
	}
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", logx.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	s.log.Info("http api stopped")
	return nil
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	if s.cfg.Token == "" {
		return next
	}
	want := []byte("Bearer " + s.cfg.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	data := map[string]any{"status": "ok"}
	if s.deps.Health != nil {
		data["detail"] = s.deps.Health()
	}
	writeJSON(w, http.StatusOK, Response{Data: data})
}

// NotifyRequest is the body of POST /v1/notify.
type NotifyRequest struct {
	Text       string   `json:"text" validate:"required"`
	Subject    string   `json:"subject,omitempty"`
	Channel    string   `json:"channel,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Strict     *bool    `json:"strict,omitempty"`
	Broadcast  bool     `json:"broadcast,omitempty"`
}

func (s *Server) notify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req NotifyRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body: "+err.Error())
		return
	}
	if err := s.v.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	if req.Broadcast && req.Channel != "" {
		writeErr(w, http.StatusBadRequest, "VALIDATION_FAILED", "channel and broadcast are mutually exclusive")
		return
	}

	opts := []notify.SendOption{notify.WithSource("http")}
	if req.Channel != "" {
		opts = append(opts, notify.WithChannel(req.Channel))
	}
	if req.Recipients != nil {
		opts = append(opts, notify.WithRecipients(channel.Addresses(req.Recipients...)...))
	}
	if req.Strict != nil {
		opts = append(opts, notify.WithStrict(*req.Strict))
	}

	msg := channel.Message{Text: req.Text, Subject: req.Subject}
	send := s.deps.Notifier.Send
	if req.Broadcast {
		send = s.deps.Notifier.Broadcast
	}
	out, err := send(r.Context(), msg, opts...)
	if err != nil {
		s.writeSendError(w, r, err, out)
		return
	}
	status := http.StatusOK
	if !out.OK() {
		// Non-strict fallback where nothing delivered.
		status = http.StatusAccepted
	}
	writeJSON(w, status, Response{Data: newOutcomeView(out)})
}

// ChannelView describes one registered channel.
type ChannelView struct {
	Name       string   `json:"name"`
	Recipients []string `json:"recipients"`
}

func (s *Server) channels(w http.ResponseWriter, _ *http.Request) {
	list := s.deps.Notifier.ListChannels()
	views := make([]ChannelView, 0, len(list))
	for _, nc := range list {
		rs := nc.Channel.Recipients()
		labels := make([]string, 0, len(rs))
		for _, rc := range rs {
			labels = append(labels, channel.Label(rc))
		}
		views = append(views, ChannelView{Name: nc.Name, Recipients: labels})
	}
	writeJSON(w, http.StatusOK, Response{Data: map[string]any{
		"channels":       views,
		"fallback_order": s.deps.Notifier.FallbackOrder(),
	}})
}

func (s *Server) sends(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeErr(w, http.StatusNotFound, "STORAGE_DISABLED", "send history requires storage")
		return
	}
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeErr(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := s.deps.History.RecentSends(r.Context(), limit)
	if err != nil {
		s.log.Warn("send history query failed", logx.Err(err))
		writeErr(w, http.StatusInternalServerError, "INTERNAL", "history unavailable")
		return
	}
	if recs == nil {
		recs = []storage.SendRecord{}
	}
	writeJSON(w, http.StatusOK, Response{Data: recs})
}
