package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/agusx1211/hitlctl/config"
	"github.com/agusx1211/hitlctl/session"
	"github.com/gorilla/websocket"
)

const (
	maxBodyBytes = 1 << 20
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Sessions resolves thread ids to live sessions.
type Sessions interface {
	Open(ctx context.Context, threadID string) (*session.Session, error)
	Get(threadID string) (*session.Session, bool)
}

// Server lets remote operators follow sessions over a websocket and post
// decisions over HTTP.
type Server struct {
	server   *http.Server
	cfg      config.RelayConfig
	sessions Sessions
	upgrader websocket.Upgrader
}

func New(cfg config.RelayConfig, sessions Sessions) *Server {
	must(sessions != nil, "relay sessions must not be nil")
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
	s.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("POST /threads/{id}/messages", s.postMessage)
	mux.HandleFunc("POST /threads/{id}/decision", s.postDecision)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()
	log.Printf("[relay] listening on %s", s.cfg.Listen)
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		if err := s.Stop(context.Background()); err != nil {
			return err
		}
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readSigned(w, r)
	if !ok {
		return
	}
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sess, err := s.sessions.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if err := sess.Send(r.Context(), in.Text); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusAccepted, sess.State())
}

func (s *Server) postDecision(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readSigned(w, r)
	if !ok {
		return
	}
	var d Decision
	if err := json.Unmarshal(body, &d); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "thread is not open", http.StatusNotFound)
		return
	}
	if err := applyDecision(r.Context(), sess, d); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusAccepted, sess.State())
}

func (s *Server) readSigned(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	if s.cfg.Secret != "" && !ValidateHMAC(body, r.Header.Get(signatureHeader), s.cfg.Secret) {
		w.WriteHeader(http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}

var errUnknownCommand = errors.New("unknown command")

func applyDecision(ctx context.Context, sess *session.Session, d Decision) error {
	switch d.Type {
	case TypeApprove:
		return sess.Approve(ctx)
	case TypeReject:
		return sess.Reject(ctx, d.Message)
	case TypeEdit:
		return sess.Edit(ctx, d.ToolCallID, d.Args)
	}
	return fmt.Errorf("%w: %q", errUnknownCommand, d.Type)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNoPending):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrEmptyInput), errors.Is(err, session.ErrUnknownToolCall), errors.Is(err, errUnknownCommand):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
