package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"notirelay/internal/collate"
	"notirelay/internal/notifier"
	"notirelay/internal/relay"
	rtsup "notirelay/internal/runtime/supervisor"
	"notirelay/internal/task/scheduler"
	"notirelay/internal/transport"
	logx "notirelay/pkg/logx"
)

const maxBody = 1 << 20

var errBadJSON = errors.New("malformed JSON body")

type messageRequest struct {
	Message *string `json:"message"`
}

type titledRequest struct {
	Title   *string `json:"title"`
	Message *string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Message == nil {
		writeError(w, http.StatusBadRequest, errors.New("field 'message' is required"))
		return
	}
	if err := s.deps.Router.RouteUntitled(r.Context(), *req.Message); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "outcome": relay.OutcomeSent})
}

func (s *Server) handleSendMessageWithTitle(w http.ResponseWriter, r *http.Request) {
	var req titledRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Title == nil || req.Message == nil {
		writeError(w, http.StatusBadRequest, errors.New("fields 'title' and 'message' are required"))
		return
	}
	out, err := s.deps.Router.Route(r.Context(), *req.Title, *req.Message)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "outcome": out})
}

func (s *Server) handleSendImageURL(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, errors.New("query parameter 'url' is required"))
		return
	}
	img, err := relay.FetchImage(r.Context(), s.deps.ImageClient, u)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	id, err := s.deps.Sender.SendImage(r.Context(), img)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.log.Info("image relayed", logx.String("filename", img.Filename), logx.Int("bytes", len(img.Data)))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "event_id": id})
}

func (s *Server) handleSendCollated(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Flusher.Flush(r.Context(), relay.ReasonAPI)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"sent":   rep.Sent,
		"failed": rep.Failed,
		"empty":  rep.Empty,
	})
}

type statusResponse struct {
	Status     string                 `json:"status"`
	Uptime     string                 `json:"uptime"`
	Transport  string                 `json:"transport"`
	Pending    map[string]int         `json:"pending"`
	Scheduler  *scheduler.Snapshot    `json:"scheduler,omitempty"`
	LastFlush  *relay.Report          `json:"last_flush,omitempty"`
	Recent     []notifier.HistoryItem `json:"recent_sends,omitempty"`
	Goroutines *rtsup.Counters        `json:"goroutines,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:    "ok",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Transport: transport.NameOf(s.deps.Sender),
		Pending:   map[string]int{},
		LastFlush: s.deps.Flusher.Last(),
	}
	if s.deps.Store != nil {
		resp.Pending = s.deps.Store.Pending()
	}
	if s.deps.Scheduler != nil {
		snap := s.deps.Scheduler.Snapshot()
		resp.Scheduler = &snap
	}
	if s.deps.Notifier != nil {
		resp.Recent = s.deps.Notifier.Snapshot()
	}
	if s.deps.Supervisor != nil {
		c := s.deps.Supervisor.Counters()
		resp.Goroutines = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, relay.ErrEmptyTitle),
		errors.Is(err, relay.ErrEmptyMessage),
		errors.Is(err, transport.ErrEmptyMessage),
		errors.Is(err, relay.ErrInvalidImage),
		errors.Is(err, collate.ErrEmptyKey):
		return http.StatusBadRequest
	case errors.Is(err, relay.ErrImageTooBig):
		return http.StatusRequestEntityTooLarge
	case isPersistError(err):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func isPersistError(err error) bool {
	var pe *collate.PersistError
	return errors.As(err, &pe)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"status": "error", "error": err.Error()})
}
