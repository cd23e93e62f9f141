package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// ============================================================================
// HTTP control API
// ============================================================================
// The API is a thin translation layer: each handler decodes a request into an
// Action, dispatches it to the daemon loop, and maps the outcome to a status.
// Reads go through state snapshots; nothing here touches controller state.
// ============================================================================

// apiResponse is the body of every non-GET reply.
type apiResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// APIServer serves the REST control surface.
type APIServer struct {
	router  *mux.Router
	events  chan<- Event
	history *History
	timeout time.Duration
	logger  *slog.Logger

	// ports lists serial ports; tests replace it.
	ports func() ([]PortInfo, error)
}

// NewAPIServer builds the router. history may be nil.
func NewAPIServer(events chan<- Event, history *History, timeout time.Duration, logger *slog.Logger) *APIServer {
	s := &APIServer{
		router:  mux.NewRouter(),
		events:  events,
		history: history,
		timeout: timeout,
		logger:  logger,
		ports:   listPorts,
	}
	s.setupRoutes()
	return s
}

// Router exposes the router so other handlers (the state stream) can be
// mounted next to the API.
func (s *APIServer) Router() *mux.Router { return s.router }

func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *APIServer) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/ports", s.handlePorts).Methods(http.MethodGet)
	api.HandleFunc("/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/commands", s.handleCommand).Methods(http.MethodPost)
	api.HandleFunc("/settings/{kind}", s.handleSetting).Methods(http.MethodPost)
	api.HandleFunc("/color", s.handleColor).Methods(http.MethodPost)
	api.HandleFunc("/recording/{op}", s.handleRecording).Methods(http.MethodPost)

	api.HandleFunc("/macros/{name}", s.handleSaveMacro).Methods(http.MethodPut)
	api.HandleFunc("/macros/{name}", s.handleDeleteMacro).Methods(http.MethodDelete)
	api.HandleFunc("/macros/{name}/play", s.handlePlayMacro).Methods(http.MethodPost)

	api.HandleFunc("/presets/{name}", s.handleSavePreset).Methods(http.MethodPut)
	api.HandleFunc("/presets/{name}", s.handleDeletePreset).Methods(http.MethodDelete)
	api.HandleFunc("/presets/{name}/load", s.handleLoadPreset).Methods(http.MethodPost)

	api.HandleFunc("/scenes", s.handleScenes).Methods(http.MethodGet)
	api.HandleFunc("/scenes/{name}/play", s.handlePlayScene).Methods(http.MethodPost)

	api.HandleFunc("/channels/{key}", s.handleSetChannel).Methods(http.MethodPut)
	api.HandleFunc("/channels", s.handleClearChart).Methods(http.MethodDelete)
	api.HandleFunc("/tipsy/bind", s.handleTipsyBind).Methods(http.MethodPut)
	api.HandleFunc("/redraw", s.handleRedraw).Methods(http.MethodPut)

	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleClearHistory).Methods(http.MethodDelete)

	api.HandleFunc("/board", s.handleBoard).Methods(http.MethodGet)
	api.HandleFunc("/board", s.handleSetBoard).Methods(http.MethodPut)
	api.HandleFunc("/board/snippet", s.handleBoardSnippet).Methods(http.MethodGet)
}

// ============================================================================
// Handlers
// ============================================================================

func (s *APIServer) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := requestSnapshot(r.Context(), s.events, s.timeout)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *APIServer) handlePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.ports()
	if err != nil {
		s.logger.Warn("port listing failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, apiResponse{Status: "error", Error: err.Error()})
		return
	}
	if ports == nil {
		ports = []PortInfo{}
	}
	respondJSON(w, http.StatusOK, ports)
}

func (s *APIServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	var a Connect
	if !decodeBody(w, r, &a) {
		return
	}
	s.run(w, r, a)
}

func (s *APIServer) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, Disconnect{})
}

func (s *APIServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	var a SendCommand
	if !decodeBody(w, r, &a) {
		return
	}
	s.run(w, r, a)
}

func (s *APIServer) handleSetting(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value  *int `json:"value"`
		NoSend bool `json:"no_send"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Value == nil {
		s.respondError(w, fmt.Errorf("%w: value is required", ErrInvalidSetting))
		return
	}
	s.run(w, r, SetSetting{Kind: mux.Vars(r)["kind"], Value: *body.Value, NoSend: body.NoSend})
}

func (s *APIServer) handleColor(w http.ResponseWriter, r *http.Request) {
	var a SetCustomColor
	if !decodeBody(w, r, &a) {
		return
	}
	s.run(w, r, a)
}

func (s *APIServer) handleRecording(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, Recording{Op: mux.Vars(r)["op"]})
}

func (s *APIServer) handleSaveMacro(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, SaveMacro{Name: mux.Vars(r)["name"]})
}

func (s *APIServer) handleDeleteMacro(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, DeleteMacro{Name: mux.Vars(r)["name"]})
}

func (s *APIServer) handlePlayMacro(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, PlayMacro{Name: mux.Vars(r)["name"]})
}

func (s *APIServer) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, SavePreset{Name: mux.Vars(r)["name"]})
}

func (s *APIServer) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, DeletePreset{Name: mux.Vars(r)["name"]})
}

func (s *APIServer) handleLoadPreset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Send bool `json:"send"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	s.run(w, r, LoadPreset{Name: mux.Vars(r)["name"], Send: body.Send})
}

func (s *APIServer) handleScenes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, scenes)
}

func (s *APIServer) handlePlayScene(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, PlayScene{Name: mux.Vars(r)["name"]})
}

func (s *APIServer) handleSetChannel(w http.ResponseWriter, r *http.Request) {
	var a SetChannel
	if !decodeBody(w, r, &a) {
		return
	}
	a.Key = mux.Vars(r)["key"]
	s.run(w, r, a)
}

func (s *APIServer) handleClearChart(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, ClearChart{})
}

func (s *APIServer) handleTipsyBind(w http.ResponseWriter, r *http.Request) {
	var a SetTipsyBind
	if !decodeBody(w, r, &a) {
		return
	}
	s.run(w, r, a)
}

func (s *APIServer) handleRedraw(w http.ResponseWriter, r *http.Request) {
	var a SetAutoRedraw
	if !decodeBody(w, r, &a) {
		return
	}
	s.run(w, r, a)
}

func (s *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := []string{}
	if s.history != nil {
		entries = s.history.Entries()
	}
	respondJSON(w, http.StatusOK, historyFile{History: entries})
}

func (s *APIServer) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, ClearHistory{})
}

func (s *APIServer) handleBoard(w http.ResponseWriter, r *http.Request) {
	snap, err := requestSnapshot(r.Context(), s.events, s.timeout)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap.Board)
}

func (s *APIServer) handleSetBoard(w http.ResponseWriter, r *http.Request) {
	var a SetBoard
	if !decodeBody(w, r, &a) {
		return
	}
	s.run(w, r, a)
}

func (s *APIServer) handleBoardSnippet(w http.ResponseWriter, r *http.Request) {
	snap, err := requestSnapshot(r.Context(), s.events, s.timeout)
	if err != nil {
		s.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, snap.Board.Snippet())
}

// ============================================================================
// Helpers
// ============================================================================

// run dispatches a and writes the outcome.
func (s *APIServer) run(w http.ResponseWriter, r *http.Request, a Action) {
	if err := dispatch(r.Context(), s.events, a, s.timeout); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Debug("api action failed", "action", a.actionType(), "error", err)
		}
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, apiResponse{Status: "ok"})
}

func (s *APIServer) respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusForError(err), apiResponse{Status: "error", Error: err.Error()})
}

// statusForError maps daemon errors onto HTTP status codes.
func statusForError(err error) int {
	var te *TransmitError
	var oe *OpenError
	switch {
	case errors.Is(err, ErrNotConnected):
		return http.StatusConflict
	case errors.As(err, &te), errors.As(err, &oe):
		return http.StatusBadGateway
	case isValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrNoReply):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched. On a malformed body it writes a 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		respondJSON(w, http.StatusBadRequest, apiResponse{Status: "error", Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
