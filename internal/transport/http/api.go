package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"quizastrous-server/internal/app"
	"quizastrous-server/internal/domain"
)

const maxBodyBytes = 4 << 10

// API exposes the join/answer/state endpoints.
type API struct {
	game *app.Game
	hub  *Hub
	ws   *WSHandler
}

func NewAPI(game *app.Game, hub *Hub) *API {
	return &API{game: game, hub: hub, ws: NewWSHandler(game, hub)}
}

type joinRequest struct {
	Name string `json:"name"`
}

type joinResponse struct {
	PlayerID string `json:"playerId"`
}

type answerRequest struct {
	PlayerID string `json:"playerId"`
	Answer   string `json:"answer"`
}

type answerResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// Routes builds the router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", a.handleState)
	r.Get("/state", a.handleState)
	r.Get("/healthz", a.handleHealth)
	r.Post("/join", a.handleJoin)
	r.Post("/answer", a.handleAnswer)
	r.Get("/players/{id}", a.handlePlayer)
	r.Get("/ws", a.ws.ServeWS)
	return r
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.game.Snapshot(a.game.Now()))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Connections: a.hub.Count()})
}

func (a *API) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	id, err := a.game.Join(r.Context(), req.Name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{PlayerID: id})
}

func (a *API) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, answerResponse{Error: "invalid request body"})
		return
	}
	_, err := a.game.Submit(r.Context(), req.PlayerID, req.Answer)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, answerResponse{Success: true})
	case domain.IsPhaseRejected(err):
		writeJSON(w, http.StatusOK, answerResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadRequest, answerResponse{Error: err.Error()})
	}
}

func (a *API) handlePlayer(w http.ResponseWriter, r *http.Request) {
	view, err := a.game.PlayerView(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
