package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
)

// GameHandler serves the REST side of host and player actions.
type GameHandler struct {
	ctrl      *app.Controller
	log       logrus.FieldLogger
	publicURL string
}

func NewGameHandler(ctrl *app.Controller, log logrus.FieldLogger, publicURL string) *GameHandler {
	return &GameHandler{ctrl: ctrl, log: log, publicURL: strings.TrimRight(publicURL, "/")}
}

type createGameRequest struct {
	QuizID   string           `json:"quizId"`
	Settings *domain.Settings `json:"settings,omitempty"`
}

type joinRequest struct {
	Name string `json:"name"`
}

type answerRequest struct {
	QuestionIndex  int `json:"questionIndex"`
	SelectedOption int `json:"selectedOption"`
}

func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())
	var req createGameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.QuizID == "" {
		writeError(w, h.log, domain.Invalid("quizId", "must not be empty"))
		return
	}
	game, err := h.ctrl.CreateGame(r.Context(), req.QuizID, who.ID, req.Settings)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.ctrl.Documents().Game(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (h *GameHandler) FindByCode(w http.ResponseWriter, r *http.Request) {
	game, err := h.ctrl.FindByJoinCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (h *GameHandler) Join(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		who.DisplayName = name
	}
	player, err := h.ctrl.JoinGame(r.Context(), mux.Vars(r)["id"], who)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (h *GameHandler) Start(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())
	gameID := mux.Vars(r)["id"]

	game, err := startGame(r.Context(), h.ctrl, gameID, who.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (h *GameHandler) ForceResults(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())
	game, err := h.ctrl.ForceResults(r.Context(), mux.Vars(r)["id"], who.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (h *GameHandler) Advance(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())
	game, err := h.ctrl.Advance(r.Context(), mux.Vars(r)["id"], who.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (h *GameHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())
	var req answerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.ctrl.SubmitAnswer(r.Context(), mux.Vars(r)["id"], who.ID, req.QuestionIndex, req.SelectedOption); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// leaderboardView carries the final standings once the game has ended.
type leaderboardView struct {
	domain.Leaderboard
	Summary *domain.Summary `json:"summary,omitempty"`
}

func newLeaderboardView(lb domain.Leaderboard, phase domain.Phase, viewerID string) leaderboardView {
	view := leaderboardView{Leaderboard: lb}
	if phase == domain.PhaseEnded {
		summary := lb.Summarize(viewerID)
		view.Summary = &summary
	}
	return view
}

func (h *GameHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())
	gameID := mux.Vars(r)["id"]
	game, err := h.ctrl.Documents().Game(r.Context(), gameID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	lb, err := h.ctrl.Leaderboard(r.Context(), gameID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newLeaderboardView(lb, game.Phase, who.ID))
}

// Question returns the current question. The host sees the correct option
// at any time, players only once results are shown.
func (h *GameHandler) Question(w http.ResponseWriter, r *http.Request) {
	who, _ := IdentityFrom(r.Context())
	game, err := h.ctrl.Documents().Game(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if game.Phase == domain.PhaseLobby {
		writeError(w, h.log, &domain.InvalidTransitionError{Op: "view question", From: game.Phase})
		return
	}
	quiz, err := h.ctrl.Quiz(r.Context(), game.QuizID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	view, ok := domain.ViewQuestion(game, quiz, game.IsHost(who.ID))
	if !ok {
		writeError(w, h.log, domain.NotFound("question", game.QuizID))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// startGame refuses to leave the lobby while the roster is empty.
func startGame(ctx context.Context, ctrl *app.Controller, gameID, callerID string) (domain.Game, error) {
	players, err := ctrl.Documents().Players(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if len(players) == 0 {
		return domain.Game{}, errEmptyRoster
	}
	return ctrl.StartGame(ctx, gameID, callerID)
}

// QRCode renders the join link of a game as a PNG.
func (h *GameHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	game, err := h.ctrl.Documents().Game(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	png, err := qrcode.Encode(h.JoinURL(game.JoinCode), qrcode.Medium, 256)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}

// JoinURL is the link players open to join by code.
func (h *GameHandler) JoinURL(code string) string {
	return h.publicURL + "/join/" + code
}
