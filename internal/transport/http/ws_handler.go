package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
)

type WSHandler struct {
	ctrl     *app.Controller
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(ctrl *app.Controller, log logrus.FieldLogger, checkOrigin func(r *http.Request) bool) *WSHandler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &WSHandler{
		ctrl: ctrl,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type ackPayload struct {
	Command string `json:"command"`
}

// ServeWS upgrades an authenticated request and streams one game to the
// caller. Players are joined on connect; the host drives the game through
// commands. When the host's connection closes the question timer stops.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	who, ok := IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorPayload{Message: "authorization required"})
		return
	}
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		writeError(w, h.log, domain.Invalid("gameId", "must not be empty"))
		return
	}
	game, err := h.ctrl.Documents().Game(r.Context(), gameID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	quiz, err := h.ctrl.Quiz(r.Context(), game.QuizID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	isHost := game.IsHost(who.ID)
	if !isHost {
		if _, err := h.ctrl.JoinGame(r.Context(), gameID, who); err != nil {
			writeError(w, h.log, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.WithFields(logrus.Fields{"game_id": gameID, "user_id": who.ID, "host": isHost})
	if isHost {
		defer h.ctrl.ReleaseHost(gameID)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	games, stopGames, err := h.ctrl.WatchGame(ctx, gameID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer stopGames()
	roster, stopRoster, err := h.ctrl.WatchPlayers(ctx, gameID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer stopRoster()
	boards, stopBoards, err := h.ctrl.WatchLeaderboard(ctx, gameID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer stopBoards()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				_ = conn.Close()
				return
			}
		}
	}()

	emit := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-closeSignals:
			return false
		case <-writerDone:
			return false
		}
	}

	go func() {
		defer close(updatesDone)
		var (
			lastQuestion = -1
			lastPhase    domain.Phase
			phase        = game.Phase
			showBoard    = isHost || game.Settings.ShowLeaderboard || game.Phase == domain.PhaseEnded
		)
		for {
			select {
			case g, ok := <-games:
				if !ok {
					return
				}
				if !emit(outboundMessage[any]{Type: "game", Payload: g}) {
					return
				}
				justEnded := g.Phase == domain.PhaseEnded && phase != domain.PhaseEnded
				phase = g.Phase
				showBoard = isHost || g.Settings.ShowLeaderboard || g.Phase == domain.PhaseEnded
				if justEnded {
					// No scoring pass follows the end, so push the final standings here.
					lb, err := h.ctrl.Leaderboard(ctx, gameID)
					if err != nil {
						log.WithError(err).Warn("final leaderboard unavailable")
					} else if !emit(outboundMessage[any]{Type: "leaderboard", Payload: newLeaderboardView(lb, phase, who.ID)}) {
						return
					}
				}
				if g.Phase == domain.PhaseLobby || (g.CurrentQuestionIndex == lastQuestion && g.Phase == lastPhase) {
					continue
				}
				lastQuestion, lastPhase = g.CurrentQuestionIndex, g.Phase
				if view, ok := domain.ViewQuestion(g, quiz, isHost); ok {
					if !emit(outboundMessage[any]{Type: "question", Payload: view}) {
						return
					}
				}
			case entries, ok := <-roster:
				if !ok {
					return
				}
				if !emit(outboundMessage[any]{Type: "players", Payload: entries}) {
					return
				}
			case lb, ok := <-boards:
				if !ok {
					return
				}
				if !showBoard {
					continue
				}
				if !emit(outboundMessage[any]{Type: "leaderboard", Payload: newLeaderboardView(lb, phase, who.ID)}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.handleCommand(ctx, gameID, who, inbound); err != nil {
			status, code := statusFor(err)
			if status >= http.StatusInternalServerError {
				log.WithError(err).Error("ws command failed")
			}
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error(), Code: code}})
			continue
		}
		reply(outboundMessage[any]{Type: "ack", Payload: ackPayload{Command: inbound.Type}})
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleCommand(ctx context.Context, gameID string, who domain.Identity, in inboundMessage) error {
	switch in.Type {
	case "answer":
		var payload answerRequest
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return domain.Invalid("payload", "invalid answer payload")
		}
		return h.ctrl.SubmitAnswer(ctx, gameID, who.ID, payload.QuestionIndex, payload.SelectedOption)
	case "start":
		_, err := startGame(ctx, h.ctrl, gameID, who.ID)
		return err
	case "forceResults":
		_, err := h.ctrl.ForceResults(ctx, gameID, who.ID)
		return err
	case "advance":
		_, err := h.ctrl.Advance(ctx, gameID, who.ID)
		return err
	default:
		return domain.Invalid("type", "unsupported message type")
	}
}
