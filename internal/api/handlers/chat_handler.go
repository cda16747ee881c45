package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docchat/internal/services"
)

type ChatHandler struct {
	svc *services.ChatService
}

func NewChatHandler(svc *services.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

func decodeChatRequest(r *http.Request) (ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return req, fmt.Errorf("message is required")
	}
	return req, nil
}

// Chat answers one message, creating a conversation when none is given.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	req, err := decodeChatRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	res, err := h.svc.Chat(r.Context(), userID, req.Message, req.ConversationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sourcesFrame struct {
	Sources []string `json:"sources"`
}

type tokenFrame struct {
	Token string `json:"token"`
}

type doneFrame struct {
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response"`
}

// ChatStream answers one message as server-sent events. Frames arrive as
// sources, then tokens, then a final frame with the conversation id.
func (h *ChatHandler) ChatStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	req, err := decodeChatRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	started := false
	send := func(frame any) bool {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		b, err := json.Marshal(frame)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for ev, err := range h.svc.ChatStream(r.Context(), userID, req.Message, req.ConversationID) {
		if err != nil {
			if !started {
				writeError(w, r, err)
				return
			}
			_, msg := statusFor(err)
			logrus.WithError(err).WithField("path", r.URL.Path).Error("chat stream failed")
			send(errorBody{Error: msg})
			return
		}

		var frame any
		switch {
		case ev.Done != nil:
			frame = doneFrame{ConversationID: ev.Done.ConversationID, Response: ev.Done.Response}
		case ev.Sources != nil:
			frame = sourcesFrame{Sources: ev.Sources}
		default:
			frame = tokenFrame{Token: ev.Token}
		}
		if !send(frame) {
			// client went away; breaking stops generation without saving
			return
		}
	}
}

func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := ownerID(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetConversation(r.Context(), userID, chi.URLParam(r, "conversation_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
