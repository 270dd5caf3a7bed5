package api

import (
	"net/http"
	"time"

	"github.com/openintent-ai/openintent/pkg/model"
)

type openChannelRequest struct {
	Name    string         `json:"name"`
	Members []string       `json:"members,omitempty"`
	Options map[string]any `json:"options,omitempty"`
	TaskID  *string        `json:"task_id,omitempty"`
}

func (s *Server) handleOpenChannel(w http.ResponseWriter, r *http.Request) {
	var req openChannelRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	c, err := s.messaging.OpenChannel(r.Context(), pathVar(r, "id"), req.Name, req.Members, req.Options, req.TaskID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	list, err := s.messaging.List(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type postMessageRequest struct {
	To          string            `json:"to,omitempty"`
	MessageType model.MessageType `json:"message_type"`
	Payload     map[string]any    `json:"payload,omitempty"`
	ReplyTo     string            `json:"reply_to,omitempty"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	if req.MessageType == "" {
		req.MessageType = model.MessageNotify
	}
	m, err := s.messaging.Post(r.Context(), pathVar(r, "channel"), principalID(r), req.To, req.MessageType, req.Payload, req.ReplyTo, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	list, err := s.messaging.Messages(r.Context(), pathVar(r, "channel"), r.URL.Query().Get("correlation_id"), queryInt(r, "limit", 100))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleReplyMessage posts a response correlated to {message}'s thread;
// a request message self-correlates to its own id (messaging.Service.Post),
// so replying to it means posting with that id as the correlation id.
func (s *Server) handleReplyMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	m, err := s.messaging.Post(r.Context(), pathVar(r, "channel"), principalID(r), req.To, model.MessageResponse, req.Payload, pathVar(r, "message"), time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
