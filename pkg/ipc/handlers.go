package ipc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/galynx/galynx/pkg/client"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	session, err := s.session.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.session.Me(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.session.ListChannels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if channels == nil {
		channels = []client.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name      string `json:"name"`
		IsPrivate bool   `json:"is_private"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	channel, err := s.session.CreateChannel(r.Context(), payload.Name, payload.IsPrivate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, channel)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DeleteChannel(r.Context(), chi.URLParam(r, "channelID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit, cursor := pageParams(r)
	list, err := s.session.ListMessages(r.Context(), chi.URLParam(r, "channelID"), limit, cursor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BodyMD string `json:"body_md"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	msg, err := s.session.SendMessage(r.Context(), chi.URLParam(r, "channelID"), payload.BodyMD)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BodyMD string `json:"body_md"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	msg, err := s.session.EditMessage(r.Context(), chi.URLParam(r, "messageID"), payload.BodyMD)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DeleteMessage(r.Context(), chi.URLParam(r, "messageID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	summary, err := s.session.GetThread(r.Context(), chi.URLParam(r, "rootID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListThreadReplies(w http.ResponseWriter, r *http.Request) {
	limit, cursor := pageParams(r)
	list, err := s.session.ListThreadReplies(r.Context(), chi.URLParam(r, "rootID"), limit, cursor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSendThreadReply(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BodyMD string `json:"body_md"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	msg, err := s.session.SendThreadReply(r.Context(), chi.URLParam(r, "rootID"), payload.BodyMD)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ChannelID   string `json:"channel_id"`
		MessageID   string `json:"message_id"`
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
		Data        []byte `json:"data"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	attachment, err := s.session.UploadAttachment(r.Context(), client.AttachmentUpload{
		ChannelID:   payload.ChannelID,
		MessageID:   payload.MessageID,
		Filename:    payload.Filename,
		ContentType: payload.ContentType,
		Bytes:       payload.Data,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachment)
}

func (s *Server) handleGetAPIBase(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"api_base": s.session.APIBase()})
}

func (s *Server) handleSetAPIBase(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		APIBase string `json:"api_base"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	normalized, err := s.session.SetAPIBase(payload.APIBase)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"api_base": normalized})
}

func (s *Server) handleRealtimeConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ConnectRealtime(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRealtimeDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DisconnectRealtime(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pageParams(r *http.Request) (int, string) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	return limit, r.URL.Query().Get("cursor")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 32<<20))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, client.ErrorDTO{
			Status:  http.StatusBadRequest,
			Error:   "bad_request",
			Message: "request body invalid",
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError flattens any failure into the {status, error, message} envelope
// the frontend expects, mirroring the HTTP status on the response itself.
func writeError(w http.ResponseWriter, err error) {
	dto := client.AsDTO(err)
	writeJSON(w, dto.Status, dto)
}
