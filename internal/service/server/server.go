package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"secure_chat/internal/broadcast"
	"secure_chat/internal/errs"
	"secure_chat/internal/keystore"
	"secure_chat/internal/model"
	"secure_chat/internal/presence"
	chatSvc "secure_chat/internal/service/chat"
	"secure_chat/internal/service/lifecycle"
	"secure_chat/internal/utils/log"
)

type (
	HttpServer struct {
		addr      string
		registry  *presence.Registry
		hub       *broadcast.Hub
		keys      keystore.Store
		chats     *chatSvc.Service
		lifecycle *lifecycle.Service
	}
)

func NewHttpServer(
	addr string,
	registry *presence.Registry,
	hub *broadcast.Hub,
	keys keystore.Store,
	chats *chatSvc.Service,
	lc *lifecycle.Service,
) *HttpServer {
	return &HttpServer{
		addr:      addr,
		registry:  registry,
		hub:       hub,
		keys:      keys,
		chats:     chats,
		lifecycle: lc,
	}
}

func (s *HttpServer) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ws", s.HandleInitWS()).Methods(http.MethodGet)

	r.HandleFunc("/keys/{userID}", s.PublishKeys()).Methods(http.MethodPost)
	r.HandleFunc("/keys/{userID}/bundle", s.FetchKeyBundle()).Methods(http.MethodGet)
	r.HandleFunc("/keys/{userID}/count", s.CountPreKeys()).Methods(http.MethodGet)

	r.HandleFunc("/chats/direct", s.CreateDirectChat()).Methods(http.MethodPost)
	r.HandleFunc("/chats/group", s.CreateGroupChat()).Methods(http.MethodPost)
	r.HandleFunc("/chats/{chatID}/participants", s.AddParticipant()).Methods(http.MethodPost)
	r.HandleFunc("/chats/{chatID}/participants/{userID}", s.RemoveParticipant()).Methods(http.MethodDelete)
	r.HandleFunc("/chats/{chatID}/encryption", s.SetEncryption()).Methods(http.MethodPut)
	r.HandleFunc("/chats/{chatID}/retention", s.SetRetention()).Methods(http.MethodPut)
	r.HandleFunc("/chats/{chatID}/media-controls", s.SetMediaControls()).Methods(http.MethodPut)

	r.HandleFunc("/chats/{chatID}/messages", s.SendMessage()).Methods(http.MethodPost)
	r.HandleFunc("/chats/{chatID}/messages", s.ListMessages()).Methods(http.MethodGet)
	r.HandleFunc("/messages/{messageID}", s.EditMessage()).Methods(http.MethodPut)
	r.HandleFunc("/messages/{messageID}", s.DeleteMessage()).Methods(http.MethodDelete)

	return r
}

func (s *HttpServer) Run() error {
	log.Info("server listening", zap.String("addr", s.addr))
	return http.ListenAndServe(s.addr, s.Router())
}

// ---------------------------------------------------------------------
// websocket lifecycle
// ---------------------------------------------------------------------

func (s *HttpServer) HandleInitWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userID")
		if userID == "" {
			http.Error(w, "userID cannot be empty", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade failed", zap.Error(err))
			return
		}

		c := newWSConn(uuid.New().String(), userID, conn)
		s.registry.Register(userID, c.id)
		s.hub.Join(broadcast.UserRoom(userID), c.id, userID, c)

		go c.readPump(s)
		go c.writePump()
	}
}

func (s *HttpServer) dropConnection(c *wsConn) {
	s.hub.LeaveAll(c.id)
	s.registry.Unregister(c.id)
}

func (s *HttpServer) handleClientEvent(c *wsConn, ev model.WsEvent) {
	switch ev.Event {
	case model.EventJoinChat:
		var payload model.JoinChatPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			log.Warn("malformed join_chat payload", zap.String("connID", c.id), zap.Error(err))
			return
		}

		reqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		chat, err := s.chats.Get(reqCtx, payload.ChatID)
		if err != nil || !chat.HasParticipant(c.userID) {
			log.Warn("join_chat rejected",
				zap.String("userID", c.userID),
				zap.String("chatID", payload.ChatID),
			)
			return
		}
		s.hub.Join(chat.ID, c.id, c.userID, c)

	case model.EventTyping:
		var payload model.TypingPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return
		}
		s.registry.Typing().Set(c.userID, payload.ChatID, payload.IsTyping)

		statusEv := model.NewEvent(model.EventTypingStatus, model.TypingStatusPayload{
			ChatID:   payload.ChatID,
			UserID:   c.userID,
			IsTyping: payload.IsTyping,
		})
		s.hub.Broadcast(payload.ChatID, statusEv, c.userID)

	case model.EventMessageDelivered:
		var payload model.MessageDeliveredPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return
		}

		reqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.lifecycle.MarkDelivered(reqCtx, payload.MessageID, c.userID); err != nil {
			log.Warn("message_delivered failed",
				zap.String("userID", c.userID),
				zap.String("messageID", payload.MessageID),
				zap.Error(err),
			)
		}

	case model.EventReadMessages:
		var payload model.ReadMessagesPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return
		}

		reqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.lifecycle.MarkRead(reqCtx, payload.ChatID, payload.MessageIDs, c.userID); err != nil {
			log.Warn("read_messages failed",
				zap.String("userID", c.userID),
				zap.Error(err),
			)
		}

	default:
		log.Debug("unknown client event", zap.String("event", ev.Event))
	}
}

// ---------------------------------------------------------------------
// key endpoints
// ---------------------------------------------------------------------

func (s *HttpServer) PublishKeys() http.HandlerFunc {
	type request struct {
		OneTimeKeys int `json:"oneTimeKeys"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["userID"]

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			req.OneTimeKeys = 20
		}
		if req.OneTimeKeys <= 0 || req.OneTimeKeys > 200 {
			req.OneTimeKeys = 20
		}

		identity, spk, otks, err := keystore.Generate(userID, req.OneTimeKeys)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.keys.StoreKeys(r.Context(), identity, spk, otks); err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusCreated, map[string]any{
			"userId":      userID,
			"identityKey": identity.PublicKey,
			"signingKey":  identity.SigningKey,
			"oneTimeKeys": len(otks),
		})
	}
}

func (s *HttpServer) FetchKeyBundle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["userID"]

		bundle, err := s.keys.FetchKeyBundle(r.Context(), userID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, bundle)
	}
}

func (s *HttpServer) CountPreKeys() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["userID"]

		count, err := s.keys.CountOneTimePreKeys(r.Context(), userID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]int{"remaining": count})
	}
}

// ---------------------------------------------------------------------
// chat endpoints
// ---------------------------------------------------------------------

func (s *HttpServer) CreateDirectChat() http.HandlerFunc {
	type request struct {
		UserA string `json:"userA"`
		UserB string `json:"userB"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errs.Validation("malformed request body"))
			return
		}

		chat, err := s.chats.CreateDirect(r.Context(), req.UserA, req.UserB)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, chat)
	}
}

func (s *HttpServer) CreateGroupChat() http.HandlerFunc {
	type request struct {
		CreatorID    string   `json:"creatorId"`
		Name         string   `json:"name"`
		Participants []string `json:"participants"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errs.Validation("malformed request body"))
			return
		}

		chat, err := s.chats.CreateGroup(r.Context(), req.CreatorID, req.Name, req.Participants)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, chat)
	}
}

func (s *HttpServer) AddParticipant() http.HandlerFunc {
	type request struct {
		ActorID string `json:"actorId"`
		UserID  string `json:"userId"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		chatID := mux.Vars(r)["chatID"]

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errs.Validation("malformed request body"))
			return
		}

		if err := s.chats.AddParticipant(r.Context(), chatID, req.ActorID, req.UserID); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *HttpServer) RemoveParticipant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		actorID := r.URL.Query().Get("actorID")

		if err := s.chats.RemoveParticipant(r.Context(), vars["chatID"], actorID, vars["userID"]); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *HttpServer) SetEncryption() http.HandlerFunc {
	type request struct {
		ActorID string `json:"actorId"`
		Enabled bool   `json:"enabled"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		chatID := mux.Vars(r)["chatID"]

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errs.Validation("malformed request body"))
			return
		}

		chat, err := s.chats.SetEncryption(r.Context(), chatID, req.ActorID, req.Enabled)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, chat)
	}
}

func (s *HttpServer) SetRetention() http.HandlerFunc {
	type request struct {
		ActorID   string                `json:"actorId"`
		Retention model.RetentionPolicy `json:"retention"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		chatID := mux.Vars(r)["chatID"]

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errs.Validation("malformed request body"))
			return
		}

		if err := s.chats.SetRetention(r.Context(), chatID, req.ActorID, req.Retention); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *HttpServer) SetMediaControls() http.HandlerFunc {
	type request struct {
		ActorID  string              `json:"actorId"`
		Controls model.MediaControls `json:"controls"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		chatID := mux.Vars(r)["chatID"]

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errs.Validation("malformed request body"))
			return
		}

		if err := s.chats.SetMediaControls(r.Context(), chatID, req.ActorID, req.Controls); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ---------------------------------------------------------------------
// message endpoints
// ---------------------------------------------------------------------

func (s *HttpServer) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req lifecycle.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errs.Validation("malformed request body"))
			return
		}
		req.ChatID = mux.Vars(r)["chatID"]
		if req.Type == "" {
			req.Type = model.MessageText
		}

		msg, err := s.lifecycle.Send(r.Context(), req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, msg)
	}
}

func (s *HttpServer) ListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID := mux.Vars(r)["chatID"]
		userID := r.URL.Query().Get("userID")
		if userID == "" {
			s.writeError(w, errs.Validation("userID query parameter is required"))
			return
		}

		limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
		msgs, err := s.lifecycle.List(r.Context(), chatID, userID, limit)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, msgs)
	}
}

func (s *HttpServer) EditMessage() http.HandlerFunc {
	type request struct {
		EditorID string `json:"editorId"`
		Content  string `json:"content"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		messageID := mux.Vars(r)["messageID"]

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errs.Validation("malformed request body"))
			return
		}

		msg, err := s.lifecycle.Edit(r.Context(), messageID, req.EditorID, req.Content)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, msg)
	}
}

func (s *HttpServer) DeleteMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messageID := mux.Vars(r)["messageID"]
		actorID := r.URL.Query().Get("actorID")
		mode := r.URL.Query().Get("mode")

		var err error
		switch mode {
		case "everyone":
			err = s.lifecycle.DeleteForEveryone(r.Context(), messageID, actorID)
		case "", "self":
			err = s.lifecycle.DeleteForSelf(r.Context(), messageID, actorID)
		default:
			err = errs.Validation("mode must be 'self' or 'everyone'")
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ---------------------------------------------------------------------
// response helpers
// ---------------------------------------------------------------------

func (s *HttpServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("encode response failed", zap.Error(err))
	}
}

// writeError maps the application error taxonomy to HTTP statuses. Only
// the application message leaves the process; causes stay in the log.
func (s *HttpServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	var appErr *errs.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
		switch appErr.Code {
		case errs.CodeNotFound:
			status = http.StatusNotFound
		case errs.CodeForbidden:
			status = http.StatusForbidden
		case errs.CodeValidationFailed:
			status = http.StatusBadRequest
		case errs.CodeDependencyUnavailable:
			status = http.StatusServiceUnavailable
			message = "a backing service is unavailable"
		default:
			message = "internal server error"
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}

	s.writeJSON(w, status, map[string]string{"error": message})
}
