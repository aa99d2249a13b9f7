package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"secure_chat/internal/broadcast"
	"secure_chat/internal/envelope"
	"secure_chat/internal/errs"
	"secure_chat/internal/keystore"
	"secure_chat/internal/model"
	"secure_chat/internal/presence"
	"secure_chat/internal/scanner"
	"secure_chat/internal/service/audit"
	"secure_chat/internal/service/push"
	"secure_chat/internal/utils/log"
)

// Placeholder shown in place of a message that failed to decrypt during
// listing. One corrupt record never fails the whole page.
const DecryptionPlaceholder = "[message could not be decrypted]"

// Service drives the message state machine: send, deliver, read, edit,
// the two deletion flavors and self-destruct filtering.
type Service struct {
	chats    ChatStore
	messages MessageStore
	sessions SessionStore
	keys     keystore.Store
	cipher   *envelope.Cipher
	hub      *broadcast.Hub
	registry *presence.Registry
	notifier push.Notifier
	auditor  audit.Sink
	scan     scanner.Scanner

	editWindow   time.Duration
	deleteWindow time.Duration

	now func() time.Time
}

type Options struct {
	EditWindow   time.Duration
	DeleteWindow time.Duration
}

func NewService(
	chats ChatStore,
	messages MessageStore,
	sessions SessionStore,
	keys keystore.Store,
	hub *broadcast.Hub,
	registry *presence.Registry,
	notifier push.Notifier,
	auditor audit.Sink,
	scan scanner.Scanner,
	opts Options,
) *Service {
	if opts.EditWindow == 0 {
		opts.EditWindow = 15 * time.Minute
	}
	if opts.DeleteWindow == 0 {
		opts.DeleteWindow = 30 * time.Minute
	}
	return &Service{
		chats:        chats,
		messages:     messages,
		sessions:     sessions,
		keys:         keys,
		cipher:       envelope.NewCipher(),
		hub:          hub,
		registry:     registry,
		notifier:     notifier,
		auditor:      auditor,
		scan:         scan,
		editWindow:   opts.EditWindow,
		deleteWindow: opts.DeleteWindow,
		now:          time.Now,
	}
}

type SendRequest struct {
	ChatID   string            `json:"chatId"`
	SenderID string            `json:"senderId"`
	Type     model.MessageType `json:"type"`
	Content  string            `json:"content"`

	FileURL  string `json:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
	FileMime string `json:"fileMime,omitempty"`

	// ExpireSeconds > 0 makes this a self-destruct message.
	ExpireSeconds int `json:"expireSeconds,omitempty"`
}

// Send validates, optionally encrypts, persists and fans out a new
// message. Encryption failure aborts the send entirely; no partial
// record is ever written.
func (s *Service) Send(ctx context.Context, req SendRequest) (*model.Message, error) {
	chat, err := s.chats.Get(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(req.SenderID) {
		return nil, errs.Forbidden("sender is not a chat participant")
	}
	if err := validateSend(req); err != nil {
		return nil, err
	}

	if req.Type == model.MessageMedia {
		if err := s.scanMedia(req, chat); err != nil {
			return nil, err
		}
	}

	now := s.now()
	msg := &model.Message{
		ID:        uuid.New().String(),
		ChatID:    chat.ID,
		SenderID:  req.SenderID,
		Type:      req.Type,
		FileURL:   req.FileURL,
		FileName:  req.FileName,
		FileSize:  req.FileSize,
		Status:    model.StatusSent,
		Timestamp: now,
	}
	if req.ExpireSeconds > 0 {
		msg.Type = model.MessageSelfDestruct
		expires := now.Add(time.Duration(req.ExpireSeconds) * time.Second)
		msg.ExpiresAt = &expires
	}

	if chat.Encrypted {
		env, err := s.encryptFor(ctx, chat, req.SenderID, []byte(req.Content))
		if err != nil {
			return nil, err
		}
		msg.Envelope = env
	} else {
		msg.Content = req.Content
	}

	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}
	if msg.Envelope != nil {
		if err := s.sessions.InsertMany(ctx, envelope.Sessions(msg.ID, msg.SenderID, msg.Envelope)); err != nil {
			// Session records serve the audit window; the message itself
			// is already durable.
			log.Error("persist encryption sessions failed",
				zap.String("messageID", msg.ID),
				zap.Error(err),
			)
		}
	}

	if err := s.chats.SetLastMessage(ctx, chat.ID, lastMessageOf(msg)); err != nil {
		log.Error("update lastMessage failed", zap.String("chatID", chat.ID), zap.Error(err))
	}

	s.fanOut(chat, msg)
	s.auditor.Record(req.SenderID, "message_send",
		map[string]any{"chatId": chat.ID, "messageId": msg.ID, "type": string(msg.Type)},
		true, "info")

	return msg, nil
}

func validateSend(req SendRequest) error {
	switch req.Type {
	case model.MessageText, model.MessageSelfDestruct, model.MessageSystem:
		if req.Content == "" {
			return errs.Validation("message content is required")
		}
	case model.MessageMedia:
		if req.FileURL == "" {
			return errs.Validation("media message requires a file")
		}
	default:
		return errs.Validation("unknown message type " + string(req.Type))
	}
	if req.ExpireSeconds < 0 {
		return errs.Validation("expiration must be positive")
	}
	return nil
}

func (s *Service) scanMedia(req SendRequest, chat *model.Chat) error {
	file := scanner.File{Name: req.FileName, Size: req.FileSize, Mime: req.FileMime}

	result, err := s.scan.ScanForThreats(file)
	if err != nil {
		return errs.DependencyUnavailable("security scanner", err)
	}
	if !result.Safe {
		s.reportThreat(chat, req.SenderID, "threat scan failed", result.Threats)
		return errs.Validation("file rejected by security scan")
	}

	moderation, err := s.scan.ModerateContent(file)
	if err != nil {
		return errs.DependencyUnavailable("content moderation", err)
	}
	if !moderation.Safe {
		s.reportThreat(chat, req.SenderID, "content moderation failed", moderation.Flags)
		return errs.Validation("file rejected by content moderation")
	}
	return nil
}

func (s *Service) reportThreat(chat *model.Chat, userID, reason string, threats []string) {
	ev := model.NewEvent(model.EventSecurityReport, model.SecurityReportPayload{
		ChatID:  chat.ID,
		UserID:  userID,
		Reason:  reason,
		Threats: threats,
	})
	s.hub.Broadcast(chat.ID, ev, "")
	s.auditor.Record(userID, "media_blocked",
		map[string]any{"chatId": chat.ID, "reason": reason},
		false, "warning")
}

// encryptFor fetches the sender's private material and the other
// participants' bundles, then produces the envelope. Participants who
// never published keys are skipped inside the cipher; the message still
// goes to everyone else.
func (s *Service) encryptFor(ctx context.Context, chat *model.Chat, senderID string, plaintext []byte) (*model.Envelope, error) {
	sender, err := s.keys.PrivateMaterial(ctx, senderID)
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return nil, errs.Validation("sender has no published keys")
		}
		return nil, err
	}

	recipients := make([]string, 0, len(chat.Participants)-1)
	bundles := make(map[string]*model.KeyBundle)
	for _, p := range chat.Participants {
		if p == senderID {
			continue
		}
		recipients = append(recipients, p)

		bundle, err := s.keys.FetchKeyBundle(ctx, p)
		if err != nil {
			if errs.IsCode(err, errs.CodeNotFound) {
				continue
			}
			return nil, err
		}
		bundles[p] = bundle
	}

	return s.cipher.Encrypt(plaintext, sender, recipients, bundles)
}

// fanOut delivers the new-message event at most once per live socket:
// via the chat room where the device has joined it, via the personal
// room otherwise, and through the push collaborator when the user has no
// connection at all.
func (s *Service) fanOut(chat *model.Chat, msg *model.Message) {
	ev := model.NewEvent(model.EventNewMessage, msg)

	inChatRoom := make(map[string]struct{})
	for _, connID := range s.hub.Members(chat.ID) {
		inChatRoom[connID] = struct{}{}
	}
	s.hub.Broadcast(chat.ID, ev, "")

	for _, p := range chat.Participants {
		if p == msg.SenderID {
			continue
		}

		conns := s.registry.ConnectionsFor(p)
		if len(conns) == 0 {
			s.notifier.SendToUser(p, push.Notification{
				Title: "New message",
				Body:  preview(msg),
				Data:  map[string]string{"chatId": chat.ID, "messageId": msg.ID},
			})
			continue
		}

		// Devices joined to the chat room already received the event
		// above; reach the user's remaining devices through the personal
		// room with the chat-room sockets excluded.
		s.hub.BroadcastExcluding(broadcast.UserRoom(p), ev, inChatRoom)
	}
}

// MarkDelivered advances sent -> delivered for a non-sender participant.
// Monotonic: a message already delivered or read is unaffected.
func (s *Service) MarkDelivered(ctx context.Context, messageID, userID string) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID {
		return nil
	}
	return s.messages.MarkDelivered(ctx, messageID, userID, s.now())
}

// MarkRead processes an explicit read acknowledgement for a batch of
// messages. Idempotent per user: only the first ack advances state and
// notifies the sender; duplicates emit nothing.
func (s *Service) MarkRead(ctx context.Context, chatID string, messageIDs []string, readerID string) error {
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(readerID) {
		return errs.Forbidden("reader is not a chat participant")
	}

	for _, messageID := range messageIDs {
		msg, err := s.messages.Get(ctx, messageID)
		if err != nil {
			if errs.IsCode(err, errs.CodeNotFound) {
				continue
			}
			return err
		}
		if msg.ChatID != chatID || msg.SenderID == readerID {
			continue
		}

		first, err := s.messages.MarkRead(ctx, messageID, readerID, s.now())
		if err != nil {
			return err
		}
		if !first {
			continue
		}

		ev := model.NewEvent(model.EventMessagesRead, model.MessageReadPayload{
			ChatID:    chatID,
			MessageID: messageID,
			ReaderID:  readerID,
		})
		s.hub.Broadcast(broadcast.UserRoom(msg.SenderID), ev, "")
	}
	return nil
}

// Edit replaces the content of a text message. Sender-only, text-only,
// within the edit window. Encrypted chats get a fresh envelope.
func (s *Service) Edit(ctx context.Context, messageID, editorID, newContent string) (*model.Message, error) {
	if newContent == "" {
		return nil, errs.Validation("edited content cannot be empty")
	}

	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != editorID {
		return nil, errs.Forbidden("only the sender can edit a message")
	}
	if msg.Type != model.MessageText {
		return nil, errs.Validation("only text messages can be edited")
	}
	if s.now().Sub(msg.Timestamp) > s.editWindow {
		return nil, errs.Forbidden("edit window has expired")
	}

	chat, err := s.chats.Get(ctx, msg.ChatID)
	if err != nil {
		return nil, err
	}

	var env *model.Envelope
	content := ""
	if chat.Encrypted {
		env, err = s.encryptFor(ctx, chat, editorID, []byte(newContent))
		if err != nil {
			return nil, err
		}
	} else {
		content = newContent
	}

	now := s.now()
	if err := s.messages.UpdateContent(ctx, messageID, content, env, now); err != nil {
		return nil, err
	}
	if env != nil {
		if err := s.sessions.InsertMany(ctx, envelope.Sessions(messageID, editorID, env)); err != nil {
			log.Error("persist edit sessions failed", zap.String("messageID", messageID), zap.Error(err))
		}
	}

	updated, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}

	s.hub.Broadcast(chat.ID, model.NewEvent(model.EventMessageUpdated, updated), "")
	s.auditor.Record(editorID, "message_edit",
		map[string]any{"chatId": chat.ID, "messageId": messageID},
		true, "info")
	return updated, nil
}

// DeleteForEveryone removes the record globally. Permitted for the
// sender within the delete window and for a chat admin at any time. The
// chat's lastMessage pointer is repaired to the next surviving message.
func (s *Service) DeleteForEveryone(ctx context.Context, messageID, actorID string) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	chat, err := s.chats.Get(ctx, msg.ChatID)
	if err != nil {
		return err
	}

	isSenderInWindow := msg.SenderID == actorID && s.now().Sub(msg.Timestamp) <= s.deleteWindow
	if !isSenderInWindow && !chat.IsAdmin(actorID) {
		return errs.Forbidden("delete for everyone requires sender within window or admin")
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return err
	}

	latest, err := s.messages.LatestSurviving(ctx, chat.ID)
	if err != nil {
		log.Error("lastMessage repair lookup failed", zap.String("chatID", chat.ID), zap.Error(err))
	} else {
		var lm *model.LastMessage
		if latest != nil {
			lm = lastMessageOf(latest)
		}
		if err := s.chats.SetLastMessage(ctx, chat.ID, lm); err != nil {
			log.Error("lastMessage repair failed", zap.String("chatID", chat.ID), zap.Error(err))
		}
	}

	ev := model.NewEvent(model.EventMessageDeleted, model.MessageDeletedPayload{
		ChatID:    chat.ID,
		MessageID: messageID,
	})
	s.hub.Broadcast(chat.ID, ev, "")
	s.auditor.Record(actorID, "message_delete_everyone",
		map[string]any{"chatId": chat.ID, "messageId": messageID},
		true, "warning")
	return nil
}

// DeleteForSelf tombstones the message for the acting participant only.
func (s *Service) DeleteForSelf(ctx context.Context, messageID, actorID string) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	chat, err := s.chats.Get(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(actorID) {
		return errs.Forbidden("actor is not a chat participant")
	}
	return s.messages.AddDeletedFor(ctx, messageID, actorID)
}

// List returns the chat history visible to userID, newest last.
// Encrypted messages are decrypted with the user's key material; a
// message that cannot be decrypted comes back as a placeholder instead
// of failing the page. Fetched messages are marked delivered.
func (s *Service) List(ctx context.Context, chatID, userID string, limit int64) ([]model.Message, error) {
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, errs.Forbidden("not a chat participant")
	}

	msgs, err := s.messages.List(ctx, chatID, userID, limit)
	if err != nil {
		return nil, err
	}

	var identity *model.IdentityKeyBundle
	if chat.Encrypted {
		identity, err = s.keys.PrivateMaterial(ctx, userID)
		if err != nil && !errs.IsCode(err, errs.CodeNotFound) {
			return nil, err
		}
	}

	out := make([]model.Message, 0, len(msgs))
	for i := range msgs {
		msg := msgs[i]
		if msg.Envelope != nil && msg.SenderID != userID {
			msg.Content = s.open(ctx, &msg, userID, identity)
			msg.Envelope = nil
		}
		if msg.SenderID != userID {
			if err := s.messages.MarkDelivered(ctx, msg.ID, userID, s.now()); err != nil {
				log.Warn("mark delivered on fetch failed",
					zap.String("messageID", msg.ID),
					zap.Error(err),
				)
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

// open gathers the pre-key privates the envelope's wrapped key
// references and decrypts. Superseded signed pre-keys and claimed
// one-time keys stay resident in the key store, so older envelopes
// remain openable after rotation of the pre-keys alone.
func (s *Service) open(ctx context.Context, msg *model.Message, userID string, identity *model.IdentityKeyBundle) string {
	if identity == nil || len(identity.PrivateKey) != 32 {
		return DecryptionPlaceholder
	}

	wk, ok := msg.Envelope.WrappedKeys[userID]
	if !ok {
		return DecryptionPlaceholder
	}

	spk, err := s.keys.SignedPreKeyByID(ctx, userID, wk.SignedKeyID)
	if err != nil {
		log.Warn("signed pre-key lookup failed during listing",
			zap.String("messageID", msg.ID),
			zap.Uint32("keyID", wk.SignedKeyID),
			zap.Error(err),
		)
		return DecryptionPlaceholder
	}

	material := &envelope.RecipientMaterial{
		IdentityPriv:     identity.PrivateKey,
		SignedPreKeyPriv: spk.PrivateKey,
	}
	if wk.OneTimeKeyID != 0 {
		otk, err := s.keys.OneTimePreKeyByID(ctx, userID, wk.OneTimeKeyID)
		if err != nil {
			log.Warn("one-time pre-key lookup failed during listing",
				zap.String("messageID", msg.ID),
				zap.Uint32("keyID", wk.OneTimeKeyID),
				zap.Error(err),
			)
			return DecryptionPlaceholder
		}
		material.OneTimePriv = otk.PrivateKey
	}

	plain, err := s.cipher.Decrypt(msg.Envelope, msg.SenderID, userID, material)
	if err != nil {
		log.Warn("message decryption failed during listing",
			zap.String("messageID", msg.ID),
			zap.String("userID", userID),
			zap.Error(err),
		)
		return DecryptionPlaceholder
	}
	return string(plain)
}

func lastMessageOf(msg *model.Message) *model.LastMessage {
	return &model.LastMessage{
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Preview:   preview(msg),
		SentAt:    msg.Timestamp,
	}
}

func preview(msg *model.Message) string {
	switch {
	case msg.Envelope != nil:
		return "Encrypted message"
	case msg.Type == model.MessageMedia:
		return "Media: " + msg.FileName
	case len(msg.Content) > 80:
		return fmt.Sprintf("%.77s...", msg.Content)
	default:
		return msg.Content
	}
}
