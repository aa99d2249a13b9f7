package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"secure_chat/internal/broadcast"
	"secure_chat/internal/errs"
	"secure_chat/internal/keystore"
	"secure_chat/internal/model"
	"secure_chat/internal/service/audit"
	"secure_chat/internal/utils/log"
)

// Store is the chat persistence collaborator.
type Store interface {
	Create(ctx context.Context, chat *model.Chat) error
	Get(ctx context.Context, chatID string) (*model.Chat, error)

	// FindDirect looks up a direct chat by its unordered pair key.
	// Returns (nil, nil) when no such chat exists.
	FindDirect(ctx context.Context, directKey string) (*model.Chat, error)

	AddParticipant(ctx context.Context, chatID, userID string) error
	RemoveParticipant(ctx context.Context, chatID, userID string) error
	SetEncryption(ctx context.Context, chatID string, enabled bool, keys map[string][]byte) error
	SetRetention(ctx context.Context, chatID string, r model.RetentionPolicy) error
	SetMediaControls(ctx context.Context, chatID string, mc model.MediaControls) error
}

// Service manages chat membership and policy toggles.
type Service struct {
	store   Store
	keys    keystore.Store
	hub     *broadcast.Hub
	auditor audit.Sink
}

func NewService(store Store, keys keystore.Store, hub *broadcast.Hub, auditor audit.Sink) *Service {
	return &Service{store: store, keys: keys, hub: hub, auditor: auditor}
}

// CreateDirect creates the direct chat between two users, or returns the
// existing one: at most one record per unordered pair.
func (s *Service) CreateDirect(ctx context.Context, userA, userB string) (*model.Chat, error) {
	if userA == "" || userB == "" || userA == userB {
		return nil, errs.Validation("a direct chat needs two distinct participants")
	}

	key := model.DirectChatKey(userA, userB)
	existing, err := s.store.FindDirect(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	chat := &model.Chat{
		ID:           uuid.New().String(),
		Type:         model.ChatDirect,
		Participants: []string{userA, userB},
		DirectKey:    key,
		CreatedBy:    userA,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *Service) CreateGroup(ctx context.Context, creatorID, name string, participants []string) (*model.Chat, error) {
	if name == "" {
		return nil, errs.Validation("group chat requires a name")
	}

	members := map[string]struct{}{creatorID: {}}
	for _, p := range participants {
		members[p] = struct{}{}
	}
	if len(members) < 2 {
		return nil, errs.Validation("group chat requires at least two participants")
	}

	all := make([]string, 0, len(members))
	for p := range members {
		all = append(all, p)
	}

	now := time.Now()
	chat := &model.Chat{
		ID:           uuid.New().String(),
		Type:         model.ChatGroup,
		Name:         name,
		Participants: all,
		Admins:       []string{creatorID},
		CreatedBy:    creatorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *Service) Get(ctx context.Context, chatID string) (*model.Chat, error) {
	return s.store.Get(ctx, chatID)
}

func (s *Service) AddParticipant(ctx context.Context, chatID, actorID, userID string) error {
	chat, err := s.requireAdmin(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if chat.HasParticipant(userID) {
		return nil
	}

	if err := s.store.AddParticipant(ctx, chatID, userID); err != nil {
		return err
	}

	ev := model.NewEvent(model.EventParticipantAdded, map[string]string{
		"chatId": chatID,
		"userId": userID,
	})
	s.hub.Broadcast(chatID, ev, "")
	s.hub.Broadcast(broadcast.UserRoom(userID), ev, "")
	s.auditor.Record(actorID, "participant_add",
		map[string]any{"chatId": chatID, "userId": userID}, true, "info")
	return nil
}

func (s *Service) RemoveParticipant(ctx context.Context, chatID, actorID, userID string) error {
	chat, err := s.requireAdmin(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return errs.NotFound("user is not a participant")
	}

	if err := s.store.RemoveParticipant(ctx, chatID, userID); err != nil {
		return err
	}

	ev := model.NewEvent(model.EventParticipantRemoved, map[string]string{
		"chatId": chatID,
		"userId": userID,
	})
	s.hub.Broadcast(chatID, ev, "")
	s.hub.Broadcast(broadcast.UserRoom(userID), ev, "")
	s.auditor.Record(actorID, "participant_remove",
		map[string]any{"chatId": chatID, "userId": userID}, true, "info")
	return nil
}

// SetEncryption toggles end-to-end encryption. Enabling captures each
// participant's current identity public key into the chat's key map;
// participants who never published keys are skipped and will be skipped
// again at send time.
func (s *Service) SetEncryption(ctx context.Context, chatID, actorID string, enabled bool) (*model.Chat, error) {
	chat, err := s.store.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(actorID) {
		return nil, errs.Forbidden("not a chat participant")
	}
	if chat.Type == model.ChatGroup && !chat.IsAdmin(actorID) {
		return nil, errs.Forbidden("only an admin can change group encryption")
	}

	keys := make(map[string][]byte)
	if enabled {
		for _, p := range chat.Participants {
			bundle, err := s.keys.FetchKeyBundle(ctx, p)
			if err != nil {
				if errs.IsCode(err, errs.CodeNotFound) {
					log.Warn("participant has no published keys",
						zap.String("chatID", chatID),
						zap.String("userID", p),
					)
					continue
				}
				return nil, err
			}
			keys[p] = bundle.IdentityKey
		}
	}

	if err := s.store.SetEncryption(ctx, chatID, enabled, keys); err != nil {
		return nil, err
	}

	s.hub.Broadcast(chatID, model.NewEvent(model.EventChatEncryption, map[string]any{
		"chatId":    chatID,
		"encrypted": enabled,
	}), "")
	s.auditor.Record(actorID, "chat_encryption_toggle",
		map[string]any{"chatId": chatID, "enabled": enabled}, true, "info")

	return s.store.Get(ctx, chatID)
}

func (s *Service) SetRetention(ctx context.Context, chatID, actorID string, policy model.RetentionPolicy) error {
	if policy.Enabled && policy.Days <= 0 {
		return errs.Validation("retention days must be positive")
	}
	if _, err := s.requireAdminOrDirect(ctx, chatID, actorID); err != nil {
		return err
	}

	if err := s.store.SetRetention(ctx, chatID, policy); err != nil {
		return err
	}
	s.hub.Broadcast(chatID, model.NewEvent(model.EventChatRetention, map[string]any{
		"chatId":    chatID,
		"retention": policy,
	}), "")
	return nil
}

func (s *Service) SetMediaControls(ctx context.Context, chatID, actorID string, controls model.MediaControls) error {
	if _, err := s.requireAdminOrDirect(ctx, chatID, actorID); err != nil {
		return err
	}

	if err := s.store.SetMediaControls(ctx, chatID, controls); err != nil {
		return err
	}
	s.hub.Broadcast(chatID, model.NewEvent(model.EventChatMediaControls, map[string]any{
		"chatId":        chatID,
		"mediaControls": controls,
	}), "")
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, chatID, actorID string) (*model.Chat, error) {
	chat, err := s.store.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Type != model.ChatGroup {
		return nil, errs.Validation("membership changes apply to group chats only")
	}
	if !chat.IsAdmin(actorID) {
		return nil, errs.Forbidden("admin privileges required")
	}
	return chat, nil
}

func (s *Service) requireAdminOrDirect(ctx context.Context, chatID, actorID string) (*model.Chat, error) {
	chat, err := s.store.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(actorID) {
		return nil, errs.Forbidden("not a chat participant")
	}
	if chat.Type == model.ChatGroup && !chat.IsAdmin(actorID) {
		return nil, errs.Forbidden("admin privileges required")
	}
	return chat, nil
}
