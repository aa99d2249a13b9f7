package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure_chat/internal/broadcast"
	"secure_chat/internal/errs"
	"secure_chat/internal/keystore"
	"secure_chat/internal/model"
	"secure_chat/internal/service/audit"
)

type fakeStore struct {
	chats  map[string]*model.Chat
	direct map[string]string // direct key -> chat ID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chats:  make(map[string]*model.Chat),
		direct: make(map[string]string),
	}
}

func (s *fakeStore) Create(ctx context.Context, chat *model.Chat) error {
	s.chats[chat.ID] = chat
	if chat.DirectKey != "" {
		s.direct[chat.DirectKey] = chat.ID
	}
	return nil
}

func (s *fakeStore) Get(ctx context.Context, chatID string) (*model.Chat, error) {
	c, ok := s.chats[chatID]
	if !ok {
		return nil, errs.NotFound("chat " + chatID)
	}
	return c, nil
}

func (s *fakeStore) FindDirect(ctx context.Context, directKey string) (*model.Chat, error) {
	id, ok := s.direct[directKey]
	if !ok {
		return nil, nil
	}
	return s.chats[id], nil
}

func (s *fakeStore) AddParticipant(ctx context.Context, chatID, userID string) error {
	c, ok := s.chats[chatID]
	if !ok {
		return errs.NotFound("chat " + chatID)
	}
	if !c.HasParticipant(userID) {
		c.Participants = append(c.Participants, userID)
	}
	return nil
}

func (s *fakeStore) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	c, ok := s.chats[chatID]
	if !ok {
		return errs.NotFound("chat " + chatID)
	}
	for i, p := range c.Participants {
		if p == userID {
			c.Participants = append(c.Participants[:i], c.Participants[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeStore) SetEncryption(ctx context.Context, chatID string, enabled bool, keys map[string][]byte) error {
	c, ok := s.chats[chatID]
	if !ok {
		return errs.NotFound("chat " + chatID)
	}
	c.Encrypted = enabled
	if enabled {
		c.PublicKeys = keys
	} else {
		c.PublicKeys = nil
	}
	return nil
}

func (s *fakeStore) SetRetention(ctx context.Context, chatID string, r model.RetentionPolicy) error {
	c, ok := s.chats[chatID]
	if !ok {
		return errs.NotFound("chat " + chatID)
	}
	c.Retention = r
	return nil
}

func (s *fakeStore) SetMediaControls(ctx context.Context, chatID string, mc model.MediaControls) error {
	c, ok := s.chats[chatID]
	if !ok {
		return errs.NotFound("chat " + chatID)
	}
	c.MediaControls = mc
	return nil
}

func newTestService() (*Service, *fakeStore, *keystore.MemoryStore) {
	store := newFakeStore()
	keys := keystore.NewMemoryStore()
	svc := NewService(store, keys, broadcast.NewHub(), audit.NopSink{})
	return svc, store, keys
}

func TestCreateDirectIsUniquePerPair(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, model.ChatDirect, first.Type)
	assert.ElementsMatch(t, []string{"alice", "bob"}, first.Participants)

	// Same pair in either order resolves to the existing chat.
	again, err := svc.CreateDirect(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestCreateDirectValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateDirect(ctx, "alice", "alice")
	assert.True(t, errs.IsCode(err, errs.CodeValidationFailed))

	_, err = svc.CreateDirect(ctx, "alice", "")
	assert.True(t, errs.IsCode(err, errs.CodeValidationFailed))
}

func TestCreateGroup(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	chat, err := svc.CreateGroup(ctx, "alice", "team", []string{"bob", "carol", "alice"})
	require.NoError(t, err)
	assert.Equal(t, model.ChatGroup, chat.Type)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, chat.Participants)
	assert.Equal(t, []string{"alice"}, chat.Admins)

	_, err = svc.CreateGroup(ctx, "alice", "", []string{"bob"})
	assert.True(t, errs.IsCode(err, errs.CodeValidationFailed))

	_, err = svc.CreateGroup(ctx, "alice", "solo", nil)
	assert.True(t, errs.IsCode(err, errs.CodeValidationFailed))
}

func TestMembershipRequiresGroupAdmin(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "alice", "team", []string{"bob"})
	require.NoError(t, err)

	err = svc.AddParticipant(ctx, group.ID, "bob", "carol")
	assert.True(t, errs.IsCode(err, errs.CodeForbidden))

	require.NoError(t, svc.AddParticipant(ctx, group.ID, "alice", "carol"))
	updated, _ := svc.Get(ctx, group.ID)
	assert.True(t, updated.HasParticipant("carol"))

	// Adding an existing participant is a no-op.
	require.NoError(t, svc.AddParticipant(ctx, group.ID, "alice", "carol"))

	err = svc.RemoveParticipant(ctx, group.ID, "alice", "nobody")
	assert.True(t, errs.IsCode(err, errs.CodeNotFound))

	require.NoError(t, svc.RemoveParticipant(ctx, group.ID, "alice", "carol"))
	updated, _ = svc.Get(ctx, group.ID)
	assert.False(t, updated.HasParticipant("carol"))

	// Direct chats have fixed membership.
	direct, err := svc.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	err = svc.AddParticipant(ctx, direct.ID, "alice", "carol")
	assert.True(t, errs.IsCode(err, errs.CodeValidationFailed))
}

func TestSetEncryptionCapturesPublishedKeys(t *testing.T) {
	svc, _, keys := newTestService()
	ctx := context.Background()

	chat, err := svc.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	identity, spk, otks, err := keystore.Generate("alice", 2)
	require.NoError(t, err)
	require.NoError(t, keys.StoreKeys(ctx, identity, spk, otks))

	// Bob never published keys; enabling still succeeds with alice only.
	updated, err := svc.SetEncryption(ctx, chat.ID, "alice", true)
	require.NoError(t, err)
	assert.True(t, updated.Encrypted)
	assert.Equal(t, identity.PublicKey, updated.PublicKeys["alice"])
	assert.NotContains(t, updated.PublicKeys, "bob")

	updated, err = svc.SetEncryption(ctx, chat.ID, "alice", false)
	require.NoError(t, err)
	assert.False(t, updated.Encrypted)
	assert.Empty(t, updated.PublicKeys)
}

func TestSetEncryptionPermissions(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "alice", "team", []string{"bob"})
	require.NoError(t, err)

	_, err = svc.SetEncryption(ctx, group.ID, "bob", true)
	assert.True(t, errs.IsCode(err, errs.CodeForbidden))

	_, err = svc.SetEncryption(ctx, group.ID, "mallory", true)
	assert.True(t, errs.IsCode(err, errs.CodeForbidden))

	_, err = svc.SetEncryption(ctx, "missing", "alice", true)
	assert.True(t, errs.IsCode(err, errs.CodeNotFound))
}

func TestSetRetention(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	direct, err := svc.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	err = svc.SetRetention(ctx, direct.ID, "alice", model.RetentionPolicy{Enabled: true, Days: 0})
	assert.True(t, errs.IsCode(err, errs.CodeValidationFailed))

	require.NoError(t, svc.SetRetention(ctx, direct.ID, "bob", model.RetentionPolicy{Enabled: true, Days: 30}))
	updated, _ := store.Get(ctx, direct.ID)
	assert.Equal(t, 30, updated.Retention.Days)

	group, err := svc.CreateGroup(ctx, "alice", "team", []string{"bob"})
	require.NoError(t, err)
	err = svc.SetRetention(ctx, group.ID, "bob", model.RetentionPolicy{Enabled: true, Days: 7})
	assert.True(t, errs.IsCode(err, errs.CodeForbidden))
}

func TestSetMediaControls(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	direct, err := svc.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	err = svc.SetMediaControls(ctx, direct.ID, "mallory", model.MediaControls{})
	assert.True(t, errs.IsCode(err, errs.CodeForbidden))

	controls := model.MediaControls{AllowDownloads: true, AllowScreenshots: false}
	require.NoError(t, svc.SetMediaControls(ctx, direct.ID, "alice", controls))
	updated, _ := store.Get(ctx, direct.ID)
	assert.Equal(t, controls, updated.MediaControls)
}
