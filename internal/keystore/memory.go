package keystore

import (
	"context"
	"sync"

	"secure_chat/internal/errs"
	"secure_chat/internal/model"
)

// MemoryStore is the in-process Store used in tests and local
// development. A single mutex guards all three maps, which also makes
// the one-time pre-key claim atomic.
type MemoryStore struct {
	mu         sync.Mutex
	identities map[string]*model.IdentityKeyBundle
	signedPre  map[string][]*model.SignedPreKey
	oneTime    map[string][]*model.OneTimePreKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]*model.IdentityKeyBundle),
		signedPre:  make(map[string][]*model.SignedPreKey),
		oneTime:    make(map[string][]*model.OneTimePreKey),
	}
}

func (s *MemoryStore) StoreKeys(ctx context.Context, identity *model.IdentityKeyBundle, spk *model.SignedPreKey, otks []model.OneTimePreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := identity.UserID
	s.identities[userID] = identity

	// Superseded keys stay resident: old envelopes reference them.
	replaced := false
	for i, prev := range s.signedPre[userID] {
		if prev.KeyID == spk.KeyID {
			s.signedPre[userID][i] = spk
			replaced = true
		} else {
			prev.Superseded = true
		}
	}
	if !replaced {
		s.signedPre[userID] = append(s.signedPre[userID], spk)
	}

	existing := make(map[uint32]bool, len(s.oneTime[userID]))
	for _, k := range s.oneTime[userID] {
		existing[k.KeyID] = true
	}
	for i := range otks {
		if existing[otks[i].KeyID] {
			continue
		}
		k := otks[i]
		s.oneTime[userID] = append(s.oneTime[userID], &k)
	}
	return nil
}

func (s *MemoryStore) FetchKeyBundle(ctx context.Context, userID string) (*model.KeyBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[userID]
	if !ok {
		return nil, errs.NotFound("no published keys for user " + userID)
	}

	bundle := &model.KeyBundle{
		UserID:      userID,
		IdentityKey: identity.PublicKey,
		SigningKey:  identity.SigningKey,
	}
	for _, spk := range s.signedPre[userID] {
		if !spk.Superseded {
			bundle.SignedPreKey = spk
			break
		}
	}

	for _, k := range s.oneTime[userID] {
		if !k.Used {
			k.Used = true
			claimed := *k
			bundle.OneTimePreKey = &claimed
			break
		}
	}
	return bundle, nil
}

func (s *MemoryStore) PrivateMaterial(ctx context.Context, userID string) (*model.IdentityKeyBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[userID]
	if !ok {
		return nil, errs.NotFound("no published keys for user " + userID)
	}
	return identity, nil
}

func (s *MemoryStore) SignedPreKeyByID(ctx context.Context, userID string, keyID uint32) (*model.SignedPreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, spk := range s.signedPre[userID] {
		if spk.KeyID == keyID {
			return spk, nil
		}
	}
	return nil, errs.NotFound("signed pre-key not found")
}

func (s *MemoryStore) OneTimePreKeyByID(ctx context.Context, userID string, keyID uint32) (*model.OneTimePreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.oneTime[userID] {
		if k.KeyID == keyID {
			return k, nil
		}
	}
	return nil, errs.NotFound("one-time pre-key not found")
}

func (s *MemoryStore) CountOneTimePreKeys(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, k := range s.oneTime[userID] {
		if !k.Used {
			count++
		}
	}
	return count, nil
}
