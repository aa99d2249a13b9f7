package model

import "time"

type ChatType string

const (
	ChatDirect ChatType = "direct"
	ChatGroup  ChatType = "group"
)

type (
	Chat struct {
		ID           string   `json:"id" bson:"_id"`
		Type         ChatType `json:"type" bson:"type"`
		Name         string   `json:"name,omitempty" bson:"name,omitempty"`
		Participants []string `json:"participants" bson:"participants"`
		Admins       []string `json:"admins,omitempty" bson:"admins,omitempty"` // group chats only

		// DirectKey is the sorted "a:b" pair key enforcing at most one
		// direct chat per unordered participant pair.
		DirectKey string `json:"-" bson:"direct_key,omitempty"`

		Encrypted bool `json:"encrypted" bson:"encrypted"`
		// PublicKeys maps participant -> identity public key, captured
		// when encryption is enabled.
		PublicKeys map[string][]byte `json:"publicKeys,omitempty" bson:"public_keys,omitempty"`

		Retention     RetentionPolicy `json:"retention" bson:"retention"`
		MediaControls MediaControls   `json:"mediaControls" bson:"media_controls"`

		LastMessage *LastMessage `json:"lastMessage,omitempty" bson:"last_message,omitempty"`
		CreatedBy   string       `json:"createdBy" bson:"created_by"`
		CreatedAt   time.Time    `json:"createdAt" bson:"created_at"`
		UpdatedAt   time.Time    `json:"updatedAt" bson:"updated_at"`
	}

	RetentionPolicy struct {
		Enabled bool `json:"enabled" bson:"enabled"`
		Days    int  `json:"days" bson:"days"`
	}

	MediaControls struct {
		AllowDownloads   bool `json:"allowDownloads" bson:"allow_downloads"`
		AllowScreenshots bool `json:"allowScreenshots" bson:"allow_screenshots"`
	}
)

func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Chat) IsAdmin(userID string) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// DirectChatKey builds the unordered pair key for a direct chat.
func DirectChatKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
