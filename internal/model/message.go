package model

import "time"

type MessageType string

const (
	MessageText         MessageType = "text"
	MessageMedia        MessageType = "media"
	MessageSystem       MessageType = "system"
	MessageSelfDestruct MessageType = "self-destruct"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// statusRank orders the delivery states so transitions stay monotonic.
func statusRank(s MessageStatus) int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Advances reports whether moving from to next goes forward in the
// sent -> delivered -> read ordering.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return statusRank(next) > statusRank(s)
}

type (
	Message struct {
		ID       string      `json:"id" bson:"_id"`
		ChatID   string      `json:"chatId" bson:"chat_id"`
		SenderID string      `json:"senderId" bson:"sender_id"`
		Type     MessageType `json:"type" bson:"type"`

		// Content holds plaintext for unencrypted chats; Envelope holds
		// the ciphertext for encrypted ones. Exactly one is set.
		Content  string    `json:"content,omitempty" bson:"content,omitempty"`
		Envelope *Envelope `json:"envelope,omitempty" bson:"envelope,omitempty"`

		// Media messages carry a file reference alongside the body.
		FileURL  string `json:"fileUrl,omitempty" bson:"file_url,omitempty"`
		FileName string `json:"fileName,omitempty" bson:"file_name,omitempty"`
		FileSize int64  `json:"fileSize,omitempty" bson:"file_size,omitempty"`

		Status      MessageStatus        `json:"status" bson:"status"`
		DeliveredAt map[string]time.Time `json:"deliveredAt,omitempty" bson:"delivered_at,omitempty"`
		ReadAt      map[string]time.Time `json:"readAt,omitempty" bson:"read_at,omitempty"`

		DeletedFor []string   `json:"-" bson:"deleted_for,omitempty"`
		ExpiresAt  *time.Time `json:"expiresAt,omitempty" bson:"expires_at,omitempty"`

		Edited    bool       `json:"edited" bson:"edited"`
		EditedAt  *time.Time `json:"editedAt,omitempty" bson:"edited_at,omitempty"`
		Timestamp time.Time  `json:"timestamp" bson:"timestamp"`
	}

	// LastMessage is the preview pointer kept on the chat.
	LastMessage struct {
		MessageID string    `json:"messageId" bson:"message_id"`
		SenderID  string    `json:"senderId" bson:"sender_id"`
		Preview   string    `json:"preview" bson:"preview"`
		SentAt    time.Time `json:"sentAt" bson:"sent_at"`
	}
)

// Expired reports whether a self-destruct deadline has passed.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// DeletedForUser reports whether the message is tombstoned for userID.
func (m *Message) DeletedForUser(userID string) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}

// VisibleTo combines the per-user tombstone and expiry rules used by
// listing queries.
func (m *Message) VisibleTo(userID string, now time.Time) bool {
	return !m.Expired(now) && !m.DeletedForUser(userID)
}
