package model

import "encoding/json"

// Event names emitted to connected clients.
const (
	EventNewMessage         = "new_message"
	EventMessageUpdated     = "message_updated"
	EventMessageDeleted     = "message_deleted"
	EventMessagesRead       = "messages_read"
	EventTypingStatus       = "typing_status"
	EventChatEncryption     = "chat_encryption_updated"
	EventChatRetention      = "chat_retention_updated"
	EventChatMediaControls  = "chat_media_controls_updated"
	EventParticipantAdded   = "participant_added"
	EventParticipantRemoved = "participant_removed"
	EventSecurityReport     = "security_report"
)

// Event names accepted from clients.
const (
	EventJoinChat         = "join_chat"
	EventTyping           = "typing"
	EventReadMessages     = "read_messages"
	EventMessageDelivered = "message_delivered"
)

type (
	WsEvent struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	JoinChatPayload struct {
		ChatID string `json:"chatId"`
	}

	TypingPayload struct {
		ChatID   string `json:"chatId"`
		IsTyping bool   `json:"isTyping"`
	}

	ReadMessagesPayload struct {
		ChatID     string   `json:"chatId"`
		MessageIDs []string `json:"messageIds"`
	}

	MessageDeliveredPayload struct {
		MessageID string `json:"messageId"`
	}

	TypingStatusPayload struct {
		ChatID   string `json:"chatId"`
		UserID   string `json:"userId"`
		IsTyping bool   `json:"isTyping"`
	}

	MessageReadPayload struct {
		ChatID    string `json:"chatId"`
		MessageID string `json:"messageId"`
		ReaderID  string `json:"readerId"`
	}

	MessageDeletedPayload struct {
		ChatID    string `json:"chatId"`
		MessageID string `json:"messageId"`
	}

	SecurityReportPayload struct {
		ChatID  string   `json:"chatId"`
		UserID  string   `json:"userId"`
		Reason  string   `json:"reason"`
		Threats []string `json:"threats,omitempty"`
	}
)

// NewEvent marshals payload into a wire event. Marshal errors cannot
// happen for the payload structs above, so they are ignored.
func NewEvent(name string, payload any) WsEvent {
	data, _ := json.Marshal(payload)
	return WsEvent{Event: name, Payload: data}
}
