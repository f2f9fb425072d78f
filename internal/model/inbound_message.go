package model

import (
	"strings"
	"time"
)

type MessageStatus string

const (
	MessageStatusReceived   MessageStatus = "RECEIVED"
	MessageStatusProcessing MessageStatus = "PROCESSING"
	MessageStatusProcessed  MessageStatus = "PROCESSED"
	MessageStatusFailed     MessageStatus = "FAILED"
)

// Terminal reports whether the status is final. Terminal messages are never
// re-processed automatically.
func (s MessageStatus) Terminal() bool {
	return s == MessageStatusProcessed || s == MessageStatusFailed
}

type MediaKind string

const (
	MediaKindNone     MediaKind = ""
	MediaKindImage    MediaKind = "image"
	MediaKindVideo    MediaKind = "video"
	MediaKindAudio    MediaKind = "audio"
	MediaKindDocument MediaKind = "document"
)

// MediaKindFromMIME maps a declared content type onto a media kind.
func MediaKindFromMIME(mime string) MediaKind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case mime == "":
		return MediaKindNone
	case strings.HasPrefix(mime, "image/"):
		return MediaKindImage
	case strings.HasPrefix(mime, "video/"):
		return MediaKindVideo
	case strings.HasPrefix(mime, "audio/"):
		return MediaKindAudio
	default:
		return MediaKindDocument
	}
}

// InboundMessage is one received unit from a sender phone number.
type InboundMessage struct {
	Base
	ProviderID   string        `json:"provider_id" db:"provider_id"`
	Sender       string        `json:"sender" db:"sender"`
	ProjectID    *string       `json:"project_id,omitempty" db:"project_id"`
	ChannelID    *string       `json:"channel_id,omitempty" db:"channel_id"`
	Text         string        `json:"text,omitempty" db:"text"`
	MediaURL     string        `json:"media_url,omitempty" db:"media_url"`
	MediaType    string        `json:"media_type,omitempty" db:"media_type"`
	MediaKind    MediaKind     `json:"media_kind,omitempty" db:"media_kind"`
	Status       MessageStatus `json:"status" db:"status"`
	ErrorMessage *string       `json:"error_message,omitempty" db:"error_message"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty" db:"processed_at"`
}

// HasMedia reports whether the message carries an attachment.
func (m *InboundMessage) HasMedia() bool {
	return m.MediaURL != ""
}
