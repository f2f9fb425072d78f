package model

// VoiceNote is one transcribed audio clip. LinkedDocumentID is set once at
// creation and never re-evaluated.
type VoiceNote struct {
	Base
	ProjectID         string  `json:"project_id" db:"project_id"`
	MessageID         string  `json:"message_id" db:"message_id"`
	LinkedDocumentID  *string `json:"linked_document_id,omitempty" db:"linked_document_id"`
	AudioURL          string  `json:"audio_url" db:"audio_url"`
	MimeType          string  `json:"mime_type" db:"mime_type"`
	Transcript        *string `json:"transcript,omitempty" db:"transcript"`
	Language          string  `json:"language,omitempty" db:"language"`
	DurationSeconds   float64 `json:"duration_seconds" db:"duration_seconds"`
	DurationEstimated bool    `json:"duration_estimated" db:"duration_estimated"`
	Sender            string  `json:"sender" db:"sender"`
}
