package model

import "time"

// HistoryExport is the top-level JSON structure for a student's activity export.
type HistoryExport struct {
	Email       string           `json:"email"`
	StudentID   string           `json:"student_id"`
	StudentName string           `json:"student_name"`
	ExportedAt  time.Time        `json:"exported_at"`
	Feedback    []FeedbackRecord `json:"feedback"`
	Comments    []CommentRecord  `json:"comments"`
	Drafts      []DraftRecord    `json:"drafts"`
}

// FeedbackRecord is one completed questionnaire in an export.
type FeedbackRecord struct {
	FeedbackID string    `json:"feedback_id"`
	Teacher    string    `json:"teacher"`
	OpenedAt   time.Time `json:"opened_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CommentRecord is one posted comment in an export.
type CommentRecord struct {
	Teacher   string    `json:"teacher"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// DraftRecord is one assistant drafting conversation kept by the portal.
type DraftRecord struct {
	Teacher      string            `json:"teacher"`
	PendingDraft string            `json:"pending_draft,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	Conversation []ConversationMsg `json:"conversation"`
}

// ConversationMsg is a single message in an exported transcript.
type ConversationMsg struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}
