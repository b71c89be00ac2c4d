package model

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// Identity is the signed-in student, resolved from the identity provider's email.
type Identity struct {
	SessionID   string
	Email       string
	StudentID   string
	StudentName string
	Semester    string // selected semester number, empty until chosen
}

// AuthSession represents a portal login session.
type AuthSession struct {
	ID          string
	Email       string
	StudentID   string
	StudentName string
	Semester    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type identityCtxKey struct{}

// ContextWithIdentity stores the signed-in student in the request context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the signed-in student from context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return id
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Role represents a chat message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Student is a student record owned by the backend.
type Student struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Teacher is a teacher record owned by the backend.
type Teacher struct {
	ID             string   `json:"_id"`
	Name           string   `json:"name"`
	ImageURL       string   `json:"image_url"`
	About          string   `json:"about"`
	Qualifications []string `json:"qualifications"`
}

// UnmarshalJSON accepts either a populated teacher object or a bare teacher ID,
// since the backend only populates references on some endpoints.
func (t *Teacher) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.ID)
	}
	type plain Teacher
	return json.Unmarshal(data, (*plain)(t))
}

// SemesterTeacher is one teacher assignment inside a semester.
type SemesterTeacher struct {
	ID      string  `json:"_id"`
	Teacher Teacher `json:"teacher"`
	Subject string  `json:"subject"`
}

// Semester groups the teachers a student is taught by in one term.
type Semester struct {
	ID       string            `json:"_id"`
	Number   string            `json:"-"`
	Teachers []SemesterTeacher `json:"teachers"`
}

// FeedbackRef links a teacher to the feedback session opened for them in a semester.
type FeedbackRef struct {
	ID        string `json:"_id"`
	TeacherID string `json:"teacher"`
}

// FeedbackQuestion is a fixed-choice question.
type FeedbackQuestion struct {
	ID      string   `json:"_id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// FeedbackSession is one questionnaire instance tied to a teacher and semester.
type FeedbackSession struct {
	ID         string             `json:"_id"`
	Teacher    Teacher            `json:"teacher"`
	Questions  []FeedbackQuestion `json:"questions"`
	CreatedAt  time.Time          `json:"createdAt"`
	ExpiryDate time.Time          `json:"expiryDate"`
}

// QuestionResponse is the answer given to one question.
type QuestionResponse struct {
	QuestionID     string `json:"questionId"`
	SelectedOption string `json:"selectedOption,omitempty"`
}

// FeedbackSubmission is the write-once payload sent for a completed questionnaire.
type FeedbackSubmission struct {
	StudentID  string             `json:"student_id"`
	FeedbackID string             `json:"feedback_id"`
	TeacherID  string             `json:"teacher"`
	Responses  []QuestionResponse `json:"responses"`
}

// NewComment is the payload for posting a free-text comment.
type NewComment struct {
	TeacherID string `json:"teacher_id"`
	StudentID string `json:"student_id"`
	Comment   string `json:"comment"`
}

// TeacherComment is a comment shown on a teacher's profile.
type TeacherComment struct {
	ID        string    `json:"_id"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// StudentComment is a comment the student posted, with the teacher populated.
type StudentComment struct {
	ID        string    `json:"_id"`
	Comment   string    `json:"comment"`
	Teacher   Teacher   `json:"teacher_id"`
	CreatedAt time.Time `json:"createdAt"`
}

// PastFeedback is a questionnaire the student has already completed.
type PastFeedback struct {
	ID       string          `json:"_id"`
	Teacher  Teacher         `json:"teacher"`
	Feedback FeedbackSession `json:"feedback_id"`
}

// Turn is one entry of an assistant conversation transcript.
type Turn struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// DraftingSession is a student's conversation with the comment-drafting
// assistant about one teacher.
type DraftingSession struct {
	ID          string
	StudentID   string
	StudentName string
	TeacherID   string
	TeacherName string
	Subject     string
	Draft       string // pending comment, empty when none
	Busy        bool
	Turns       []Turn
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FeedbackState describes a teacher card on the dashboard.
type FeedbackState string

const (
	FeedbackNone FeedbackState = "none" // no feedback session opened for this teacher
	FeedbackOpen FeedbackState = "open"
	FeedbackDone FeedbackState = "done"
)

// TeacherCard combines a semester teacher with the student's feedback state.
type TeacherCard struct {
	Teacher    Teacher
	Subject    string
	FeedbackID string
	State      FeedbackState
}

// PortalConfig holds runtime portal parameters set via CLI flags.
type PortalConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/feedback")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	StrictGating  bool   // Require every question answered before submit
	Semesters     int    // Number of semesters offered in the picker
	IdentityMode  string // google, jwt or header
	GoogleClient  string // OAuth client ID for Google sign-in
	AssistantOn   bool   // Offer the drafting assistant on teacher pages
}
