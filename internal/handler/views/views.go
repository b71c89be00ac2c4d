// Package views renders the portal pages. Pages are html/template files
// exposed as templ components so handlers can compose them with the layout
// or send them alone as htmx fragments.
package views

import (
	"context"
	"embed"
	"html/template"
	"io"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/feedbackportal/internal/i18n"
	"github.com/pavelanni/feedbackportal/internal/model"
	"github.com/pavelanni/feedbackportal/internal/questionnaire"
)

//go:embed templates/*.html
var templateFS embed.FS

var base = template.Must(template.New("views").Funcs(funcs(context.Background())).ParseFS(templateFS, "templates/*.html"))

func funcs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"T": func(id string) string { return appI18n.T(ctx, id) },
		"Td": func(id string, kv ...any) string {
			data := make(map[string]any, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				if k, ok := kv[i].(string); ok {
					data[k] = kv[i+1]
				}
			}
			return appI18n.Td(ctx, id, data)
		},
		"Tp":       func(id string, n int) string { return appI18n.Tp(ctx, id, n) },
		"path":     func(p string) string { return model.BasePathFromContext(ctx) + p },
		"csrf":     func() string { return model.CSRFTokenFromContext(ctx) },
		"identity": func() *model.Identity { return model.IdentityFromContext(ctx) },
		"date":     func(t time.Time) string { return formatDate(t) },
		"inc":      func(i int) int { return i + 1 },
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// page renders the named template with functions bound to the request context.
func page(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t, err := base.Clone()
		if err != nil {
			return err
		}
		t.Funcs(funcs(ctx))
		return templ.FromGoHTML(t.Lookup(name), data).Render(ctx, w)
	})
}

// Layout wraps content in the full HTML document with navigation.
func Layout(content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := page("layout_open", nil).Render(ctx, w); err != nil {
			return err
		}
		if err := content.Render(ctx, w); err != nil {
			return err
		}
		return page("layout_close", nil).Render(ctx, w)
	})
}

// LoginData configures the sign-in page for the active identity mode.
type LoginData struct {
	Mode           string
	GoogleClientID string
	Error          string
}

func LoginPage(d LoginData) templ.Component { return page("login", d) }

func AccessDeniedPage(email string) templ.Component {
	return page("access_denied", struct{ Email string }{email})
}

// DashboardData is the semester picker and the teacher cards.
type DashboardData struct {
	Semesters []string
	Selected  string
	Query     string
	Cards     []model.TeacherCard
	Error     string
}

func DashboardPage(d DashboardData) templ.Component { return page("dashboard", d) }

// TeacherCards is the card grid fragment swapped by the search box.
func TeacherCards(d DashboardData) templ.Component { return page("teacher_cards", d) }

// QuestionnaireData is one questionnaire step.
type QuestionnaireData struct {
	Session *questionnaire.Session
	Notice  string
}

// Question returns the question at the current position.
func (d QuestionnaireData) Question() model.FeedbackQuestion { return d.Session.Current() }

// Selected returns the recorded answer for the current question.
func (d QuestionnaireData) Selected() string { return d.Session.Answers[d.Session.Current().ID] }

func QuestionnairePage(d QuestionnaireData) templ.Component { return page("questionnaire", d) }

// SubmittedData is the success page shown before returning to the dashboard.
type SubmittedData struct {
	TeacherName string
	Message     string
	Delay       time.Duration
}

// Seconds is the redirect delay for the meta refresh.
func (d SubmittedData) Seconds() int { return int(d.Delay / time.Second) }

func SubmittedPage(d SubmittedData) templ.Component { return page("submitted", d) }

// TeacherData is a teacher profile with its comments.
type TeacherData struct {
	Teacher     model.Teacher
	Comments    []model.TeacherComment
	AssistantOn bool
	Notice      string
	Error       string
	CommentText string
}

func TeacherPage(d TeacherData) templ.Component { return page("teacher", d) }

// AssistantData is a drafting conversation.
type AssistantData struct {
	Session *model.DraftingSession
	Notice  string
}

func AssistantPage(d AssistantData) templ.Component { return page("assistant", d) }

// Transcript is the conversation fragment refreshed after each message.
func Transcript(d AssistantData) templ.Component { return page("transcript", d) }

func FeedbackHistoryPage(items []model.PastFeedback) templ.Component {
	return page("feedback_history", items)
}

func CommentHistoryPage(items []model.StudentComment) templ.Component {
	return page("comment_history", items)
}

// ErrorPage shows a message with a link back to the dashboard.
func ErrorPage(message string) templ.Component {
	return page("error", struct{ Message string }{message})
}
