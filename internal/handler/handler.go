package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"

	"github.com/pavelanni/feedbackportal/internal/assistant"
	"github.com/pavelanni/feedbackportal/internal/backend"
	"github.com/pavelanni/feedbackportal/internal/handler/views"
	appI18n "github.com/pavelanni/feedbackportal/internal/i18n"
	"github.com/pavelanni/feedbackportal/internal/model"
	"github.com/pavelanni/feedbackportal/internal/store"
)

// Backend is the part of the remote API the portal uses.
type Backend interface {
	StudentByEmail(ctx context.Context, email string) (model.Student, error)
	Semester(ctx context.Context, number string) (model.Semester, error)
	SemesterFeedback(ctx context.Context, semesterID string) (map[string]string, error)
	HasResponded(ctx context.Context, studentID, feedbackID string) (bool, error)
	FeedbackSession(ctx context.Context, feedbackID string) (model.FeedbackSession, error)
	SubmitResponses(ctx context.Context, s model.FeedbackSubmission) error
	Teacher(ctx context.Context, teacherID string) (model.Teacher, error)
	TeacherComments(ctx context.Context, teacherID string) ([]model.TeacherComment, error)
	PostComment(ctx context.Context, c model.NewComment) error
	StudentComments(ctx context.Context, studentID string) ([]model.StudentComment, error)
	StudentFeedback(ctx context.Context, studentID string) ([]model.PastFeedback, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	backend   Backend
	assistant *assistant.Assistant
	identity  IdentityVerifier
	config    model.PortalConfig
	validate  *validator.Validate
}

// New creates a new Handler. A nil assistant disables the drafting routes.
func New(s *store.Store, b Backend, a *assistant.Assistant, id IdentityVerifier, cfg model.PortalConfig) (*Handler, error) {
	if s == nil || b == nil || id == nil {
		return nil, errors.New("handler: store, backend and identity verifier are required")
	}
	if cfg.Semesters <= 0 {
		cfg.Semesters = 8
	}
	cfg.AssistantOn = cfg.AssistantOn && a != nil
	return &Handler{
		store:     s,
		backend:   b,
		assistant: a,
		identity:  id,
		config:    cfg,
		validate:  validator.New(),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	if h.identity.Mode() == IdentityGoogle {
		r.With(h.basePathMiddleware, h.googleLoginCSRF).Post("/login", h.handleLogin)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.basePathMiddleware)
		r.Use(h.csrfMiddleware)

		r.Get("/login", h.handleLoginPage)
		if h.identity.Mode() != IdentityGoogle {
			r.Post("/login", h.handleLogin)
		}
		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/", h.handleDashboard)
			r.Post("/semester", h.handleSelectSemester)

			r.Get("/feedback/{feedbackID}", h.handleOpenQuestionnaire)
			r.Get("/questionnaire/{viewID}", h.handleQuestionnairePage)
			r.Post("/questionnaire/{viewID}/select", h.handleSelectOption)
			r.Post("/questionnaire/{viewID}/next", h.handleNext)
			r.Post("/questionnaire/{viewID}/prev", h.handlePrev)
			r.Post("/questionnaire/{viewID}/submit", h.handleSubmitQuestionnaire)

			r.Get("/teachers/{teacherID}", h.handleTeacherPage)
			r.Post("/teachers/{teacherID}/comments", h.handlePostComment)

			if h.config.AssistantOn {
				r.Post("/teachers/{teacherID}/assistant", h.handleOpenAssistant)
				r.Get("/assistant/{viewID}", h.handleAssistantPage)
				r.Post("/assistant/{viewID}/messages", h.handleAssistantMessage)
			}

			r.Get("/history/feedback", h.handleFeedbackHistory)
			r.Get("/history/comments", h.handleCommentHistory)
		})
	})
}

// path prefixes p with the configured base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) basePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// render writes content as a full page, or alone when htmx asked for a fragment.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, content templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	c := content
	if !isFragmentRequest(r) {
		c = views.Layout(content)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func isFragmentRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true" && r.Header.Get("HX-Boosted") != "true"
}

// renderError logs err and shows msgID to the student.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, msgID string, err error) {
	if err != nil {
		slog.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	h.render(w, r, status, views.ErrorPage(appI18n.T(r.Context(), msgID)))
}

// backendStatus maps a backend error to the status shown to the student.
func backendStatus(err error) int {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) semesterOptions() []string {
	return lo.Times(h.config.Semesters, func(i int) string { return strconv.Itoa(i + 1) })
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	data := views.DashboardData{
		Semesters: h.semesterOptions(),
		Selected:  id.Semester,
		Query:     strings.TrimSpace(r.URL.Query().Get("q")),
	}

	if data.Selected != "" {
		cards, err := h.teacherCards(r.Context(), id)
		if err != nil {
			slog.Error("failed to load teachers", "semester", id.Semester, "error", err)
			data.Error = appI18n.T(r.Context(), "ErrorGeneric")
		}
		data.Cards = filterCards(cards, data.Query)
	}

	if isFragmentRequest(r) && r.URL.Query().Has("q") {
		h.render(w, r, http.StatusOK, views.TeacherCards(data))
		return
	}
	h.render(w, r, http.StatusOK, views.DashboardPage(data))
}

// teacherCards combines the semester's teachers with the student's feedback state.
func (h *Handler) teacherCards(ctx context.Context, id *model.Identity) ([]model.TeacherCard, error) {
	sem, err := h.backend.Semester(ctx, id.Semester)
	if err != nil {
		return nil, err
	}
	if sem.ID == "" || len(sem.Teachers) == 0 {
		return nil, nil
	}
	feedback, err := h.backend.SemesterFeedback(ctx, sem.ID)
	if err != nil {
		return nil, err
	}

	cards := make([]model.TeacherCard, 0, len(sem.Teachers))
	for _, st := range sem.Teachers {
		card := model.TeacherCard{Teacher: st.Teacher, Subject: st.Subject, State: model.FeedbackNone}
		if fid, ok := feedback[st.Teacher.ID]; ok {
			card.FeedbackID = fid
			card.State = model.FeedbackOpen
			done, err := h.backend.HasResponded(ctx, id.StudentID, fid)
			if err != nil {
				return nil, err
			}
			if done {
				card.State = model.FeedbackDone
			}
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// filterCards keeps the cards whose teacher or subject fuzzily matches q,
// best matches first.
func filterCards(cards []model.TeacherCard, q string) []model.TeacherCard {
	if q == "" {
		return cards
	}
	type ranked struct {
		card model.TeacherCard
		rank int
	}
	var matches []ranked
	for _, c := range cards {
		rank := fuzzy.RankMatchNormalizedFold(q, c.Teacher.Name)
		if r := fuzzy.RankMatchNormalizedFold(q, c.Subject); r >= 0 && (rank < 0 || r < rank) {
			rank = r
		}
		if rank >= 0 {
			matches = append(matches, ranked{c, rank})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].rank < matches[j].rank })
	return lo.Map(matches, func(m ranked, _ int) model.TeacherCard { return m.card })
}

type semesterForm struct {
	Semester int `validate:"required,min=1"`
}

func (h *Handler) handleSelectSemester(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	n, err := strconv.Atoi(r.FormValue("semester"))
	form := semesterForm{Semester: n}
	if err != nil || h.validate.Struct(form) != nil || n > h.config.Semesters {
		http.Error(w, "invalid semester", http.StatusBadRequest)
		return
	}
	if err := h.store.SetAuthSemester(id.SessionID, strconv.Itoa(n)); err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "ErrorGeneric", err)
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}
