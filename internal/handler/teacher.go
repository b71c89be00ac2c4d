package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/feedbackportal/internal/handler/views"
	appI18n "github.com/pavelanni/feedbackportal/internal/i18n"
	"github.com/pavelanni/feedbackportal/internal/model"
)

type commentForm struct {
	Comment string `validate:"required,min=1,max=1000"`
}

func (h *Handler) handleTeacherPage(w http.ResponseWriter, r *http.Request) {
	data, ok := h.teacherData(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("posted") == "1" {
		data.Notice = appI18n.T(r.Context(), "CommentPosted")
	}
	h.render(w, r, http.StatusOK, views.TeacherPage(data))
}

// teacherData loads a teacher profile and its comments. It writes the error
// response and reports false on failure.
func (h *Handler) teacherData(w http.ResponseWriter, r *http.Request) (views.TeacherData, bool) {
	teacherID := chi.URLParam(r, "teacherID")
	t, err := h.backend.Teacher(r.Context(), teacherID)
	if err != nil {
		h.renderError(w, r, backendStatus(err), "NotFound", err)
		return views.TeacherData{}, false
	}
	data := views.TeacherData{Teacher: t, AssistantOn: h.config.AssistantOn}
	comments, err := h.backend.TeacherComments(r.Context(), teacherID)
	if err != nil {
		slog.Error("failed to load comments", "teacher_id", teacherID, "error", err)
		data.Error = appI18n.T(r.Context(), "ErrorGeneric")
	}
	data.Comments = comments
	return data, true
}

func (h *Handler) handlePostComment(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	teacherID := chi.URLParam(r, "teacherID")
	form := commentForm{Comment: strings.TrimSpace(r.FormValue("comment"))}

	if err := h.validate.Struct(form); err != nil {
		h.renderTeacherWithError(w, r, http.StatusUnprocessableEntity, form.Comment, "CommentInvalid")
		return
	}

	err := h.backend.PostComment(r.Context(), model.NewComment{
		TeacherID: teacherID,
		StudentID: id.StudentID,
		Comment:   form.Comment,
	})
	if err != nil {
		slog.Error("failed to post comment", "teacher_id", teacherID, "error", err)
		h.renderTeacherWithError(w, r, http.StatusBadGateway, form.Comment, "CommentFailed")
		return
	}
	slog.Info("comment posted", "teacher_id", teacherID, "student_id", id.StudentID)
	http.Redirect(w, r, h.path("/teachers/"+teacherID+"?posted=1"), http.StatusSeeOther)
}

// renderTeacherWithError shows the profile again with the student's text kept.
func (h *Handler) renderTeacherWithError(w http.ResponseWriter, r *http.Request, status int, text, msgID string) {
	data, ok := h.teacherData(w, r)
	if !ok {
		return
	}
	data.CommentText = text
	data.Error = appI18n.T(r.Context(), msgID)
	h.render(w, r, status, views.TeacherPage(data))
}
