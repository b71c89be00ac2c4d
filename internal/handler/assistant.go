package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/pavelanni/feedbackportal/internal/assistant"
	"github.com/pavelanni/feedbackportal/internal/handler/views"
	appI18n "github.com/pavelanni/feedbackportal/internal/i18n"
	"github.com/pavelanni/feedbackportal/internal/model"
	"github.com/pavelanni/feedbackportal/internal/store"
)

// handleOpenAssistant starts a drafting conversation about a teacher.
func (h *Handler) handleOpenAssistant(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	teacherID := chi.URLParam(r, "teacherID")

	t, err := h.backend.Teacher(r.Context(), teacherID)
	if err != nil {
		h.renderError(w, r, backendStatus(err), "NotFound", err)
		return
	}

	sess := assistant.NewSession(uuid.NewString(), *id, t, h.subjectFor(r.Context(), id, teacherID))
	if err := h.store.CreateDrafting(sess); err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "ErrorGeneric", err)
		return
	}
	slog.Info("drafting session opened", "view_id", sess.ID, "teacher_id", teacherID)
	http.Redirect(w, r, h.path("/assistant/"+sess.ID), http.StatusSeeOther)
}

// subjectFor looks up what the teacher teaches in the student's selected
// semester. It returns "" when unknown.
func (h *Handler) subjectFor(ctx context.Context, id *model.Identity, teacherID string) string {
	if id.Semester == "" {
		return ""
	}
	sem, err := h.backend.Semester(ctx, id.Semester)
	if err != nil {
		slog.Warn("failed to look up subject", "semester", id.Semester, "error", err)
		return ""
	}
	st, _ := lo.Find(sem.Teachers, func(st model.SemesterTeacher) bool { return st.Teacher.ID == teacherID })
	return st.Subject
}

func (h *Handler) handleAssistantPage(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	sess, err := h.store.GetDrafting(chi.URLParam(r, "viewID"), id.StudentID)
	if errors.Is(err, store.ErrNotFound) {
		h.renderError(w, r, http.StatusNotFound, "NotFound", nil)
		return
	}
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "ErrorGeneric", err)
		return
	}
	h.render(w, r, http.StatusOK, views.AssistantPage(views.AssistantData{Session: sess}))
}

func (h *Handler) handleAssistantMessage(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	viewID := chi.URLParam(r, "viewID")

	sess, err := h.store.AcquireDrafting(viewID, id.StudentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.renderError(w, r, http.StatusNotFound, "NotFound", nil)
		return
	case errors.Is(err, store.ErrSessionBusy):
		h.showTranscript(w, r, viewID, appI18n.T(r.Context(), "AssistantBusy"))
		return
	case err != nil:
		h.renderError(w, r, http.StatusInternalServerError, "ErrorGeneric", err)
		return
	}

	released := false
	defer func() {
		if released {
			return
		}
		if err := h.store.UnlockDrafting(sess.ID); err != nil {
			slog.Error("failed to unlock drafting session", "view_id", sess.ID, "error", err)
		}
	}()

	sendErr := h.assistant.Send(r.Context(), sess, r.FormValue("message"))
	if err := h.store.ReleaseDrafting(sess); err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "ErrorGeneric", err)
		return
	}
	released = true
	if sendErr != nil && !errors.Is(sendErr, assistant.ErrEmptyMessage) {
		slog.Error("assistant message failed", "view_id", viewID, "error", sendErr)
	}

	if !isFragmentRequest(r) {
		http.Redirect(w, r, h.path("/assistant/"+viewID), http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, views.Transcript(views.AssistantData{Session: sess}))
}

// showTranscript renders the stored conversation with a notice.
func (h *Handler) showTranscript(w http.ResponseWriter, r *http.Request, viewID, notice string) {
	id := model.IdentityFromContext(r.Context())
	sess, err := h.store.GetDrafting(viewID, id.StudentID)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "ErrorGeneric", err)
		return
	}
	data := views.AssistantData{Session: sess, Notice: notice}
	if isFragmentRequest(r) {
		h.render(w, r, http.StatusConflict, views.Transcript(data))
		return
	}
	h.render(w, r, http.StatusConflict, views.AssistantPage(data))
}
