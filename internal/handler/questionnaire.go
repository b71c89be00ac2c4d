package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/feedbackportal/internal/handler/views"
	appI18n "github.com/pavelanni/feedbackportal/internal/i18n"
	"github.com/pavelanni/feedbackportal/internal/model"
	"github.com/pavelanni/feedbackportal/internal/questionnaire"
	"github.com/pavelanni/feedbackportal/internal/store"
)

// handleOpenQuestionnaire starts a questionnaire view for a feedback session.
func (h *Handler) handleOpenQuestionnaire(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	feedbackID := chi.URLParam(r, "feedbackID")

	done, err := h.backend.HasResponded(r.Context(), id.StudentID, feedbackID)
	if err != nil {
		h.renderError(w, r, backendStatus(err), "ErrorGeneric", err)
		return
	}
	if done {
		h.render(w, r, http.StatusConflict, views.ErrorPage(appI18n.T(r.Context(), "AlreadySubmitted")))
		return
	}

	fs, err := h.backend.FeedbackSession(r.Context(), feedbackID)
	if err != nil {
		h.renderError(w, r, backendStatus(err), "NotFound", err)
		return
	}

	sess, err := questionnaire.New(questionnaire.Target{
		StudentID:  id.StudentID,
		FeedbackID: fs.ID,
		TeacherID:  fs.Teacher.ID,
	}, fs.Questions, h.config.StrictGating)
	if err != nil {
		h.renderError(w, r, http.StatusNotFound, "NotFound", err)
		return
	}
	sess.TeacherName = fs.Teacher.Name
	if sess.TeacherName == "" && fs.Teacher.ID != "" {
		if t, err := h.backend.Teacher(r.Context(), fs.Teacher.ID); err == nil {
			sess.TeacherName = t.Name
		}
	}

	if err := h.store.CreateQuestionnaire(sess); err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "ErrorGeneric", err)
		return
	}
	slog.Info("questionnaire opened", "view_id", sess.ID, "feedback_id", fs.ID, "questions", len(fs.Questions))
	http.Redirect(w, r, h.path("/questionnaire/"+sess.ID), http.StatusSeeOther)
}

// loadQuestionnaire fetches the questionnaire named in the URL for the
// signed-in student. It writes the error response and returns nil on failure.
func (h *Handler) loadQuestionnaire(w http.ResponseWriter, r *http.Request) *questionnaire.Session {
	id := model.IdentityFromContext(r.Context())
	sess, err := h.store.GetQuestionnaire(chi.URLParam(r, "viewID"), id.StudentID)
	if errors.Is(err, store.ErrNotFound) {
		h.renderError(w, r, http.StatusNotFound, "NotFound", nil)
		return nil
	}
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "ErrorGeneric", err)
		return nil
	}
	return sess
}

func (h *Handler) handleQuestionnairePage(w http.ResponseWriter, r *http.Request) {
	sess := h.loadQuestionnaire(w, r)
	if sess == nil {
		return
	}
	h.render(w, r, http.StatusOK, views.QuestionnairePage(views.QuestionnaireData{Session: sess}))
}

func (h *Handler) handleSelectOption(w http.ResponseWriter, r *http.Request) {
	sess := h.loadQuestionnaire(w, r)
	if sess == nil {
		return
	}
	if err := sess.SelectOption(r.FormValue("question_id"), r.FormValue("option")); err != nil {
		if errors.Is(err, questionnaire.ErrSubmitting) {
			h.showQuestionnaire(w, r, sess, appI18n.T(r.Context(), "Submitting"))
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.saveAndShow(w, r, sess, "")
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	sess := h.loadQuestionnaire(w, r)
	if sess == nil {
		return
	}
	notice := ""
	if !sess.Advance() && !sess.Answered() {
		notice = appI18n.T(r.Context(), "AnswerFirst")
	}
	h.saveAndShow(w, r, sess, notice)
}

func (h *Handler) handlePrev(w http.ResponseWriter, r *http.Request) {
	sess := h.loadQuestionnaire(w, r)
	if sess == nil {
		return
	}
	sess.Retreat()
	h.saveAndShow(w, r, sess, "")
}

// saveAndShow stores the position and answers, then shows the current step.
// A concurrent submission wins over navigation.
func (h *Handler) saveAndShow(w http.ResponseWriter, r *http.Request, sess *questionnaire.Session, notice string) {
	if sess.Phase == questionnaire.PhaseSubmitting {
		h.showQuestionnaire(w, r, sess, appI18n.T(r.Context(), "Submitting"))
		return
	}
	err := h.store.SaveProgress(sess)
	if errors.Is(err, store.ErrSessionBusy) {
		if fresh := h.loadQuestionnaire(w, r); fresh != nil {
			h.showQuestionnaire(w, r, fresh, appI18n.T(r.Context(), "Submitting"))
		}
		return
	}
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "ErrorGeneric", err)
		return
	}
	h.showQuestionnaire(w, r, sess, notice)
}

// showQuestionnaire renders the step for htmx, or redirects a plain form post
// back to the questionnaire page.
func (h *Handler) showQuestionnaire(w http.ResponseWriter, r *http.Request, sess *questionnaire.Session, notice string) {
	if !isFragmentRequest(r) && notice == "" {
		http.Redirect(w, r, h.path("/questionnaire/"+sess.ID), http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, views.QuestionnairePage(views.QuestionnaireData{Session: sess, Notice: notice}))
}

func (h *Handler) handleSubmitQuestionnaire(w http.ResponseWriter, r *http.Request) {
	sess := h.loadQuestionnaire(w, r)
	if sess == nil {
		return
	}

	payload, err := sess.Begin()
	switch {
	case errors.Is(err, questionnaire.ErrSubmitting):
		h.showQuestionnaire(w, r, sess, appI18n.T(r.Context(), "Submitting"))
		return
	case errors.Is(err, questionnaire.ErrNotAnswered):
		h.showQuestionnaire(w, r, sess, appI18n.T(r.Context(), "AnswerFirst"))
		return
	case errors.Is(err, questionnaire.ErrIncomplete):
		h.showQuestionnaire(w, r, sess, appI18n.T(r.Context(), "AnswerAll"))
		return
	case err != nil:
		h.renderError(w, r, http.StatusInternalServerError, "ErrorGeneric", err)
		return
	}

	if err := h.store.ClaimSubmission(sess.ID); err != nil {
		if errors.Is(err, store.ErrSessionBusy) {
			h.showQuestionnaire(w, r, sess, appI18n.T(r.Context(), "Submitting"))
			return
		}
		h.renderError(w, r, http.StatusInternalServerError, "ErrorGeneric", err)
		return
	}

	recorded := false
	defer func() {
		if recorded {
			return
		}
		if err := h.store.AbandonSubmission(sess.ID, questionnaire.GenericSubmitError); err != nil {
			slog.Error("failed to release submission", "view_id", sess.ID, "error", err)
		}
	}()

	submitErr := h.backend.SubmitResponses(r.Context(), payload)
	sess.Finish(submitErr)
	if err := h.store.FinishSubmission(sess); err != nil {
		slog.Error("failed to record submission outcome", "view_id", sess.ID, "error", err)
	} else {
		recorded = true
	}

	if submitErr != nil {
		slog.Error("feedback submission failed", "view_id", sess.ID, "feedback_id", sess.Target.FeedbackID, "error", submitErr)
		h.render(w, r, http.StatusOK, views.QuestionnairePage(views.QuestionnaireData{Session: sess}))
		return
	}

	slog.Info("feedback submitted", "view_id", sess.ID, "feedback_id", sess.Target.FeedbackID, "responses", len(payload.Responses))
	if err := h.store.DeleteQuestionnaire(sess.ID); err != nil {
		slog.Error("failed to discard submitted questionnaire", "view_id", sess.ID, "error", err)
	}
	h.render(w, r, http.StatusOK, views.SubmittedPage(views.SubmittedData{
		TeacherName: sess.TeacherName,
		Message:     appI18n.T(r.Context(), "SubmitSuccess"),
		Delay:       questionnaire.RedirectDelay,
	}))
}
