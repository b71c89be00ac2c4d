package handler

import (
	"net/http"

	"github.com/pavelanni/feedbackportal/internal/handler/views"
	"github.com/pavelanni/feedbackportal/internal/model"
)

func (h *Handler) handleFeedbackHistory(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	items, err := h.backend.StudentFeedback(r.Context(), id.StudentID)
	if err != nil {
		h.renderError(w, r, backendStatus(err), "ErrorGeneric", err)
		return
	}
	h.render(w, r, http.StatusOK, views.FeedbackHistoryPage(items))
}

func (h *Handler) handleCommentHistory(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	items, err := h.backend.StudentComments(r.Context(), id.StudentID)
	if err != nil {
		h.renderError(w, r, backendStatus(err), "ErrorGeneric", err)
		return
	}
	h.render(w, r, http.StatusOK, views.CommentHistoryPage(items))
}
