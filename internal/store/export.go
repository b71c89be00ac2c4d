package store

import (
	"fmt"

	"github.com/pavelanni/feedbackportal/internal/model"
)

// ExportDrafts builds export-ready records of a student's assistant conversations.
func (s *Store) ExportDrafts(studentID string) ([]model.DraftRecord, error) {
	sessions, err := s.ListDraftings(studentID)
	if err != nil {
		return nil, fmt.Errorf("list drafting sessions: %w", err)
	}

	var records []model.DraftRecord
	for _, d := range sessions {
		var conv []model.ConversationMsg
		for _, t := range d.Turns {
			conv = append(conv, model.ConversationMsg{
				Role: string(t.Role),
				Text: t.Text,
				At:   t.CreatedAt,
			})
		}
		records = append(records, model.DraftRecord{
			Teacher:      d.TeacherName,
			PendingDraft: d.Draft,
			StartedAt:    d.CreatedAt,
			Conversation: conv,
		})
	}
	return records, nil
}
