package backend

import (
	"context"
	"fmt"

	"github.com/pavelanni/feedbackportal/internal/model"
)

// StudentByEmail resolves an identity-provider email to a student record.
func (c *Client) StudentByEmail(ctx context.Context, email string) (model.Student, error) {
	var resp struct {
		Student []model.Student `json:"student"`
	}
	if err := c.get(ctx, "/student/"+seg(email), &resp); err != nil {
		return model.Student{}, err
	}
	if len(resp.Student) == 0 {
		return model.Student{}, fmt.Errorf("%w: %s", ErrStudentNotFound, email)
	}
	return resp.Student[0], nil
}

// Semester returns the semester with the given number and its teachers.
// A semester the backend does not know is returned with no teachers.
func (c *Client) Semester(ctx context.Context, number string) (model.Semester, error) {
	var resp struct {
		Semesters []model.Semester `json:"semesters"`
	}
	if err := c.get(ctx, "/semester/"+seg(number), &resp); err != nil {
		return model.Semester{}, err
	}
	if len(resp.Semesters) == 0 {
		return model.Semester{Number: number}, nil
	}
	sem := resp.Semesters[0]
	sem.Number = number
	return sem, nil
}

// SemesterFeedback returns the feedback sessions opened in a semester keyed by teacher ID.
func (c *Client) SemesterFeedback(ctx context.Context, semesterID string) (map[string]string, error) {
	var resp struct {
		Feedback []model.FeedbackRef `json:"feedback"`
	}
	if err := c.get(ctx, "/feedback/"+seg(semesterID), &resp); err != nil {
		return nil, err
	}
	byTeacher := make(map[string]string, len(resp.Feedback))
	for _, f := range resp.Feedback {
		byTeacher[f.TeacherID] = f.ID
	}
	return byTeacher, nil
}

// HasResponded reports whether the student already answered a feedback session.
func (c *Client) HasResponded(ctx context.Context, studentID, feedbackID string) (bool, error) {
	var resp struct {
		Response []struct {
			ID string `json:"_id"`
		} `json:"response"`
	}
	if err := c.get(ctx, "/response/"+seg(studentID+"-"+feedbackID), &resp); err != nil {
		return false, err
	}
	return len(resp.Response) > 0, nil
}

// FeedbackSession returns a feedback session with its ordered questions.
func (c *Client) FeedbackSession(ctx context.Context, feedbackID string) (model.FeedbackSession, error) {
	var resp struct {
		Feedback []model.FeedbackSession `json:"feedback"`
	}
	if err := c.get(ctx, "/newfeedback/"+seg(feedbackID), &resp); err != nil {
		return model.FeedbackSession{}, err
	}
	if len(resp.Feedback) == 0 {
		return model.FeedbackSession{}, &APIError{Method: "GET", Path: "/newfeedback/" + feedbackID, Status: 404, Message: "feedback not found"}
	}
	return resp.Feedback[0], nil
}

// SubmitResponses posts a completed questionnaire.
func (c *Client) SubmitResponses(ctx context.Context, s model.FeedbackSubmission) error {
	body := struct {
		ResponseData model.FeedbackSubmission `json:"responseData"`
	}{s}
	return c.post(ctx, "/add-response", body, nil)
}

// Teacher returns a teacher profile.
func (c *Client) Teacher(ctx context.Context, teacherID string) (model.Teacher, error) {
	var resp struct {
		Teachers []model.Teacher `json:"teachers"`
	}
	if err := c.get(ctx, "/teachers/"+seg(teacherID), &resp); err != nil {
		return model.Teacher{}, err
	}
	if len(resp.Teachers) == 0 {
		return model.Teacher{}, &APIError{Method: "GET", Path: "/teachers/" + teacherID, Status: 404, Message: "teacher not found"}
	}
	t := resp.Teachers[0]
	if t.ID == "" {
		t.ID = teacherID
	}
	return t, nil
}

// TeacherComments returns the comments posted for a teacher.
func (c *Client) TeacherComments(ctx context.Context, teacherID string) ([]model.TeacherComment, error) {
	var resp struct {
		Comments []model.TeacherComment `json:"comments"`
	}
	if err := c.get(ctx, "/comment/"+seg(teacherID), &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

// PostComment posts a free-text comment for a teacher.
func (c *Client) PostComment(ctx context.Context, nc model.NewComment) error {
	return c.post(ctx, "/newComment", nc, nil)
}

// StudentComments returns the comments a student has posted.
func (c *Client) StudentComments(ctx context.Context, studentID string) ([]model.StudentComment, error) {
	var resp struct {
		Comments []model.StudentComment `json:"comments"`
	}
	if err := c.get(ctx, "/getcomment/"+seg(studentID), &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

// StudentFeedback returns the questionnaires a student has completed.
func (c *Client) StudentFeedback(ctx context.Context, studentID string) ([]model.PastFeedback, error) {
	var resp struct {
		StudentFeedbacks []model.PastFeedback `json:"student_feedbacks"`
	}
	if err := c.get(ctx, "/feedbackResponse/"+seg(studentID), &resp); err != nil {
		return nil, err
	}
	return resp.StudentFeedbacks, nil
}
