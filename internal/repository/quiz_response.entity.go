package repository

import (
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"gorm.io/datatypes"
)

type QuizResponseEntity struct {
	ID                   string            `db:"id"                    gorm:"primaryKey;column:id"`
	QuizID               string            `db:"quiz_id"               gorm:"column:quiz_id;not null;index"`
	UserID               int64             `db:"user_id"               gorm:"column:user_id;not null;index"`
	Responses            datatypes.JSONMap `db:"responses"             gorm:"column:responses"`
	IsComplete           bool              `db:"is_complete"           gorm:"column:is_complete;not null"`
	CompletionPercentage int               `db:"completion_percentage" gorm:"column:completion_percentage;not null"`
	SubmittedAt          time.Time         `db:"submitted_at"          gorm:"column:submitted_at;not null"`
}

func (QuizResponseEntity) TableName() string {
	return "quiz_responses"
}

func toQuizResponseEntity(m *model.QuizResponse) *QuizResponseEntity {
	return &QuizResponseEntity{
		ID:                   m.ID,
		QuizID:               m.QuizID,
		UserID:               m.UserID,
		Responses:            datatypes.JSONMap(m.Responses),
		IsComplete:           m.IsComplete,
		CompletionPercentage: m.CompletionPercentage,
		SubmittedAt:          m.SubmittedAt.UTC(),
	}
}

func toQuizResponseModel(e *QuizResponseEntity) *model.QuizResponse {
	return &model.QuizResponse{
		ID:                   e.ID,
		QuizID:               e.QuizID,
		UserID:               e.UserID,
		Responses:            map[string]any(e.Responses),
		IsComplete:           e.IsComplete,
		CompletionPercentage: e.CompletionPercentage,
		SubmittedAt:          e.SubmittedAt.UTC(),
	}
}
