package repository

import (
	"context"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
)

// QuizResponseRepository reads responses written by the quiz subsystem.
type QuizResponseRepository struct {
	*pg.DB
}

func NewQuizResponseRepository(db *pg.DB) *QuizResponseRepository {
	return &QuizResponseRepository{
		db,
	}
}

// ListByQuiz returns the responses of a quiz owned by ownerID, oldest first.
func (r *QuizResponseRepository) ListByQuiz(ctx context.Context, quizID string, ownerID int64) ([]*model.QuizResponse, error) {
	var entities []*QuizResponseEntity
	err := r.Read(ctx).
		Where("quiz_id = ? AND user_id = ?", quizID, ownerID).
		Order("submitted_at ASC, id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.QuizResponse, len(entities))
	for i, e := range entities {
		out[i] = toQuizResponseModel(e)
	}
	return out, nil
}

// Create is used by fixtures and tests; production rows come from the quiz service.
func (r *QuizResponseRepository) Create(ctx context.Context, m *model.QuizResponse) error {
	return r.Write(ctx).Create(toQuizResponseEntity(m)).Error
}
