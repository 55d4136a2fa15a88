package lesson

import (
	"context"

	"go.elastic.co/apm"
)

// LessonUseCaseImpl ...
type LessonUseCaseImpl struct {
	Catalog            *Catalog
	ProgressRepository ProgressRepository
	HistoryLimit       int
}

var _ LessonUseCase = &LessonUseCaseImpl{}

// NewLessonUseCase ...
func NewLessonUseCase(
	Catalog *Catalog,
	ProgressRepository ProgressRepository,
	HistoryLimit int,
) *LessonUseCaseImpl {
	return &LessonUseCaseImpl{Catalog, ProgressRepository, HistoryLimit}
}

// ListLessons every lesson with the user's lock state, templates are left out
func (lu *LessonUseCaseImpl) ListLessons(ctx context.Context, userID string) ([]*LessonView, error) {
	apmSpan, _ := apm.StartSpan(ctx, "LessonUseCaseImpl.ListLessons", "service")
	defer apmSpan.End()

	progress, err := lu.ProgressRepository.GetProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]*LessonView, 0, lu.Catalog.Len())
	for _, l := range lu.Catalog.All() {
		view := newLessonView(l, progress)
		view.Template = ""
		view.ReferenceSolution = ""
		result = append(result, view)
	}
	return result, nil
}

// GetLesson lesson detail, the reference solution is revealed once the lesson is completed
func (lu *LessonUseCaseImpl) GetLesson(ctx context.Context, userID string, lessonID int) (*LessonView, error) {
	apmSpan, _ := apm.StartSpan(ctx, "LessonUseCaseImpl.GetLesson", "service")
	defer apmSpan.End()

	l, ok := lu.Catalog.Get(lessonID)
	if !ok {
		return nil, ErrUnknownLesson
	}
	progress, err := lu.ProgressRepository.GetProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !progress.HasUnlocked(lessonID) {
		return nil, ErrLessonLocked
	}
	return newLessonView(l, progress), nil
}

// GetProgress the user's progress
func (lu *LessonUseCaseImpl) GetProgress(ctx context.Context, userID string) (*ProgressModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "LessonUseCaseImpl.GetProgress", "service")
	defer apmSpan.End()

	return lu.ProgressRepository.GetProgress(ctx, userID)
}

// GetHistory the user's most recent validations
func (lu *LessonUseCaseImpl) GetHistory(ctx context.Context, userID string) ([]*HistoryEntry, error) {
	apmSpan, _ := apm.StartSpan(ctx, "LessonUseCaseImpl.GetHistory", "service")
	defer apmSpan.End()

	return lu.ProgressRepository.GetHistory(ctx, userID, lu.HistoryLimit)
}

func newLessonView(l *Lesson, progress *ProgressModel) *LessonView {
	view := &LessonView{
		ID:             l.ID,
		Title:          l.Title,
		Description:    l.Description,
		Difficulty:     l.Difficulty,
		EntryPointName: l.EntryPointName,
		Template:       l.Template,
		Reward:         l.Reward,
		TestCount:      len(l.TestCases),
		Unlocked:       progress.HasUnlocked(l.ID),
		Completed:      progress.HasCompleted(l.ID),
	}
	if view.Completed {
		view.ReferenceSolution = l.ReferenceSolution
	}
	return view
}
