package lesson

import (
	"context"
	"errors"
)

// FirstLessonID lesson unlocked for every new learner
const FirstLessonID = 1

// TestCase arguments the entry point is called with and the value it must return
type TestCase struct {
	Input          []interface{} `json:"input" yaml:"input"`
	ExpectedOutput interface{}   `json:"expectedOutput" yaml:"expectedOutput"`
}

// Lesson static lesson definition, shared read-only by every request
type Lesson struct {
	ID                int         `json:"id" yaml:"id" validate:"min=1"`
	Title             string      `json:"title" yaml:"title" validate:"required"`
	Description       string      `json:"description" yaml:"description"`
	Difficulty        string      `json:"difficulty" yaml:"difficulty" validate:"omitempty,oneof=facil medio dificil"`
	EntryPointName    string      `json:"entryPointName" yaml:"entryPointName" validate:"required,max=64"`
	Template          string      `json:"template" yaml:"template"`
	ReferenceSolution string      `json:"referenceSolution,omitempty" yaml:"referenceSolution"`
	TestCases         []*TestCase `json:"testCases" yaml:"testCases" validate:"required,min=1,dive,required"`
	Reward            int         `json:"reward" yaml:"reward" validate:"min=0"`
}

// ErrUnknownLesson no lesson with the requested id
var ErrUnknownLesson = errors.New("la lección no existe")

// ErrLessonLocked the learner has not unlocked the lesson yet
var ErrLessonLocked = errors.New("la lección está bloqueada")

// ErrEmptySubmission the submitted source is empty or whitespace only
var ErrEmptySubmission = errors.New("el código enviado está vacío")

// ErrSubmissionTooLarge the submitted source exceeds the configured length
var ErrSubmissionTooLarge = errors.New("el código enviado es demasiado largo")

// LessonView lesson as presented to a learner
type LessonView struct {
	ID                int    `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Difficulty        string `json:"difficulty,omitempty"`
	EntryPointName    string `json:"entryPointName"`
	Template          string `json:"template,omitempty"`
	ReferenceSolution string `json:"referenceSolution,omitempty"`
	Reward            int    `json:"reward"`
	TestCount         int    `json:"testCount"`
	Unlocked          bool   `json:"unlocked"`
	Completed         bool   `json:"completed"`
}

type LessonUseCase interface {
	ListLessons(ctx context.Context, userID string) ([]*LessonView, error)
	GetLesson(ctx context.Context, userID string, lessonID int) (*LessonView, error)
	GetProgress(ctx context.Context, userID string) (*ProgressModel, error)
	GetHistory(ctx context.Context, userID string) ([]*HistoryEntry, error)
}

type ValidationUseCase interface {
	Validate(ctx context.Context, userID string, lessonID int, source string) (*ValidationReport, error)
}
