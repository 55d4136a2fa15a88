package lesson

import (
	"context"
	"sort"
	"time"
)

// ProgressModel learning state of one user
type ProgressModel struct {
	UserID             string `json:"userId"`
	CompletedLessonIDs []int  `json:"completedLessonIds"`
	UnlockedLessonIDs  []int  `json:"unlockedLessonIds"`
	CurrentLessonID    int    `json:"currentLessonId"`
	Points             int    `json:"points"`
}

// NewProgress progress of a user who has not completed anything yet
func NewProgress(userID string) *ProgressModel {
	return &ProgressModel{
		UserID:             userID,
		CompletedLessonIDs: []int{},
		UnlockedLessonIDs:  []int{FirstLessonID},
		CurrentLessonID:    FirstLessonID,
	}
}

func (p *ProgressModel) HasCompleted(lessonID int) bool {
	return containsInt(p.CompletedLessonIDs, lessonID)
}

func (p *ProgressModel) HasUnlocked(lessonID int) bool {
	return lessonID == FirstLessonID || containsInt(p.UnlockedLessonIDs, lessonID)
}

// HistoryEntry one recorded validation
type HistoryEntry struct {
	ID        string `json:"id"`
	LessonID  int    `json:"lessonId"`
	Passed    bool   `json:"passed"`
	Timestamp int64  `json:"timestamp"` // milliseconds
}

// Completion first time completion of a lesson
type Completion struct {
	UserID       string
	LessonID     int
	NextLessonID int // 0 when the lesson is the last one of the chain
	Reward       int
	At           time.Time
}

// ProgressRepository persists per user progress. Implementations must apply
// CompleteLesson atomically per user: a lesson is completed at most once, no
// matter how many concurrent calls race for it.
type ProgressRepository interface {
	// GetProgress returns default progress for unknown users
	GetProgress(ctx context.Context, userID string) (*ProgressModel, error)
	// CompleteLesson marks the lesson completed, unlocks the next one, grants the
	// reward and appends a history entry. applied is false when the lesson was
	// already completed, in which case nothing changes.
	CompleteLesson(ctx context.Context, c *Completion) (progress *ProgressModel, applied bool, err error)
	// GetHistory most recent entries first, limit <= 0 means all
	GetHistory(ctx context.Context, userID string, limit int) ([]*HistoryEntry, error)
}

func containsInt(s []int, v int) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// addInt inserts v into the sorted set s
func addInt(s []int, v int) []int {
	if containsInt(s, v) {
		return s
	}
	s = append(s, v)
	sort.Ints(s)
	return s
}

func toMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
