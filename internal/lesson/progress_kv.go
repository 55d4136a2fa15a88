package lesson

import (
	"context"
	"encoding/json"

	"github.com/roundy-world/lesson-server/internal/infrastructure/driver"
	"github.com/roundy-world/lesson-server/internal/infrastructure/uuid"
)

// progressRecord stored form of a user's progress, one key per user
type progressRecord struct {
	Completed []int           `json:"completed"`
	Unlocked  []int           `json:"unlocked"`
	Current   int             `json:"current"`
	Points    int             `json:"points"`
	History   []*HistoryEntry `json:"history"`
}

func (r *progressRecord) model(userID string) *ProgressModel {
	p := NewProgress(userID)
	if r.Current > 0 {
		p.CurrentLessonID = r.Current
	}
	p.Points = r.Points
	for _, id := range r.Completed {
		p.CompletedLessonIDs = addInt(p.CompletedLessonIDs, id)
	}
	for _, id := range r.Unlocked {
		p.UnlockedLessonIDs = addInt(p.UnlockedLessonIDs, id)
	}
	return p
}

// ProgressKV ProgressRepository on top of a KeyValueDB, used with redis and the
// in-process memory store. Completion is a single atomic Update of the user's key
type ProgressKV struct {
	KV            driver.KeyValueDB
	Prefix        string
	UUIDGenerator uuid.Generator
}

var _ ProgressRepository = &ProgressKV{}

func NewProgressKV(KV driver.KeyValueDB, Prefix string, UUIDGenerator uuid.Generator) *ProgressKV {
	return &ProgressKV{KV, Prefix, UUIDGenerator}
}

func (repo *ProgressKV) key(userID string) string {
	return repo.Prefix + userID
}

func (repo *ProgressKV) load(ctx context.Context, userID string) (*progressRecord, error) {
	raw, ok, err := repo.KV.Get(ctx, repo.key(userID))
	if err != nil {
		return nil, err
	}
	return decodeRecord(raw, ok)
}

func decodeRecord(raw string, exists bool) (*progressRecord, error) {
	record := &progressRecord{Current: FirstLessonID, Unlocked: []int{FirstLessonID}}
	if !exists {
		return record, nil
	}
	if err := json.Unmarshal([]byte(raw), record); err != nil {
		return nil, err
	}
	return record, nil
}

func (repo *ProgressKV) GetProgress(ctx context.Context, userID string) (*ProgressModel, error) {
	record, err := repo.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return record.model(userID), nil
}

func (repo *ProgressKV) CompleteLesson(ctx context.Context, c *Completion) (*ProgressModel, bool, error) {
	historyID, err := repo.UUIDGenerator.Generate()
	if err != nil {
		return nil, false, err
	}

	var (
		applied bool
		result  *progressRecord
	)
	err = repo.KV.Update(ctx, repo.key(c.UserID), func(current string, exists bool) (string, error) {
		applied = false
		record, err := decodeRecord(current, exists)
		if err != nil {
			return "", err
		}
		result = record
		if containsInt(record.Completed, c.LessonID) {
			return "", driver.ErrSkipUpdate
		}

		record.Completed = addInt(record.Completed, c.LessonID)
		if c.NextLessonID > 0 {
			record.Unlocked = addInt(record.Unlocked, c.NextLessonID)
			if c.NextLessonID > record.Current {
				record.Current = c.NextLessonID
			}
		} else if c.LessonID > record.Current {
			record.Current = c.LessonID
		}
		record.Points += c.Reward
		record.History = append(record.History, &HistoryEntry{
			ID:        historyID,
			LessonID:  c.LessonID,
			Passed:    true,
			Timestamp: toMillis(c.At),
		})

		next, err := json.Marshal(record)
		if err != nil {
			return "", err
		}
		applied = true
		return string(next), nil
	})
	if err != nil {
		return nil, false, err
	}
	return result.model(c.UserID), applied, nil
}

func (repo *ProgressKV) GetHistory(ctx context.Context, userID string, limit int) ([]*HistoryEntry, error) {
	record, err := repo.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]*HistoryEntry, 0, len(record.History))
	for i := len(record.History) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, record.History[i])
	}
	return result, nil
}
