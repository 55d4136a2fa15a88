package lesson

import (
	"context"
	"fmt"

	"github.com/roundy-world/lesson-server/internal/infrastructure/driver"
	"github.com/roundy-world/lesson-server/internal/infrastructure/uuid"
)

// ProgressSQL ProgressRepository backed by the relational schema. Completion
// serializes on the user's lesson_progress row
type ProgressSQL struct {
	Conn          driver.ITransactionalDB
	UUIDGenerator uuid.Generator
}

var _ ProgressRepository = &ProgressSQL{}

func NewProgressSQL(Conn driver.ITransactionalDB, UUIDGenerator uuid.Generator) *ProgressSQL {
	return &ProgressSQL{Conn, UUIDGenerator}
}

func (repo *ProgressSQL) GetProgress(ctx context.Context, userID string) (*ProgressModel, error) {
	return loadProgress(ctx, repo.Conn, userID)
}

func (repo *ProgressSQL) CompleteLesson(ctx context.Context, c *Completion) (*ProgressModel, bool, error) {
	if err := repo.ensureProgress(ctx, c.UserID); err != nil {
		return nil, false, err
	}
	historyID, err := repo.UUIDGenerator.Generate()
	if err != nil {
		return nil, false, err
	}

	tx, err := repo.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	// lock the user's row, concurrent completions queue here
	var current, points int
	found, err := scanOne(ctx, tx, `SELECT current_lesson_id, points FROM lesson_progress
	WHERE user_id = $1 FOR UPDATE`, []interface{}{c.UserID}, &current, &points)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, fmt.Errorf("progress row of user %s vanished", c.UserID)
	}

	var one int
	completed, err := scanOne(ctx, tx, `SELECT 1 FROM lesson_completion
	WHERE user_id = $1 AND lesson_id = $2`, []interface{}{c.UserID, c.LessonID}, &one)
	if err != nil {
		return nil, false, err
	}
	if completed {
		if err := tx.Rollback(ctx); err != nil {
			return nil, false, err
		}
		progress, err := loadProgress(ctx, repo.Conn, c.UserID)
		return progress, false, err
	}

	now := toMillis(c.At)
	if _, err := tx.ExecContext(ctx, `INSERT INTO lesson_completion(user_id, lesson_id, completed_at)
	VALUES($1, $2, $3)`, c.UserID, c.LessonID, now); err != nil {
		return nil, false, err
	}

	nextCurrent := current
	if c.NextLessonID > 0 {
		unlocked, err := scanOne(ctx, tx, `SELECT 1 FROM lesson_unlock
		WHERE user_id = $1 AND lesson_id = $2`, []interface{}{c.UserID, c.NextLessonID}, &one)
		if err != nil {
			return nil, false, err
		}
		if !unlocked {
			if _, err := tx.ExecContext(ctx, `INSERT INTO lesson_unlock(user_id, lesson_id)
			VALUES($1, $2)`, c.UserID, c.NextLessonID); err != nil {
				return nil, false, err
			}
		}
		if c.NextLessonID > nextCurrent {
			nextCurrent = c.NextLessonID
		}
	} else if c.LessonID > nextCurrent {
		nextCurrent = c.LessonID
	}

	if _, err := tx.ExecContext(ctx, `UPDATE lesson_progress
	SET points = points + $1,
			current_lesson_id = $2
	WHERE user_id = $3`, c.Reward, nextCurrent, c.UserID); err != nil {
		return nil, false, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO lesson_validation_history(user_id, id, lesson_id, passed, created_at)
	VALUES($1, $2, $3, $4, $5)`, c.UserID, historyID, c.LessonID, true, now); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	progress, err := loadProgress(ctx, repo.Conn, c.UserID)
	return progress, true, err
}

func (repo *ProgressSQL) GetHistory(ctx context.Context, userID string, limit int) ([]*HistoryEntry, error) {
	query := `SELECT id, lesson_id, passed, created_at FROM lesson_validation_history
	WHERE user_id = $1
	ORDER BY created_at DESC, id DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := repo.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*HistoryEntry{}
	for rows.Next() {
		item := new(HistoryEntry)
		if err := rows.Scan(&item.ID, &item.LessonID, &item.Passed, &item.Timestamp); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, nil
}

// ensureProgress create the user's progress row, losing an insert race to a
// concurrent request is fine
func (repo *ProgressSQL) ensureProgress(ctx context.Context, userID string) error {
	var one int
	found, err := scanOne(ctx, repo.Conn, `SELECT 1 FROM lesson_progress WHERE user_id = $1`,
		[]interface{}{userID}, &one)
	if err != nil || found {
		return err
	}
	_, err = repo.Conn.ExecContext(ctx, `INSERT INTO lesson_progress(user_id, current_lesson_id, points)
	VALUES($1, $2, $3)`, userID, FirstLessonID, 0)
	if driver.IsUniqueViolation(err) {
		return nil
	}
	return err
}

func loadProgress(ctx context.Context, conn driver.ITransactionalDB, userID string) (*ProgressModel, error) {
	progress := NewProgress(userID)
	found, err := scanOne(ctx, conn, `SELECT current_lesson_id, points FROM lesson_progress WHERE user_id = $1`,
		[]interface{}{userID}, &progress.CurrentLessonID, &progress.Points)
	if err != nil || !found {
		return progress, err
	}

	completed, err := queryInts(ctx, conn, `SELECT lesson_id FROM lesson_completion
	WHERE user_id = $1 ORDER BY lesson_id`, userID)
	if err != nil {
		return nil, err
	}
	unlocked, err := queryInts(ctx, conn, `SELECT lesson_id FROM lesson_unlock
	WHERE user_id = $1 ORDER BY lesson_id`, userID)
	if err != nil {
		return nil, err
	}

	progress.CompletedLessonIDs = completed
	for _, id := range unlocked {
		progress.UnlockedLessonIDs = addInt(progress.UnlockedLessonIDs, id)
	}
	return progress, nil
}

// scanOne scans the first row into dest, found is false when there is no row
func scanOne(ctx context.Context, conn driver.ITransactionalDB, query string, args []interface{}, dest ...interface{}) (bool, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return false, nil
	}
	if err := rows.Scan(dest...); err != nil {
		return false, err
	}
	return true, nil
}

func queryInts(ctx context.Context, conn driver.ITransactionalDB, query string, args ...interface{}) ([]int, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []int{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}
