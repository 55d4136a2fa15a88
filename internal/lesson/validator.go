package lesson

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roundy-world/lesson-server/internal/infrastructure/logging"
	"github.com/roundy-world/lesson-server/internal/infrastructure/metrics"
	"github.com/roundy-world/lesson-server/internal/sandbox"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// Runner executes submissions in isolation
type Runner interface {
	Run(ctx context.Context, sub *sandbox.Submission) (*sandbox.Result, error)
}

// TestResult outcome of one test case, field names are the ones the game UI reads
type TestResult struct {
	Index    int         `json:"indice"`
	Input    interface{} `json:"prueba"`
	Actual   interface{} `json:"resultado"`
	Expected interface{} `json:"esperado"`
	Passed   bool        `json:"pasada"`
	Error    string      `json:"error,omitempty"`
}

// ValidationReport graded submission
type ValidationReport struct {
	LessonID          int           `json:"lessonId"`
	Passed            bool          `json:"esCorrecto"`
	Output            []*TestResult `json:"output"`
	Feedback          string        `json:"feedback"`
	CompileError      string        `json:"compileError,omitempty"`
	MissingEntryPoint bool          `json:"faltaFuncion,omitempty"`
	TimedOut          bool          `json:"timedOut"`
	Completed         bool          `json:"completada"`
	PointsAwarded     int           `json:"puntosGanados"`
	NextLessonID      int           `json:"siguienteLeccion,omitempty"`
	Console           []string      `json:"consola,omitempty"`
}

// grading outcomes, used as metric labels and log fields
const (
	OutcomePassed       = "passed"
	OutcomeFailed       = "failed"
	OutcomeCompileError = "compile_error"
	OutcomeMissingEntry = "missing_entry_point"
	OutcomeTimeout      = "timeout"
	OutcomeLocked       = "locked"
	OutcomeUnavailable  = "unavailable"
	OutcomeStoreFailure = "store_failure"
)

const (
	messageTimeout       = "tiempo límite excedido"
	messageNotAttempted  = "no se ejecutó: una prueba anterior excedió el tiempo límite"
	messageMissingResult = "la prueba no produjo resultado"
)

// LessonValidator grades submissions and records first completions
type LessonValidator struct {
	Catalog         *Catalog
	Progress        ProgressRepository
	Runner          Runner
	MaxSourceLength int
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

var _ ValidationUseCase = &LessonValidator{}

// NewLessonValidator ...
func NewLessonValidator(
	Catalog *Catalog,
	Progress ProgressRepository,
	Runner Runner,
	MaxSourceLength int,
	Metrics *metrics.Metrics,
) *LessonValidator {
	return &LessonValidator{
		Catalog:         Catalog,
		Progress:        Progress,
		Runner:          Runner,
		MaxSourceLength: MaxSourceLength,
		Metrics:         Metrics,
		Now:             time.Now,
	}
}

// Validate grade source against the lesson's test cases on behalf of userID.
//
// Unknown lessons, locked lessons and empty sources are rejected before any code
// runs. Every grading outcome (compile error, missing entry point, exceptions,
// timeouts, wrong answers) is a normal report; only sandbox.ErrUnavailable and
// progress store failures are returned as errors. Once grading starts it is not
// cancelled by ctx.
func (lv *LessonValidator) Validate(ctx context.Context, userID string, lessonID int, source string) (*ValidationReport, error) {
	apmSpan, _ := apm.StartSpan(ctx, "LessonValidator.Validate", "service")
	defer apmSpan.End()

	logger := logging.ExtractLoggerFromContext(ctx).With(
		zap.String("user.id", userID),
		zap.Int("lesson.id", lessonID),
	)

	lesson, ok := lv.Catalog.Get(lessonID)
	if !ok {
		return nil, ErrUnknownLesson
	}

	progress, err := lv.Progress.GetProgress(ctx, userID)
	if err != nil {
		lv.count(OutcomeStoreFailure)
		lv.storeError("get_progress")
		logger.Error("failed to load progress", zap.Error(err))
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if !progress.HasUnlocked(lessonID) {
		lv.count(OutcomeLocked)
		return nil, ErrLessonLocked
	}
	if strings.TrimSpace(source) == "" {
		return nil, ErrEmptySubmission
	}
	if lv.MaxSourceLength > 0 && len(source) > lv.MaxSourceLength {
		return nil, ErrSubmissionTooLarge
	}

	// the result is recorded even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	cases := make([][]interface{}, len(lesson.TestCases))
	for i, tc := range lesson.TestCases {
		cases[i] = tc.Input
	}
	result, err := lv.Runner.Run(ctx, &sandbox.Submission{
		Source:     source,
		EntryPoint: lesson.EntryPointName,
		Cases:      cases,
	})
	if err != nil {
		lv.count(OutcomeUnavailable)
		logger.Error("failed to run submission", zap.Error(err))
		return nil, err
	}
	if lv.Metrics != nil {
		lv.Metrics.SandboxDuration.WithLabelValues(strconv.FormatBool(result.TimedOut)).Observe(result.Duration.Seconds())
	}

	report := grade(lesson, result)
	outcome := OutcomeFailed
	switch {
	case report.CompileError != "":
		outcome = OutcomeCompileError
	case report.MissingEntryPoint:
		outcome = OutcomeMissingEntry
	case report.TimedOut:
		outcome = OutcomeTimeout
	case report.Passed:
		outcome = OutcomePassed
	}

	firstCompletion := false
	if report.Passed {
		report.Completed = true
		report.NextLessonID = lv.Catalog.Next(lessonID)
		if !progress.HasCompleted(lessonID) {
			_, applied, err := lv.Progress.CompleteLesson(ctx, &Completion{
				UserID:       userID,
				LessonID:     lessonID,
				NextLessonID: report.NextLessonID,
				Reward:       lesson.Reward,
				At:           lv.Now(),
			})
			if err != nil {
				lv.count(OutcomeStoreFailure)
				lv.storeError("complete_lesson")
				logger.Error("failed to record completion", zap.Error(err))
				return nil, fmt.Errorf("record completion: %w", err)
			}
			// a concurrent submission may have recorded the completion first
			firstCompletion = applied
			if applied {
				report.PointsAwarded = lesson.Reward
				if lv.Metrics != nil {
					lv.Metrics.Completions.Inc()
				}
			}
		}
	}
	report.Feedback = feedback(lesson, report, firstCompletion)

	lv.count(outcome)
	logger.Info("submission graded",
		zap.String("outcome", outcome),
		zap.Int("tests.passed", countPassed(report.Output)),
		zap.Int("tests.total", len(lesson.TestCases)),
		zap.Int("points", report.PointsAwarded),
		zap.Duration("duration", result.Duration),
	)
	return report, nil
}

func (lv *LessonValidator) count(outcome string) {
	if lv.Metrics != nil {
		lv.Metrics.Validations.WithLabelValues(outcome).Inc()
	}
}

func (lv *LessonValidator) storeError(operation string) {
	if lv.Metrics != nil {
		lv.Metrics.ProgressErrors.WithLabelValues(operation).Inc()
	}
}

// grade compares the sandbox result against the lesson's expectations
func grade(lesson *Lesson, result *sandbox.Result) *ValidationReport {
	report := &ValidationReport{
		LessonID:          lesson.ID,
		Output:            []*TestResult{},
		CompileError:      result.CompileError,
		MissingEntryPoint: result.MissingEntryPoint,
		TimedOut:          result.TimedOut,
		Console:           result.Console,
	}
	if result.CompileError != "" || result.MissingEntryPoint {
		return report
	}
	if result.TimedOut && len(result.Calls) == 0 {
		// top level code never finished
		return report
	}

	passed := !result.TimedOut
	for i, tc := range lesson.TestCases {
		tr := &TestResult{
			Index:    i,
			Input:    tc.Input,
			Expected: sandbox.ToJSONSafe(tc.ExpectedOutput),
		}
		switch {
		case i >= len(result.Calls):
			if result.TimedOut {
				tr.Error = messageNotAttempted
			} else {
				tr.Error = messageMissingResult
			}
		case result.Calls[i].TimedOut:
			tr.Error = messageTimeout
		case result.Calls[i].Error != "":
			tr.Error = result.Calls[i].Error
		default:
			tr.Actual = sandbox.ToJSONSafe(result.Calls[i].Value)
			tr.Passed = sandbox.Equal(tc.ExpectedOutput, result.Calls[i].Value)
		}
		if !tr.Passed {
			passed = false
		}
		report.Output = append(report.Output, tr)
	}
	report.Passed = passed
	return report
}

func feedback(lesson *Lesson, report *ValidationReport, firstCompletion bool) string {
	switch {
	case report.CompileError != "":
		return "Tu código tiene un error: " + report.CompileError
	case report.MissingEntryPoint:
		return fmt.Sprintf("No encontramos la función `%s`. Asegúrate de definirla con ese nombre.", lesson.EntryPointName)
	case report.TimedOut:
		return "Tu código tardó demasiado en ejecutarse. ¿Tienes algún bucle infinito?"
	case report.Passed:
		msg := "¡Excelente! Todas las pruebas pasaron."
		if !firstCompletion {
			return msg + " Ya habías completado esta lección."
		}
		if report.PointsAwarded > 0 {
			msg += fmt.Sprintf(" Ganaste %d puntos.", report.PointsAwarded)
		}
		if report.NextLessonID > 0 {
			msg += " Desbloqueaste la siguiente lección."
		}
		return msg
	}
	return fmt.Sprintf("Pasaste %d de %d pruebas. Revisa los casos que fallaron.",
		countPassed(report.Output), len(report.Output))
}

func countPassed(results []*TestResult) int {
	n := 0
	for _, r := range results {
		if r.Passed {
			n++
		}
	}
	return n
}
