package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	infra "github.com/roundy-world/lesson-server/internal/infrastructure"
	"github.com/roundy-world/lesson-server/internal/infrastructure/auth"
	"github.com/roundy-world/lesson-server/internal/infrastructure/logging"
	"github.com/roundy-world/lesson-server/internal/infrastructure/validate"
	"github.com/roundy-world/lesson-server/internal/lesson"
	"github.com/roundy-world/lesson-server/internal/sandbox"
	"go.uber.org/zap"
)

// ValidateRequest body of a validation request, the user always comes from the token
type ValidateRequest struct {
	LessonID int    `json:"lessonId" validate:"required,min=1"`
	Code     string `json:"codigo"`
}

type LessonHandler struct {
	lessonUseCase     lesson.LessonUseCase
	validationUseCase lesson.ValidationUseCase
	jwtUtil           *auth.JWTUtil
	validator         validate.Validator
	websocket         *infra.Websocket
}

func NewLessonHandler(
	LessonUseCase lesson.LessonUseCase,
	ValidationUseCase lesson.ValidationUseCase,
	JWTUtil *auth.JWTUtil,
	Validator validate.Validator,
	Websocket *infra.Websocket,
) *LessonHandler {
	handler := &LessonHandler{LessonUseCase, ValidationUseCase, JWTUtil, Validator, Websocket}
	return handler
}

// HandleValidate grade a submission and record the completion
func (lh *LessonHandler) HandleValidate(c echo.Context) (err error) {
	claims := lh.jwtUtil.GetContextToken(c)

	post := new(ValidateRequest)
	if err = c.Bind(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTStandardError(http.StatusBadRequest, "cuerpo de la petición inválido").SetTraceID(traceID(c)))
	}
	if err := lh.validator.Struct(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "parámetros inválidos", err).SetTraceID(traceID(c)))
	}

	report, err := lh.validationUseCase.Validate(c.Request().Context(), claims.UID, post.LessonID, post.Code)
	if err != nil {
		if code, ok := lessonErrorStatus(err); ok {
			return c.JSON(code, NewRESTStandardError(code, lessonErrorMessage(err)).SetTraceID(traceID(c)))
		}
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// HandleListLessons ...
func (lh *LessonHandler) HandleListLessons(c echo.Context) (err error) {
	claims := lh.jwtUtil.GetContextToken(c)
	lessons, err := lh.lessonUseCase.ListLessons(c.Request().Context(), claims.UID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lessons)
}

// HandleGetLesson ...
func (lh *LessonHandler) HandleGetLesson(c echo.Context) (err error) {
	claims := lh.jwtUtil.GetContextToken(c)
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "parámetros inválidos",
			validate.FieldErrors{validate.NewFieldError("id", "debe ser un número entero")}).SetTraceID(traceID(c)))
	}
	if fe := lh.validator.Var("id", id, "min=1"); fe != nil {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "parámetros inválidos",
			validate.FieldErrors{fe}).SetTraceID(traceID(c)))
	}

	view, err := lh.lessonUseCase.GetLesson(c.Request().Context(), claims.UID, id)
	if err != nil {
		if code, ok := lessonErrorStatus(err); ok {
			return c.JSON(code, NewRESTStandardError(code, lessonErrorMessage(err)).SetTraceID(traceID(c)))
		}
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// HandleGetLessonProgress ...
func (lh *LessonHandler) HandleGetLessonProgress(c echo.Context) (err error) {
	claims := lh.jwtUtil.GetContextToken(c)
	progress, err := lh.lessonUseCase.GetProgress(c.Request().Context(), claims.UID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, progress)
}

// HandleGetHistory ...
func (lh *LessonHandler) HandleGetHistory(c echo.Context) (err error) {
	claims := lh.jwtUtil.GetContextToken(c)
	history, err := lh.lessonUseCase.GetHistory(c.Request().Context(), claims.UID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, history)
}

// HandleValidateStream websocket flavour of HandleValidate, every text message is
// a ValidateRequest answered by a report or an error body
func (lh *LessonHandler) HandleValidateStream(c echo.Context) (err error) {
	uid := lh.jwtUtil.GetContextToken(c).UID
	logger := logging.ExtractLoggerFromContext(c.Request().Context())
	ctx := logging.SetLoggerInContext(context.Background(), logger)
	rid := traceID(c)

	return lh.websocket.Serve(c, func(conn *websocket.Conn, messageType int, payload []byte) error {
		if messageType != websocket.TextMessage {
			return infra.WriteJSON(conn, NewRESTStandardError(http.StatusBadRequest, "se esperaba un mensaje de texto").SetTraceID(rid))
		}
		post := new(ValidateRequest)
		if err := json.Unmarshal(payload, post); err != nil {
			return infra.WriteJSON(conn, NewRESTStandardError(http.StatusBadRequest, "mensaje inválido").SetTraceID(rid))
		}
		if err := lh.validator.Struct(post); err != nil {
			return infra.WriteJSON(conn, NewRESTValidationError(http.StatusBadRequest, "parámetros inválidos", err).SetTraceID(rid))
		}

		report, err := lh.validationUseCase.Validate(ctx, uid, post.LessonID, post.Code)
		if err != nil {
			code, ok := lessonErrorStatus(err)
			if !ok {
				logger.Error(err.Error(), zap.String("trace.id", rid))
				return infra.WriteJSON(conn, NewRESTStandardError(http.StatusInternalServerError, "error interno, intenta de nuevo").SetTraceID(rid))
			}
			return infra.WriteJSON(conn, NewRESTStandardError(code, lessonErrorMessage(err)).SetTraceID(rid))
		}
		return infra.WriteJSON(conn, report)
	})
}

// lessonErrorStatus maps request errors and retriable sandbox exhaustion to a status,
// ok is false for errors that must be treated as internal
func lessonErrorStatus(err error) (code int, ok bool) {
	switch {
	case errors.Is(err, lesson.ErrUnknownLesson):
		return http.StatusNotFound, true
	case errors.Is(err, lesson.ErrLessonLocked):
		return http.StatusForbidden, true
	case errors.Is(err, lesson.ErrEmptySubmission):
		return http.StatusBadRequest, true
	case errors.Is(err, lesson.ErrSubmissionTooLarge):
		return http.StatusRequestEntityTooLarge, true
	case errors.Is(err, sandbox.ErrUnavailable):
		return http.StatusServiceUnavailable, true
	}
	return 0, false
}

func lessonErrorMessage(err error) string {
	if errors.Is(err, sandbox.ErrUnavailable) {
		return "el evaluador está ocupado, intenta de nuevo en unos segundos"
	}
	return err.Error()
}

func traceID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
