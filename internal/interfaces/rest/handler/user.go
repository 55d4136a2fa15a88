package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/roundy-world/lesson-server/internal/infrastructure/auth"
	"github.com/roundy-world/lesson-server/internal/infrastructure/driver"
	"github.com/roundy-world/lesson-server/internal/infrastructure/validate"
	"github.com/roundy-world/lesson-server/internal/user"
)

// RevokedTokenPrefix key prefix of signed out tokens in the kv store
const RevokedTokenPrefix = "roundy:revoked:"

// SignInRequest ...
type SignInRequest struct {
	Username string `json:"username" validate:"required"` // username or email
	Password string `json:"password" validate:"required"`
}

// UserHandler user related operations
type UserHandler struct {
	JWTUtil     *auth.JWTUtil
	KVStore     driver.KeyValueDB
	UserUseCase user.UserUseCase
	Validator   validate.Validator
}

// NewUserHandler create an user controller instance
func NewUserHandler(
	JWTUtil *auth.JWTUtil,
	KVStore driver.KeyValueDB,
	UserUseCase user.UserUseCase,
	Validator validate.Validator,
) *UserHandler {
	handler := &UserHandler{
		JWTUtil:     JWTUtil,
		KVStore:     KVStore,
		UserUseCase: UserUseCase,
		Validator:   Validator,
	}
	return handler
}

// IsRevoked reports whether token was signed out
func IsRevoked(kv driver.KeyValueDB) func(ctx context.Context, token string) (bool, error) {
	return func(ctx context.Context, token string) (bool, error) {
		return kv.Exists(ctx, RevokedTokenPrefix+token)
	}
}

// HandleSignIn ...
func (uh *UserHandler) HandleSignIn(c echo.Context) (err error) {
	ju := uh.JWTUtil

	post := new(SignInRequest)
	if err = c.Bind(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTStandardError(http.StatusBadRequest, "cuerpo de la petición inválido").SetTraceID(traceID(c)))
	}
	if err := uh.Validator.Struct(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "parámetros inválidos", err).SetTraceID(traceID(c)))
	}

	u, err := uh.UserUseCase.SignIn(c.Request().Context(), &user.UserModel{Username: post.Username, Password: post.Password})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrNoSuchUser):
			return c.JSON(http.StatusUnauthorized, NewRESTStandardError(http.StatusUnauthorized, err.Error()).SetTraceID(traceID(c)))
		case errors.Is(err, user.ErrTooManyRetry):
			return c.JSON(http.StatusForbidden, NewRESTStandardError(http.StatusForbidden, err.Error()).SetTraceID(traceID(c)))
		}
		return err
	}

	// issue JWT
	tokenStr, err := ju.IssueToken(u)
	if err != nil {
		return err
	}
	ju.SetClientToken(c, tokenStr)
	return c.JSON(http.StatusOK, map[string]string{"token": tokenStr, "id": u.ID, "username": u.Username})
}

// HandleSignUp ...
func (uh *UserHandler) HandleSignUp(c echo.Context) (err error) {
	post := new(user.UserModel)
	if err = c.Bind(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTStandardError(http.StatusBadRequest, "cuerpo de la petición inválido").SetTraceID(traceID(c)))
	}

	// validation
	if err := uh.Validator.Struct(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "parámetros inválidos", err).SetTraceID(traceID(c)))
	}

	// register
	u, err := uh.UserUseCase.SignUp(c.Request().Context(), post)
	if err != nil {
		if errors.Is(err, user.ErrDuplicatedUser) {
			return c.JSON(http.StatusConflict, NewRESTStandardError(http.StatusConflict, err.Error()).SetTraceID(traceID(c)))
		}
		return err
	}
	u.Password = ""
	return c.JSON(http.StatusCreated, u)
}

// HandleSignOut revoke the token until it expires
func (uh *UserHandler) HandleSignOut(c echo.Context) (err error) {
	ju := uh.JWTUtil
	kv := uh.KVStore

	tokenStr, err := ju.ExtractToken(c)
	if err != nil {
		return c.NoContent(http.StatusNoContent)
	}
	token, err := ju.Parse(tokenStr)
	if err != nil {
		return c.NoContent(http.StatusUnauthorized)
	}
	ju.ClearClientToken(c)
	if err := kv.SetEX(c.Request().Context(), RevokedTokenPrefix+tokenStr, "", token.TimeRemaining()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleUserExists ...
func (uh *UserHandler) HandleUserExists(c echo.Context) (err error) {
	post := new(user.UserModel)
	post.Username = c.QueryParam("username")
	post.Email = c.QueryParam("email")

	if err := uh.Validator.AllEmpty([]string{"username", "email"}, post.Username, post.Email); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "parámetros inválidos", validate.FieldErrors{err}).SetTraceID(traceID(c)))
	}

	existing, err := uh.UserUseCase.Exists(c.Request().Context(), post)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, existing)
}
