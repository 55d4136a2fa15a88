package user

import (
	"context"
	"errors"
)

// UserModel registered account
type UserModel struct {
	ID         string `json:"id"`
	Username   string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email      string `json:"email" validate:"required,email,max=128"`
	Password   string `json:"password,omitempty" validate:"required,min=6,max=72"`
	LoginRetry int    `json:"-"`
	LastLogin  int64  `json:"-"` // unix milliseconds of the last sign in attempt
}

// ErrNoSuchUser failed to validate the credential
var ErrNoSuchUser = errors.New("no such user or password is incorrect")

// ErrDuplicatedUser unique key constraint violation
var ErrDuplicatedUser = errors.New("username or email is already registered")

// ErrTooManyRetry account is locked after too many failed sign in attempts
var ErrTooManyRetry = errors.New("too many failed attempts, try again later")

type UserRepository interface {
	FindByCredential(ctx context.Context, post *UserModel) (*UserModel, error)
	SaveUser(ctx context.Context, post *UserModel) error
	UpdateLogin(ctx context.Context, post *UserModel) error
}

type UserUseCase interface {
	SignIn(ctx context.Context, post *UserModel) (*UserModel, error)
	SignUp(ctx context.Context, post *UserModel) (*UserModel, error)
	Exists(ctx context.Context, post *UserModel) (bool, error)
}
