package user

import (
	"context"
	"time"

	"github.com/roundy-world/lesson-server/internal/infrastructure/uuid"
	"go.elastic.co/apm"
	"golang.org/x/crypto/bcrypt"
)

// UserUseCaseImpl ...
type UserUseCaseImpl struct {
	UserRepository UserRepository
	UUIDGenerator  uuid.Generator
	MaximumRetry   int
	RetryTimeout   time.Duration
	Now            func() time.Time
}

var _ UserUseCase = &UserUseCaseImpl{}

// NewUserUseCase ...
func NewUserUseCase(
	UserRepository UserRepository,
	UUIDGenerator uuid.Generator,
	MaximumRetry int,
	RetryTimeout time.Duration,
) *UserUseCaseImpl {
	return &UserUseCaseImpl{
		UserRepository: UserRepository,
		UUIDGenerator:  UUIDGenerator,
		MaximumRetry:   MaximumRetry,
		RetryTimeout:   RetryTimeout,
		Now:            time.Now,
	}
}

// SignIn check credential, post.Username may hold either the username or the email.
// Accounts are locked for RetryTimeout after MaximumRetry consecutive failures
func (uu *UserUseCaseImpl) SignIn(ctx context.Context, post *UserModel) (*UserModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "UserUseCaseImpl.SignIn", "service")
	defer apmSpan.End()

	ur := uu.UserRepository
	user, err := ur.FindByCredential(ctx, &UserModel{Username: post.Username, Email: post.Username})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNoSuchUser
	}

	now := uu.Now()
	lastAttempt := time.Unix(0, user.LastLogin*int64(time.Millisecond))
	if uu.MaximumRetry > 0 && user.LoginRetry >= uu.MaximumRetry {
		if now.Sub(lastAttempt) < uu.RetryTimeout {
			return nil, ErrTooManyRetry
		}
		user.LoginRetry = 0
	}

	user.LastLogin = now.UnixNano() / int64(time.Millisecond)
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(post.Password)); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			user.LoginRetry++
			if err := ur.UpdateLogin(ctx, user); err != nil {
				return nil, err
			}
			return nil, ErrNoSuchUser
		}
		return nil, err
	}

	// reset retry number
	user.LoginRetry = 0
	if err := ur.UpdateLogin(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SignUp create a user
func (uu *UserUseCaseImpl) SignUp(ctx context.Context, post *UserModel) (*UserModel, error) {
	apmSpan, _ := apm.StartSpan(ctx, "UserUseCaseImpl.SignUp", "service")
	defer apmSpan.End()

	ur := uu.UserRepository
	// search for existence
	if m, err := ur.FindByCredential(ctx, post); err != nil {
		return nil, err
	} else if m != nil {
		return nil, ErrDuplicatedUser
	}

	// generate id
	if id, err := uu.UUIDGenerator.Generate(); err == nil {
		post.ID = id
	} else {
		return nil, err
	}

	// hash password
	if password, err := bcrypt.GenerateFromPassword([]byte(post.Password), bcrypt.MinCost); err == nil {
		post.Password = string(password)
	} else {
		return nil, err
	}

	post.LoginRetry = 0
	post.LastLogin = 0
	if err := ur.SaveUser(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Exists find if user exists in database
func (uu *UserUseCaseImpl) Exists(ctx context.Context, post *UserModel) (bool, error) {
	apmSpan, _ := apm.StartSpan(ctx, "UserUseCaseImpl.Exists", "service")
	defer apmSpan.End()

	user, err := uu.UserRepository.FindByCredential(ctx, post)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}
