package user

import (
	"context"

	"github.com/roundy-world/lesson-server/internal/infrastructure/driver"
)

type UserSQL struct {
	Conn driver.ITransactionalDB
}

var _ UserRepository = &UserSQL{}

func NewUserRepository(Conn driver.ITransactionalDB) *UserSQL {
	return &UserSQL{Conn}
}

// FindByCredential query user whose username or email matches post
func (repo *UserSQL) FindByCredential(ctx context.Context, post *UserModel) (*UserModel, error) {
	conn := repo.Conn
	row, err := conn.QueryContext(ctx, `SELECT id, username, password, email, login_retry, last_login
	FROM app_user WHERE username = $1 OR email = $2`, post.Username, post.Email)
	if err != nil {
		return nil, err
	}
	defer row.Close()

	if row.Next() {
		user := new(UserModel)
		if err := row.Scan(&user.ID, &user.Username, &user.Password, &user.Email, &user.LoginRetry, &user.LastLogin); err != nil {
			return nil, err
		}
		return user, nil
	}
	return nil, nil
}

func (repo *UserSQL) SaveUser(ctx context.Context, post *UserModel) error {
	_, err := repo.Conn.ExecContext(ctx, `INSERT INTO app_user(id, username, password, email, login_retry, last_login)
	VALUES($1, $2, $3, $4, $5, $6)`, post.ID, post.Username, post.Password, post.Email, post.LoginRetry, post.LastLogin)
	if driver.IsUniqueViolation(err) {
		return ErrDuplicatedUser
	}
	return err
}

func (repo *UserSQL) UpdateLogin(ctx context.Context, post *UserModel) error {
	_, err := repo.Conn.ExecContext(ctx, `UPDATE app_user
	SET login_retry = $1,
			last_login = $2
	WHERE id = $3`, post.LoginRetry, post.LastLogin, post.ID)
	return err
}
