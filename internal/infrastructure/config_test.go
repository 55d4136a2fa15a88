package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *AppConfig {
	config := new(AppConfig)
	config.AppID = "roundy-lessons"
	config.Env = EnvDevelopment
	config.SessionTimeout = 30 * time.Minute
	config.Database.Driver = "sqlite3"
	config.Database.Schema = "roundy.db"
	config.Database.MaxConn = 1
	config.Logging.Level = "info"
	config.Security.IDLength = 24
	config.Security.JWTMethod = "HS256"
	config.Security.JWTSecret = "secreto"
	config.Security.TokenName = "roundy_token"
	config.Sandbox.MaxConcurrent = 4
	config.Sandbox.MaxCallStack = 256
	config.Sandbox.MaxSourceLength = 20000
	config.Lessons.HistoryLimit = 50
	config.Progress.Driver = "sql"
	return config
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, validateConfig(validConfig()))

	config := validConfig()
	config.Security.JWTSecret = ""
	config.Progress.Driver = "mongo"
	config.Sandbox.MaxConcurrent = 0
	config.Lessons.HistoryLimit = 0
	err := validateConfig(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "security.jwt_secret is required")
	assert.Contains(t, err.Error(), "progress.driver must be one of (sql redis memory)")
	assert.Contains(t, err.Error(), "sandbox.max_concurrent must be at least 1")
	assert.Contains(t, err.Error(), "lessons.history_limit must be at least 1")
}
