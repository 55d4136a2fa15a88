package infra

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix env prefix for viper
const EnvPrefix = "GOAPP"

// runtime environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// AppConfig App option object
type AppConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" yaml:"app_id" validate:"required"`            // Application ID
	Host           string        `mapstructure:"host" json:"host" yaml:"host"`                                      // bind host address
	Port           int           `mapstructure:"port" json:"port" yaml:"port"`                                      // bind listen port
	Env            string        `mapstructure:"env" json:"env" yaml:"env" validate:"oneof=development production"` // runtime environment
	SessionTimeout time.Duration `mapstructure:"session_timeout" json:"session_timeout" yaml:"session_timeout"`
	SessionRefresh time.Duration `mapstructure:"session_refresh" json:"session_refresh" yaml:"session_refresh"` // session refresh threshold
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"` // abort request after
	Database       struct {
		Driver   string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"required,oneof=mysql postgres sqlite3"` // driver name
		Host     string `mapstructure:"host" json:"host" yaml:"host"`                                                          // server host
		MaxConn  int32  `mapstructure:"maxconn" json:"maxconn" yaml:"maxconn" validate:"min=1"`                                // maximum opening connections number
		Password string `mapstructure:"password" json:"-" yaml:"password"`                                                     // db password
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                                                          // server port
		Protocol string `mapstructure:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=tcp udp"`           // connection protocol, eg.tcp
		Query    string `mapstructure:"query" json:"query" yaml:"query"`                                                       // DSN query parameter
		Schema   string `mapstructure:"schema" json:"schema" yaml:"schema" validate:"required"`                                // use schema, or file path for sqlite3
		User     string `mapstructure:"username" json:"username" yaml:"username"`                                              // db username
		Migrate  bool   `mapstructure:"migrate" json:"migrate" yaml:"migrate"`                                                 // create tables on startup
	} `mapstructure:"database" json:"database" yaml:"database"`
	Logging struct {
		FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`                            // log file path
		Level    string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"` // global logging level
	} `mapstructure:"logging" json:"logging" yaml:"logging"`
	Security struct {
		IDLength         int           `mapstructure:"id_length" json:"id_length" yaml:"id_length" validate:"min=8"` // length of generated ID for entities
		JWTMethod        string        `mapstructure:"jwt_method" json:"jwt_method" yaml:"jwt_method" validate:"oneof=HS256 HS512"`
		JWTSecret        string        `mapstructure:"jwt_secret" json:"-" yaml:"jwt_secret" validate:"required"`
		TokenName        string        `mapstructure:"token_name" json:"token_name" yaml:"token_name" validate:"required"`     // jwt token name set in cookie
		MaxLoginAttempts int           `mapstructure:"max_login_attempts" json:"max_login_attempts" yaml:"max_login_attempts"` // maximum login attempts
		RetryTimeout     time.Duration `mapstructure:"retry_timeout" json:"retry_timeout" yaml:"retry_timeout"`                // retry wait
	} `mapstructure:"security" json:"security" yaml:"security"`
	KVStore struct {
		Host     string `mapstructure:"host" json:"host" yaml:"host"`         // bind host address
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`         // bind listen port
		Password string `mapstructure:"password" json:"-" yaml:"password"`    // password for security reasons
		DB       int    `mapstructure:"db" json:"db" yaml:"db"`               // logical database
		Prefix   string `mapstructure:"prefix" json:"prefix" yaml:"prefix"`   // key prefix for progress records
		Retries  int    `mapstructure:"retries" json:"retries" yaml:"retries"` // optimistic transaction retries
	} `mapstructure:"kv" json:"kv" yaml:"kv"`
	Sandbox struct {
		CallTimeout       time.Duration `mapstructure:"call_timeout" json:"call_timeout" yaml:"call_timeout"`                   // per invocation wall clock
		SubmissionTimeout time.Duration `mapstructure:"submission_timeout" json:"submission_timeout" yaml:"submission_timeout"` // whole submission wall clock
		MaxConcurrent     int64         `mapstructure:"max_concurrent" json:"max_concurrent" yaml:"max_concurrent" validate:"min=1"`
		AcquireTimeout    time.Duration `mapstructure:"acquire_timeout" json:"acquire_timeout" yaml:"acquire_timeout"` // wait for a free isolate
		MaxCallStack      int           `mapstructure:"max_call_stack" json:"max_call_stack" yaml:"max_call_stack" validate:"min=16"`
		MaxSourceLength   int           `mapstructure:"max_source_length" json:"max_source_length" yaml:"max_source_length" validate:"min=1"`
		MaxConsoleLines   int           `mapstructure:"max_console_lines" json:"max_console_lines" yaml:"max_console_lines"`
	} `mapstructure:"sandbox" json:"sandbox" yaml:"sandbox"`
	Lessons struct {
		CatalogPath   string `mapstructure:"catalog_path" json:"catalog_path" yaml:"catalog_path"` // empty means the embedded catalog
		DefaultReward int    `mapstructure:"default_reward" json:"default_reward" yaml:"default_reward" validate:"min=0"`
		HistoryLimit  int    `mapstructure:"history_limit" json:"history_limit" yaml:"history_limit" validate:"min=1"` // entries returned by the history endpoint
	} `mapstructure:"lessons" json:"lessons" yaml:"lessons"`
	Progress struct {
		Driver string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=sql redis memory"` // progress store backend
	} `mapstructure:"progress" json:"progress" yaml:"progress"`
	DevOP struct {
		APM     bool `mapstructure:"apm" json:"apm" yaml:"apm"`
		Metrics bool `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	} `mapstructure:"devop" json:"devop" yaml:"devop"`
}

// InitConfig init app config using viper
func InitConfig() (*AppConfig, error) {
	pflag.String("config", "", "optional config file (yaml, json or toml), flags and env vars override it")

	// app
	pflag.String("host", "", "binding address")
	pflag.String("app_id", "roundy-lessons", "application identifier")
	pflag.String("env", EnvDevelopment, "runtime environment, can be 'development' or 'production'")
	pflag.Int("port", 8081, "listening port")
	pflag.Duration("session_timeout", 30*time.Minute, "JWT lifetime(m, s and h units are supported), eg.30m")
	pflag.Duration("session_refresh", 5*time.Minute, "session refresh threshold(m, s and h units are supported), eg.5m")
	pflag.Duration("request_timeout", 30*time.Second, "abort requests running longer than this")

	// database
	pflag.String("database.driver", "mysql", "database driver to use, one of mysql, postgres or sqlite3")
	pflag.String("database.host", "127.0.0.1", "database host")
	pflag.Int("database.port", 3306, "database server port")
	pflag.String("database.protocol", "", "connection protocol(if mysql is used, this flag must be set), eg.tcp")
	pflag.String("database.username", "", "database username")
	pflag.String("database.password", "", "database password")
	pflag.String("database.schema", "", "database schema, or the database file when sqlite3 is used (required)")
	pflag.String("database.query", "", `additional DSN query parameters('?' is auto prefixed)`)
	pflag.Int32("database.maxconn", 200, `max connection count, if you encounter a "too many connections" error, please consider
increasing the max_connection value of your db server, or lower this value`)
	pflag.Bool("database.migrate", false, "create missing tables on startup")

	// logging
	pflag.String("logging.level", "info", "logging level")
	pflag.String("logging.file_path", "", "log to file")

	// security
	pflag.Int("security.id_length", 24, "set length of generated ID for entities")
	pflag.String("security.jwt_method", "HS256", "hash algorithm used for JWT auth")
	pflag.String("security.jwt_secret", "", "JWT secret (required)")
	pflag.String("security.token_name", "roundy_token", "cookie name to store the token")
	pflag.Int("security.max_login_attempts", 3, "maximum login attempts")
	pflag.Duration("security.retry_timeout", 1*time.Hour, "retry wait")

	// kv storage
	pflag.String("kv.host", "127.0.0.1", "kv host")
	pflag.Int("kv.port", 6379, "kv server port")
	pflag.String("kv.password", "", "kv server password")
	pflag.Int("kv.db", 0, "kv logical database")
	pflag.String("kv.prefix", "roundy:progress:", "key prefix of lesson progress records")
	pflag.Int("kv.retries", 8, "retries of optimistic progress updates")

	// sandbox
	pflag.Duration("sandbox.call_timeout", 1*time.Second, "wall clock limit of a single entry point invocation")
	pflag.Duration("sandbox.submission_timeout", 5*time.Second, "wall clock limit of a whole submission")
	pflag.Int64("sandbox.max_concurrent", 32, "maximum number of live isolates")
	pflag.Duration("sandbox.acquire_timeout", 2*time.Second, "how long a submission waits for a free isolate")
	pflag.Int("sandbox.max_call_stack", 1024, "maximum call stack depth inside the isolate")
	pflag.Int("sandbox.max_source_length", 20000, "maximum submitted source length in bytes")
	pflag.Int("sandbox.max_console_lines", 50, "maximum captured console lines per submission")

	// lessons
	pflag.String("lessons.catalog_path", "", "YAML lesson catalog, the embedded catalog is used when empty")
	pflag.Int("lessons.default_reward", 10, "points granted for a lesson without explicit reward")
	pflag.Int("lessons.history_limit", 50, "maximum history entries returned per request")

	// progress
	pflag.String("progress.driver", "sql", "lesson progress store, can be 'sql', 'redis' or 'memory'")

	// DevOp
	pflag.Bool("devop.apm", false, "enable apm metrics")
	pflag.Bool("devop.metrics", true, "expose prometheus metrics on /metrics")

	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var config = new(AppConfig)
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Logging.Level == "debug" {
		if configJSON, err := json.MarshalIndent(config, "", "  "); err == nil {
			log.Printf("App config: %s\n", string(configJSON))
		}
	}
	return config, nil
}

func validateConfig(config *AppConfig) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	err := validate.Struct(config)
	if _, ok := err.(*validator.InvalidValidationError); ok {
		log.Fatalf("Failed to validate config: %s", err)
	}
	if err == nil {
		return nil
	}

	var msg []string
	for _, field := range err.(validator.ValidationErrors) {
		namespace := field.Namespace()
		fieldName := namespace[strings.IndexByte(namespace, '.')+1:] // trim top level namespace
		switch field.Tag() {
		case "required":
			msg = append(msg, fmt.Sprintf("%s is required", fieldName))
		case "oneof":
			msg = append(msg, fmt.Sprintf("%s must be one of (%s)", fieldName, field.Param()))
		case "min":
			msg = append(msg, fmt.Sprintf("%s must be at least %s", fieldName, field.Param()))
		}
	}
	if len(msg) > 0 {
		return fmt.Errorf("failed to validate config: \n%s", strings.Join(msg, "\n"))
	}
	return nil
}
