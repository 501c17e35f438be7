package tablestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/dj-d/futura-city/lambdas/internal/dbsecret"
)

// DefaultTableName is used when TABLE_NAME is not set.
const DefaultTableName = "energy_efficiency"

// ErrInvalidTableName is returned for table names that are not plain identifiers.
var ErrInvalidTableName = errors.New("invalid table name")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Env is the handler environment.
type Env struct {
	SecretRef string
	TableName string
	LogLevel  slog.Level
}

// LoadEnv reads DB_SECRET_ARN, TABLE_NAME and LOG_LEVEL.
// A missing DB_SECRET_ARN is reported by the secret lookup of each invocation.
func LoadEnv() (Env, error) {
	env := Env{
		SecretRef: os.Getenv("DB_SECRET_ARN"),
		TableName: os.Getenv("TABLE_NAME"),
		LogLevel:  parseLevel(os.Getenv("LOG_LEVEL")),
	}
	if env.TableName == "" {
		env.TableName = DefaultTableName
	}
	if err := ValidateTableName(env.TableName); err != nil {
		return Env{}, err
	}
	return env, nil
}

// ValidateTableName rejects anything that cannot be placed in SQL text unquoted.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a JSON logger on stdout tagged with the function name.
func NewLogger(function string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("function", function)
}

// NewStoreFromEnv builds the Store of a deployed handler: environment, logger,
// AWS config and Secrets Manager client. It runs once per cold start.
func NewStoreFromEnv(ctx context.Context, function string) (*Store, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	logger := NewLogger(function, env.LogLevel)

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Store{
		Resolver:  dbsecret.NewResolver(secretsmanager.NewFromConfig(cfg)),
		Open:      OpenMySQL,
		SecretRef: env.SecretRef,
		Table:     env.TableName,
		Logger:    logger,
	}, nil
}
