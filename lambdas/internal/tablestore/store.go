// Package tablestore runs one statement per invocation against the subsystem table.
package tablestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"

	"github.com/dj-d/futura-city/lambdas/internal/apiresponse"
	"github.com/dj-d/futura-city/lambdas/internal/dbsecret"
)

// CodeConnectionFailed is reported when a connection fails without a server error number.
const CodeConnectionFailed = 2003

// Step names the stage of an invocation that failed.
type Step string

const (
	StepConfig    Step = "config"
	StepSecret    Step = "secret"
	StepConnect   Step = "connect"
	StepStatement Step = "statement"
)

// StepError is the failure of one stage.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Code is the MySQL error number when the server sent one, 2003 for a
// connection that never reached the server, 0 otherwise.
func (e *StepError) Code() int {
	var myErr *mysql.MySQLError
	if errors.As(e.Err, &myErr) {
		return int(myErr.Number)
	}
	if e.Step == StepConnect {
		return CodeConnectionFailed
	}
	return 0
}

func (e *StepError) message() string {
	var myErr *mysql.MySQLError
	if errors.As(e.Err, &myErr) {
		return myErr.Message
	}
	return e.Err.Error()
}

// FailureResponse converts a Run error into a 500 response.
func FailureResponse(err error) apiresponse.Response {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return apiresponse.Failure(stepErr.Code(), stepErr.message())
	}
	return apiresponse.Failure(0, err.Error())
}

// Opener opens a database handle for a DSN.
type Opener func(ctx context.Context, dsn string) (*sql.DB, error)

// OpenMySQL opens a handle capped at one connection and pings it.
func OpenMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// CredentialResolver resolves a secret reference into credentials.
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (dbsecret.Credentials, error)
}

// Store holds what an invocation needs to reach the table.
type Store struct {
	Resolver  CredentialResolver
	Open      Opener
	SecretRef string
	Table     string
	Logger    *slog.Logger
}

// Log returns the store logger, or slog.Default when none is set.
func (s *Store) Log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Run resolves credentials, opens a connection, runs fn and closes the
// connection. A close failure after fn succeeded is only logged.
func (s *Store) Run(ctx context.Context, fn func(context.Context, *Session) error) error {
	logger := s.Log()

	if err := ValidateTableName(s.Table); err != nil {
		return &StepError{Step: StepConfig, Err: err}
	}

	logger.Debug("resolving database credentials")
	creds, err := s.Resolver.Resolve(ctx, s.SecretRef)
	if err != nil {
		logger.Error("credential resolution failed", "error", err)
		return &StepError{Step: StepSecret, Err: err}
	}

	logger.Debug("opening connection", "host", creds.Host, "database", creds.DBName)
	db, err := s.Open(ctx, creds.DSN())
	if err != nil {
		logger.Error("connection failed", "error", err)
		return &StepError{Step: StepConnect, Err: err}
	}
	logger.Info("connected to database")

	if err := fn(ctx, &Session{db: db, table: s.Table}); err != nil {
		logger.Error("statement failed", "table", s.Table, "error", err)
		_ = db.Close()
		return &StepError{Step: StepStatement, Err: err}
	}

	if err := db.Close(); err != nil {
		logger.Warn("closing connection failed", "error", err)
		return nil
	}
	logger.Debug("closed connection")
	return nil
}
