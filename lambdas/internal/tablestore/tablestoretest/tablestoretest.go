// Package tablestoretest provides fakes for handler tests.
package tablestoretest

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dj-d/futura-city/lambdas/internal/dbsecret"
	"github.com/dj-d/futura-city/lambdas/internal/tablestore"
)

// Credentials is a well formed credential set.
var Credentials = dbsecret.Credentials{
	Host:     "ee-rds-mysql.example.eu-west-1.rds.amazonaws.com",
	Port:     3306,
	Username: "admin",
	Password: "secret",
	DBName:   "EeRdsMysql",
}

// Resolver returns fixed credentials or a fixed error.
type Resolver struct {
	Creds dbsecret.Credentials
	Err   error
	Calls int
}

func (r *Resolver) Resolve(_ context.Context, _ string) (dbsecret.Credentials, error) {
	r.Calls++
	return r.Creds, r.Err
}

// Opener hands out one sqlmock handle per call.
type Opener struct {
	t     *testing.T
	Mocks []sqlmock.Sqlmock
	Err   error
	Calls int

	// Expect sets the expectations of each new handle.
	Expect func(sqlmock.Sqlmock)
}

// NewOpener returns an Opener that configures every handle with expect.
func NewOpener(t *testing.T, expect func(sqlmock.Sqlmock)) *Opener {
	return &Opener{t: t, Expect: expect}
}

// FailingOpener returns an Opener whose every call fails with err.
func FailingOpener(t *testing.T, err error) *Opener {
	return &Opener{t: t, Err: err}
}

func (o *Opener) Open(_ context.Context, _ string) (*sql.DB, error) {
	o.Calls++
	if o.Err != nil {
		return nil, o.Err
	}
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(o.t, err)
	if o.Expect != nil {
		o.Expect(mock)
	}
	o.Mocks = append(o.Mocks, mock)
	return db, nil
}

// AssertExpectations checks every handle handed out so far.
func (o *Opener) AssertExpectations() {
	o.t.Helper()
	for _, m := range o.Mocks {
		require.NoError(o.t, m.ExpectationsWereMet())
	}
}

// NewStore wires a Store for the energy_efficiency table with a discarded logger.
func NewStore(resolver tablestore.CredentialResolver, opener *Opener) *tablestore.Store {
	return &tablestore.Store{
		Resolver:  resolver,
		Open:      opener.Open,
		SecretRef: "arn:aws:secretsmanager:eu-west-1:123456789012:secret:ee-rds-mysql-credentials",
		Table:     tablestore.DefaultTableName,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// ErrConnectionRefused stands in for a dial failure.
var ErrConnectionRefused = errors.New("dial tcp 10.1.0.10:3306: connect: connection refused")
