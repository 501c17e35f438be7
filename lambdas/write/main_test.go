package main

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-d/futura-city/lambdas/internal/apiresponse"
	"github.com/dj-d/futura-city/lambdas/internal/tablestore"
	"github.com/dj-d/futura-city/lambdas/internal/tablestore/tablestoretest"
)

const insertSQL = "INSERT INTO energy_efficiency (name) VALUES (?)"

func name(s string) *string { return &s }

func TestWriteBindsNameAsParameter(t *testing.T) {
	hostile := "x'); DROP TABLE energy_efficiency; --"
	opener := tablestoretest.NewOpener(t, func(m sqlmock.Sqlmock) {
		m.ExpectExec(insertSQL).WithArgs(hostile).WillReturnResult(sqlmock.NewResult(1, 1))
		m.ExpectClose()
	})
	h := &Handler{Store: tablestoretest.NewStore(&tablestoretest.Resolver{Creds: tablestoretest.Credentials}, opener)}

	resp, err := h.Handle(context.Background(), Event{Name: name(hostile)})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Successfully inserted data", resp.Body)
	opener.AssertExpectations()
}

func TestWriteRejectionIsNotRetried(t *testing.T) {
	opener := tablestoretest.NewOpener(t, func(m sqlmock.Sqlmock) {
		m.ExpectExec(insertSQL).WithArgs("x").
			WillReturnError(&mysql.MySQLError{Number: 1406, Message: "Data too long for column 'name' at row 1"})
		m.ExpectClose()
	})
	h := &Handler{Store: tablestoretest.NewStore(&tablestoretest.Resolver{Creds: tablestoretest.Credentials}, opener)}

	resp, err := h.Handle(context.Background(), Event{Name: name("x")})
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, apiresponse.ErrorBody{ErrorCode: 1406, ErrorMessage: "Data too long for column 'name' at row 1"}, resp.Body)
	assert.Equal(t, 1, opener.Calls)
	opener.AssertExpectations()
}

func TestWriteWithoutNamePerformsNoIO(t *testing.T) {
	resolver := &tablestoretest.Resolver{Creds: tablestoretest.Credentials}
	opener := tablestoretest.NewOpener(t, nil)
	h := &Handler{Store: tablestoretest.NewStore(resolver, opener)}

	resp, err := h.Handle(context.Background(), Event{})
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Zero(t, resolver.Calls)
	assert.Zero(t, opener.Calls)
}

func TestWriteOpenFailureShortCircuits(t *testing.T) {
	opener := tablestoretest.FailingOpener(t, tablestoretest.ErrConnectionRefused)
	h := &Handler{Store: tablestoretest.NewStore(&tablestoretest.Resolver{Creds: tablestoretest.Credentials}, opener)}

	resp, err := h.Handle(context.Background(), Event{Name: name("x")})
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, tablestore.CodeConnectionFailed, resp.Body.(apiresponse.ErrorBody).ErrorCode)
	assert.Empty(t, opener.Mocks)
}

func TestWriteWithoutLogger(t *testing.T) {
	opener := tablestoretest.NewOpener(t, nil)
	store := tablestoretest.NewStore(&tablestoretest.Resolver{Creds: tablestoretest.Credentials}, opener)
	store.Logger = nil
	h := &Handler{Store: store}

	resp, err := h.Handle(context.Background(), Event{})
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}
