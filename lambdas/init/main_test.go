package main

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-d/futura-city/lambdas/internal/apiresponse"
	"github.com/dj-d/futura-city/lambdas/internal/tablestore"
	"github.com/dj-d/futura-city/lambdas/internal/tablestore/tablestoretest"
)

const (
	createSQL = "CREATE TABLE IF NOT EXISTS energy_efficiency (id INT PRIMARY KEY AUTO_INCREMENT, name VARCHAR(255))"
	dropSQL   = "DROP TABLE IF EXISTS energy_efficiency"
)

func newHandler(t *testing.T, expect func(sqlmock.Sqlmock)) (*Handler, *tablestoretest.Resolver, *tablestoretest.Opener) {
	t.Helper()
	resolver := &tablestoretest.Resolver{Creds: tablestoretest.Credentials}
	opener := tablestoretest.NewOpener(t, expect)
	return &Handler{Store: tablestoretest.NewStore(resolver, opener)}, resolver, opener
}

func TestCreateTwiceIsIdempotent(t *testing.T) {
	h, _, opener := newHandler(t, func(m sqlmock.Sqlmock) {
		m.ExpectExec(createSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		m.ExpectClose()
	})

	for i := 0; i < 2; i++ {
		resp, err := h.Handle(context.Background(), Event{Action: "create"})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, apiresponse.Message{Message: "Created table"}, resp.Body)
	}
	assert.Equal(t, 2, opener.Calls)
	opener.AssertExpectations()
}

func TestDeleteAbsentTableIsIdempotent(t *testing.T) {
	h, _, opener := newHandler(t, func(m sqlmock.Sqlmock) {
		m.ExpectExec(dropSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		m.ExpectClose()
	})

	resp, err := h.Handle(context.Background(), Event{Action: "delete"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, apiresponse.Message{Message: "Deleted table"}, resp.Body)
	opener.AssertExpectations()
}

func TestInvalidActionPerformsNoIO(t *testing.T) {
	for _, action := range []string{"anything-else", "", "CREATE"} {
		h, resolver, opener := newHandler(t, nil)

		resp, err := h.Handle(context.Background(), Event{Action: action})
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, apiresponse.Message{Message: "Invalid action"}, resp.Body)
		assert.Zero(t, resolver.Calls)
		assert.Zero(t, opener.Calls)
	}
}

func TestOpenFailureShortCircuits(t *testing.T) {
	resolver := &tablestoretest.Resolver{Creds: tablestoretest.Credentials}
	opener := tablestoretest.FailingOpener(t, tablestoretest.ErrConnectionRefused)
	h := &Handler{Store: tablestoretest.NewStore(resolver, opener)}

	resp, err := h.Handle(context.Background(), Event{Action: "create"})
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	body, ok := resp.Body.(apiresponse.ErrorBody)
	require.True(t, ok)
	assert.Equal(t, tablestore.CodeConnectionFailed, body.ErrorCode)
	assert.Equal(t, 1, opener.Calls)
	assert.Empty(t, opener.Mocks)
}

func TestHandleWithoutLogger(t *testing.T) {
	h, _, opener := newHandler(t, func(m sqlmock.Sqlmock) {
		m.ExpectExec(createSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		m.ExpectClose()
	})
	h.Store.Logger = nil

	resp, err := h.Handle(context.Background(), Event{Action: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = h.Handle(context.Background(), Event{Action: "create"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	opener.AssertExpectations()
}
