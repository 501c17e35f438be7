package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/dj-d/futura-city/lambdas/internal/apiresponse"
	"github.com/dj-d/futura-city/lambdas/internal/tablestore"
)

const (
	actionCreate = "create"
	actionDelete = "delete"
)

// Event is the init request.
type Event struct {
	Action string `json:"action"`
}

// Handler creates or drops the subsystem table.
type Handler struct {
	Store *tablestore.Store
}

// Handle validates the action before touching the secret store or the database.
func (h *Handler) Handle(ctx context.Context, event Event) (apiresponse.Response, error) {
	var (
		statement func(*tablestore.Session, context.Context) error
		message   string
	)
	switch event.Action {
	case actionCreate:
		statement = (*tablestore.Session).CreateTable
		message = "Created table"
	case actionDelete:
		statement = (*tablestore.Session).DropTable
		message = "Deleted table"
	default:
		h.Store.Log().Warn("invalid action", "action", event.Action)
		return apiresponse.BadRequest("Invalid action"), nil
	}

	err := h.Store.Run(ctx, func(ctx context.Context, s *tablestore.Session) error {
		return statement(s, ctx)
	})
	if err != nil {
		return tablestore.FailureResponse(err), nil
	}

	h.Store.Log().Info(message, "table", h.Store.Table)
	return apiresponse.OK(apiresponse.Message{Message: message}), nil
}

func main() {
	store, err := tablestore.NewStoreFromEnv(context.Background(), "lambda-init")
	if err != nil {
		log.Fatalf("init handler setup: %v", err)
	}
	lambda.Start((&Handler{Store: store}).Handle)
}
