package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/dj-d/futura-city/lambdas/internal/apiresponse"
	"github.com/dj-d/futura-city/lambdas/internal/tablestore"
)

// Event is the read request. It carries no parameters.
type Event struct{}

// Handler lists every row of the subsystem table.
type Handler struct {
	Store *tablestore.Store
}

// Handle returns the rows as [{id, name}, ...].
func (h *Handler) Handle(ctx context.Context, _ Event) (apiresponse.Response, error) {
	var records []tablestore.Record
	err := h.Store.Run(ctx, func(ctx context.Context, s *tablestore.Session) error {
		var err error
		records, err = s.ReadAll(ctx)
		return err
	})
	if err != nil {
		return tablestore.FailureResponse(err), nil
	}

	h.Store.Log().Info("read rows", "table", h.Store.Table, "count", len(records))
	return apiresponse.OK(records), nil
}

func main() {
	store, err := tablestore.NewStoreFromEnv(context.Background(), "lambda-read")
	if err != nil {
		log.Fatalf("read handler setup: %v", err)
	}
	lambda.Start((&Handler{Store: store}).Handle)
}
