package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/dj-d/futura-city/lambdas/internal/apiresponse"
	"github.com/dj-d/futura-city/lambdas/internal/tablestore"
)

// Event is the write request.
type Event struct {
	Name *string `json:"name"`
}

// Handler inserts one row into the subsystem table.
type Handler struct {
	Store *tablestore.Store
}

// Handle inserts event.Name. A request without a name is rejected before any I/O.
func (h *Handler) Handle(ctx context.Context, event Event) (apiresponse.Response, error) {
	if event.Name == nil {
		h.Store.Log().Warn("request without name")
		return apiresponse.BadRequest("Missing name"), nil
	}

	err := h.Store.Run(ctx, func(ctx context.Context, s *tablestore.Session) error {
		return s.Insert(ctx, *event.Name)
	})
	if err != nil {
		return tablestore.FailureResponse(err), nil
	}

	h.Store.Log().Info("inserted data", "table", h.Store.Table)
	return apiresponse.OK("Successfully inserted data"), nil
}

func main() {
	store, err := tablestore.NewStoreFromEnv(context.Background(), "lambda-write")
	if err != nil {
		log.Fatalf("write handler setup: %v", err)
	}
	lambda.Start((&Handler{Store: store}).Handle)
}
