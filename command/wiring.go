package command

import (
	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-pdfbridge/bridge"
	"github.com/goliatone/go-pdfbridge/query"
)

// Generator renders single requests and batches.
type Generator interface {
	DocumentRenderer
	BatchGenerator
}

// RegisterHandlers subscribes the document commands and queries to the
// dispatcher and, when reg is set, registers them together with the batch
// command. Store may be nil; artifact handlers are then left out.
func RegisterHandlers(reg *gcmd.Registry, gen Generator, store bridge.ArtifactStore, opts ...BatchOption) ([]dispatcher.Subscription, error) {
	if gen == nil {
		return nil, errors.New("document generator is required", errors.CategoryValidation).
			WithTextCode("GENERATOR_REQUIRED")
	}

	generate := NewGenerateDocumentHandler(gen, store)
	batch := NewBatchCommand(gen, nil, opts...)

	subscriptions := []dispatcher.Subscription{
		dispatcher.SubscribeCommand(generate),
	}
	handlers := []any{generate, batch}

	if store != nil {
		del := NewDeleteDocumentHandler(store)
		metadata := query.NewDocumentMetadataHandler(store)
		subscriptions = append(subscriptions,
			dispatcher.SubscribeCommand(del),
			dispatcher.SubscribeQuery(metadata),
		)
		handlers = append(handlers, del, metadata)
	}

	if reg != nil {
		for _, handler := range handlers {
			if err := reg.RegisterCommand(handler); err != nil {
				return subscriptions, err
			}
		}
	}

	return subscriptions, nil
}
