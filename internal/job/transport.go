package job

import (
	"context"

	"github.com/maauso/videogen/internal/provider"
)

// CreateResult is the part of a create response the controller needs.
type CreateResult struct {
	// ID is the provider-assigned job id. Empty means the provider did not
	// return one.
	ID string `json:"id"`
	// Status is the initial status reported by the provider, if any.
	Status string `json:"status,omitempty"`
}

// Transport sends requests to the proxy endpoints of an adapter.
// Implementations must honor ctx cancellation and deadlines.
type Transport interface {
	// Create posts body to the adapter's create endpoint.
	Create(ctx context.Context, a provider.Adapter, body any) (CreateResult, error)

	// Detail fetches the current detail document of a job. A nil result with
	// a nil error means the response body could not be decoded.
	Detail(ctx context.Context, a provider.Adapter, id, token string) (any, error)
}
