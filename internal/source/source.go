// Package source defines the adapter contract every external platform implements and
// the generic resource pipeline (fetch then transform) shared by all of them.
package source

import (
	"context"
	"iter"
	"net/http"
	"time"

	"connector-sync/internal/credentials"
	"connector-sync/internal/fetch"
	"connector-sync/internal/models"
	"connector-sync/internal/transform"
)

// Call carries what a resource needs to talk to the platform during one run.
type Call struct {
	Connection  *models.Connection
	AccessToken string
	HTTPClient  *http.Client
	// ItemCap replaces the resource's own cap when positive.
	ItemCap int
}

// Resource is one entity collection of a source, such as contacts or invoices.
type Resource interface {
	Name() string
	Collection() string
	// Records yields normalized records in fetch order. An error ends the sequence.
	Records(ctx context.Context, call Call) iter.Seq2[models.Record, error]
}

// Adapter isolates everything platform specific: authentication, resource listing
// and field mapping.
type Adapter interface {
	credentials.TokenSource
	Name() models.SourceName
	HTTPClient() *http.Client
	Resources() []Resource
}

// PageRequestFunc fetches one page of raw items of type T.
type PageRequestFunc[T any] func(ctx context.Context, call Call, req fetch.Request) (fetch.Page[T], error)

// ResourceSpec describes a resource in terms of its typed raw payload.
type ResourceSpec[T any] struct {
	Name       string
	Collection string
	PageSize   int
	ItemCap    int
	Fetch      PageRequestFunc[T]
	Transform  transform.Func[T]
}

type resource[T any] struct {
	spec ResourceSpec[T]
	now  func() time.Time
}

// NewResource builds a Resource from a typed spec. Collection defaults to Name.
func NewResource[T any](spec ResourceSpec[T]) Resource {
	if spec.Collection == "" {
		spec.Collection = spec.Name
	}
	return &resource[T]{spec: spec, now: time.Now}
}

func (r *resource[T]) Name() string {
	return r.spec.Name
}

func (r *resource[T]) Collection() string {
	return r.spec.Collection
}

func (r *resource[T]) Records(ctx context.Context, call Call) iter.Seq2[models.Record, error] {
	opts := fetch.Options{PageSize: r.spec.PageSize, ItemCap: r.spec.ItemCap}
	if call.ItemCap > 0 {
		opts.ItemCap = call.ItemCap
	}

	pageFn := func(ctx context.Context, req fetch.Request) (fetch.Page[T], error) {
		return r.spec.Fetch(ctx, call, req)
	}
	organizationID := call.Connection.OrganizationID

	return func(yield func(models.Record, error) bool) {
		for raw, err := range fetch.FetchAll(ctx, pageFn, opts) {
			if err != nil {
				yield(models.Record{}, err)
				return
			}
			if !yield(r.spec.Transform(organizationID, raw, r.now().UTC()), nil) {
				return
			}
		}
	}
}
