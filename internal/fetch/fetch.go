// Package fetch pages through one remote collection and yields its raw items lazily.
package fetch

import (
	"context"
	"iter"
)

// Request describes one page request. Offset advances by the page size on every
// iteration; Cursor carries the previous page's NextCursor for cursor-paged APIs.
type Request struct {
	Offset int
	Limit  int
	Cursor string
}

// Page is one decoded page of raw items.
type Page[T any] struct {
	Items      []T
	NextCursor string
	// Last is set when the remote API says no further pages exist.
	Last bool
}

type PageFunc[T any] func(ctx context.Context, req Request) (Page[T], error)

type Options struct {
	PageSize int
	// ItemCap stops the fetch once this many items were yielded. Zero means no cap.
	ItemCap int
}

const DefaultPageSize = 100

// FetchAll yields every item of the collection in request order. It stops when the
// item cap is reached, then when a page comes back shorter than the page size, then
// when the page reports itself as last. A failing page yields its error once and
// ends the sequence; pages are never retried. The context is checked before every
// page so a cancelled run stops at a page boundary.
func FetchAll[T any](ctx context.Context, fn PageFunc[T], opts Options) iter.Seq2[T, error] {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return func(yield func(T, error) bool) {
		var zero T
		req := Request{Offset: 0, Limit: pageSize}
		fetched := 0

		for {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}

			page, err := fn(ctx, req)
			if err != nil {
				yield(zero, err)
				return
			}

			for _, item := range page.Items {
				if capReached(opts.ItemCap, fetched) {
					return
				}
				if !yield(item, nil) {
					return
				}
				fetched++
			}

			switch {
			case capReached(opts.ItemCap, fetched):
				return
			case len(page.Items) < pageSize:
				return
			case page.Last:
				return
			}

			req.Offset += pageSize
			req.Cursor = page.NextCursor
		}
	}
}

func capReached(itemCap, fetched int) bool {
	return itemCap > 0 && fetched >= itemCap
}
