// Package paging enumerates offset-paginated remote collections whose total
// may move while the enumeration is running.
package paging

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
)

const DefaultPageSize = 50

var ErrExhausted = errors.New("paging: lister already consumed")

// Page is one response from a collection endpoint.
type Page[T any] struct {
	Items []T
	// Total is the collection size as observed by this request.
	Total int
	// Limit is the page size the provider actually applied; 0 when unknown.
	Limit int
}

// PageFunc fetches up to limit items starting at offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) (Page[T], error)

// Cursor is the enumeration position after the most recent page.
type Cursor struct {
	Offset   int
	PageSize int
	Total    int
}

// Lister walks a collection page by page. It is single-use.
type Lister[T any] struct {
	fetch    PageFunc[T]
	pageSize int
	used     atomic.Bool
	cursor   Cursor
}

// New returns a lister requesting pageSize items per page (DefaultPageSize when <= 0).
func New[T any](fetch PageFunc[T], pageSize int) *Lister[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Lister[T]{fetch: fetch, pageSize: pageSize}
}

// Cursor reports the position reached so far.
func (l *Lister[T]) Cursor() Cursor {
	return l.cursor
}

// All yields every item exactly once when the collection is not mutated
// concurrently. Items deleted mid-walk shrink the total and end the walk
// early; that under-enumeration is not an error. A fetch error is yielded once
// and ends the sequence.
func (l *Lister[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if !l.used.CompareAndSwap(false, true) {
			yield(zero, ErrExhausted)
			return
		}
		l.cursor = Cursor{PageSize: l.pageSize}
		for {
			page, err := l.fetch(ctx, l.cursor.Offset, l.cursor.PageSize)
			if err != nil {
				yield(zero, err)
				return
			}
			l.cursor.Total = page.Total
			if l.cursor.Offset == 0 {
				// adopt the provider's page size so later offsets land on page boundaries
				switch {
				case page.Limit > 0:
					l.cursor.PageSize = page.Limit
				case len(page.Items) > 0 && len(page.Items) < l.cursor.PageSize && len(page.Items) < page.Total:
					l.cursor.PageSize = len(page.Items)
				}
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
			if len(page.Items) == 0 {
				return
			}
			l.cursor.Offset += len(page.Items)
			if l.cursor.Offset >= l.cursor.Total {
				return
			}
		}
	}
}

// Collect drains a fresh lister into a slice.
func Collect[T any](ctx context.Context, fetch PageFunc[T], pageSize int) ([]T, error) {
	var out []T
	for item, err := range New(fetch, pageSize).All(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
