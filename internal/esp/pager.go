package esp

import (
	"context"
	"errors"
)

// PageFunc fetches the page identified by token ("" for the first page) and
// returns its events and the token of the next page ("" when the provider
// signals no continuation).
type PageFunc func(ctx context.Context, token string) (events []RawEvent, next string, err error)

// WalkPages requests pages strictly in sequence and forwards each non-empty
// page to handler. It returns when a page is empty, when there is no next
// token, or when handler returns ErrStopPaging. A failed page request aborts
// the walk with a TransportError; pages already handled are not revisited.
// Context cancellation is only observed between pages.
func WalkPages(ctx context.Context, provider string, fetch PageFunc, handler BatchHandler) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		events, next, err := fetch(ctx, token)
		if err != nil {
			return NewTransportError(provider, OpFetch, err)
		}
		if len(events) == 0 {
			return nil
		}

		if err := handler(ctx, events); err != nil {
			if errors.Is(err, ErrStopPaging) {
				return nil
			}
			return err
		}

		if next == "" || next == token {
			return nil
		}
		token = next
	}
}
