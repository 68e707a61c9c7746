package botapi

import "context"

// Run consumes updates until the stream closes or the context is cancelled.
// Updates are handled sequentially; every failure is contained to the single
// update that caused it.
func (h *Handler) Run(ctx context.Context, updates <-chan Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			h.HandleUpdate(ctx, u)
		}
	}
}
