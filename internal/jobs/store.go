package jobs

import "context"

// Store persists job records. Create writes a new processing record; Finish
// applies the single terminal transition and returns the stored result.
// Implementations must reject a second Finish with ErrInvalidTransition.
type Store interface {
	Create(ctx context.Context, job Job) error
	Finish(ctx context.Context, id string, outcome Outcome) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	// List returns at most limit jobs, newest first.
	List(ctx context.Context, limit int) ([]Job, error)
}
