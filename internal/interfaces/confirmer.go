package interfaces

import "context"

// Confirmer asks a human (or a policy) to approve an action before it runs.
type Confirmer interface {
	Confirm(ctx context.Context, summary string) (bool, error)
}
