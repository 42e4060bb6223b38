package driven

import (
	"context"

	"github.com/ericfisherdev/reposcan/internal/domain/model"
)

// HookQueue accepts webhook tasks for asynchronous processing. Enqueue returns
// once the task is accepted, not once it has run.
type HookQueue interface {
	Enqueue(ctx context.Context, task model.HookTask) error
}
