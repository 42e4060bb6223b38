package driven

import (
	"context"
	"errors"
)

// ErrPermanentHookFailure marks a registrar error that repeating the call
// cannot fix, such as a malformed repository URL or a rejected token.
var ErrPermanentHookFailure = errors.New("permanent webhook failure")

// HookRegistrar defines the driven port for the version-control host's
// webhook API. Both calls must be idempotent: registering an already
// registered repository and deregistering an unregistered one succeed.
// Errors that can never succeed on retry wrap ErrPermanentHookFailure.
type HookRegistrar interface {
	Register(ctx context.Context, htmlURL, token string) error
	Deregister(ctx context.Context, htmlURL, token string) error
}
