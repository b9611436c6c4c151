package lifecycle

import (
	"context"

	"github.com/IntrovertedFL/runtipi/pkg/policy"
)

// Guard authorizes a guarded operation before any state is written.
// *policy.Engine satisfies it; a nil Guard allows everything.
type Guard interface {
	EvaluateOperation(ctx context.Context, input *policy.Input) (*policy.Result, error)
}

// ReleaseSource resolves the latest published platform version.
// *release.Client satisfies it.
type ReleaseSource interface {
	LatestVersion(ctx context.Context) (string, error)
}
