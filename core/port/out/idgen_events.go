package out

import (
	"context"

	"idgen_server/core/domain"
)

// GeneratorEvents publishes generator lifecycle events.
type GeneratorEvents interface {
	GeneratorCreated(ctx context.Context, info domain.GeneratorInfo)
	GeneratorRemoved(ctx context.Context, nodeID int64)
	ClockRegression(ctx context.Context, nodeID, deltaMs int64, refused bool)
}

// GeneratorDirectory records which instance runs which generator so
// operators can see the fleet.
type GeneratorDirectory interface {
	Save(ctx context.Context, info domain.GeneratorInfo) error
	Delete(ctx context.Context, nodeID int64) error
	List(ctx context.Context) ([]domain.GeneratorInfo, error)
}
