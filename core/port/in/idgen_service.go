package in

import (
	"context"

	"idgen_server/core/domain"
)

// IDService issues and inspects ids.
type IDService interface {
	Next(ctx context.Context, nodeID int64) (domain.IssuedID, error)
	Batch(ctx context.Context, nodeID int64, count int) (*domain.IDBatch, error)
	Decode(id, nodeID int64) (*domain.DecodedID, error)

	EncodeOpaque(id int64) (string, error)
	DecodeOpaque(token string) (int64, error)

	Generators() []domain.GeneratorInfo
	RemoveGenerator(ctx context.Context, nodeID int64) (bool, error)
	// Fleet lists generators registered by every instance sharing the
	// directory. Without a directory it returns the local generators.
	Fleet(ctx context.Context) ([]domain.GeneratorInfo, error)

	DefaultNodeID() int64
	MaxBatchSize() int
}
