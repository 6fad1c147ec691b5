package outbox

import (
	"context"

	"github.com/md-rashed-zaman/clinicsched/libs/db"
)

// PoolSource adapts a Repository and its pool to Source.
type PoolSource struct {
	*Repository
}

func NewPoolSource(pool *db.Pool) PoolSource {
	return PoolSource{Repository: NewRepository(pool)}
}

func (s PoolSource) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.pool.InTx(ctx, fn)
}
