package blob

import (
	"context"

	infraMinIO "fieldledger/internal/infra/blob/minio"
)

// MinIOConfig re-exports the infra MinIO configuration type.
type MinIOConfig = infraMinIO.Config

// NewMinIO constructs a MinIO-backed blob.Store.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (Store, error) {
	return infraMinIO.New(ctx, cfg)
}
