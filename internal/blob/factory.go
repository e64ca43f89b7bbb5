package blob

import (
	"context"
	"fmt"
)

// Config selects and configures a driver. Only the section matching Driver is read.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
	MinIO  MinIOConfig
}

// Open builds the store named by cfg.Driver; an empty driver means filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMinIO:
		return NewMinIO(ctx, cfg.MinIO)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
