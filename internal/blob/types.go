// Package blob re-exports core blob abstractions and opens a configured driver.
package blob

import (
	"fieldledger/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the AWS S3 driver.
	DriverS3 = core.DriverS3
	// DriverMinIO is the MinIO driver.
	DriverMinIO = core.DriverMinIO
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrUnsupported indicates an operation isn't supported by a driver.
	ErrUnsupported = core.ErrUnsupported
	// ErrExists is returned by Put when the key is taken.
	ErrExists = core.ErrExists
	// ErrNotFound is returned for missing keys.
	ErrNotFound = core.ErrNotFound
)
