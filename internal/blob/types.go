// Package blob is the entry point to object storage. Callers depend on the
// Store interface; the concrete backends live under internal/infra/blob.
package blob

import "agrorec/internal/blob/contract"

type (
	// Driver identifies a blob backend driver.
	Driver = contract.Driver
	// PutOptions configures a blob write.
	PutOptions = contract.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = contract.SignedURLOptions
	// Info describes stored blob metadata.
	Info = contract.Info
	// Store is the interface for blob storage backends.
	Store = contract.Store
)

const (
	DriverFilesystem = contract.DriverFilesystem
	DriverS3         = contract.DriverS3
	DriverMemory     = contract.DriverMemory
)

var (
	ErrUnsupported = contract.ErrUnsupported
	ErrExists      = contract.ErrExists
	ErrNotFound    = contract.ErrNotFound
)
