package blob

import (
	"context"

	infraS3 "agrorec/internal/infra/blob/s3"
)

// S3Config re-exports the S3 backend configuration.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3 returns an S3 Store backed by an in-process fake bucket, for
// tests in other packages.
func NewMockS3(ctx context.Context) (Store, error) {
	return infraS3.NewMock(ctx)
}
