package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects a Store from CANVASS_BLOB_DRIVER. An empty or unset
// variable selects the filesystem driver.
func Open(ctx context.Context) (Store, error) {
	driver := Driver(os.Getenv("CANVASS_BLOB_DRIVER"))
	switch driver {
	case "", DriverFilesystem:
		return NewFilesystem(os.Getenv("CANVASS_BLOB_FS_ROOT"))
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3FromEnv(ctx)
	default:
		return nil, fmt.Errorf("blob: unknown driver %q", driver)
	}
}
