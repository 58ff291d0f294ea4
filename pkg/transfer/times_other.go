//go:build !linux && !darwin

package transfer

import (
	"io/fs"
	"time"
)

// accessTime falls back to the modification time where the platform
// stat structure is not inspected.
func accessTime(fi fs.FileInfo) time.Time {
	return fi.ModTime()
}
