//go:build !cgo

package scanner

import (
	"context"
)

// Available reports whether scanning is available in this build.
func Available() bool {
	return false
}

func (s *Scanner) scanSource(ctx context.Context, path string, src []byte, root CrateRoot, mods []string) (fileScan, error) {
	return fileScan{}, ErrNoCGO
}
