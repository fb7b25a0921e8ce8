//go:build !unix

package netutil

import (
	"errors"
	"syscall"
)

// address reuse is left to the platform default
var reuseAddrControl func(network, address string, c syscall.RawConn) error

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
