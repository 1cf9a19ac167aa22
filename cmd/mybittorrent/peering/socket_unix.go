//go:build !windows

package peering

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReceiveBuffer sets SO_RCVBUF on the socket before it connects, so the
// window scale negotiated in the SYN accounts for it.
func setReceiveBuffer(c syscall.RawConn, size int) error {
	var setSockOptErr error
	err := c.Control(func(fd uintptr) {
		setSockOptErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size)
	})
	if err != nil {
		return err
	}
	return setSockOptErr
}
