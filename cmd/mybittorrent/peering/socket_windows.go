//go:build windows

package peering

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// setReceiveBuffer sets SO_RCVBUF on the socket before it connects.
func setReceiveBuffer(c syscall.RawConn, size int) error {
	var setSockOptErr error
	err := c.Control(func(fd uintptr) {
		setSockOptErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_RCVBUF, size)
	})
	if err != nil {
		return err
	}
	return setSockOptErr
}
