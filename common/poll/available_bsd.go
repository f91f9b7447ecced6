//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package poll

import "golang.org/x/sys/unix"

func availableBytes(fd int) int {
	available, err := unix.IoctlGetInt(fd, unix.FIONREAD)
	if err != nil {
		return 0
	}
	return available
}
