package poll

import "golang.org/x/sys/unix"

func availableBytes(fd int) int {
	available, err := unix.IoctlGetInt(fd, unix.TIOCINQ)
	if err != nil {
		return 0
	}
	return available
}
