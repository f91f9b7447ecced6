//go:build windows

package socket

import "golang.org/x/sys/windows"

var closeFunc = func(fd int) error {
	return windows.Closesocket(windows.Handle(fd))
}
