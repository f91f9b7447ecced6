package socket

// Handle owns one socket descriptor. The zero value owns nothing.
// A Handle must not be copied after first use; transfer ownership with Move.
type Handle struct {
	noCopy noCopy
	fd     int
	owned  bool
}

func NewHandle(fd int) *Handle {
	if fd < 0 {
		return new(Handle)
	}
	return &Handle{fd: fd, owned: true}
}

func (h *Handle) FD() int {
	if !h.IsValid() {
		return -1
	}
	return h.fd
}

func (h *Handle) IsValid() bool {
	return h != nil && h.owned && h.fd >= 0
}

// Reset closes the owned descriptor and adopts fd. Resetting to the
// descriptor already held is a no-op.
func (h *Handle) Reset(fd int) error {
	if h.IsValid() && h.fd == fd {
		return nil
	}
	err := h.Close()
	if fd >= 0 {
		h.fd = fd
		h.owned = true
	}
	return err
}

// Release gives up ownership without closing and returns the descriptor.
func (h *Handle) Release() int {
	fd := h.FD()
	h.fd = -1
	h.owned = false
	return fd
}

// Move transfers ownership into a new Handle; h becomes invalid.
func (h *Handle) Move() *Handle {
	return NewHandle(h.Release())
}

// Close closes the owned descriptor once. The handle is invalid afterwards
// even if the OS reports an error.
func (h *Handle) Close() error {
	if !h.IsValid() {
		return nil
	}
	fd := h.fd
	h.fd = -1
	h.owned = false
	return closeFunc(fd)
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
