package poll

// registry tracks the live registrations of a backend.
type registry struct {
	limit  int
	fds    map[int]struct{}
	closed bool
}

func newRegistry(limit int) registry {
	return registry{
		limit: limit,
		fds:   make(map[int]struct{}, limit),
	}
}

func (r *registry) check(fd int) error {
	if r.closed {
		return ErrClosed
	}
	if fd < 0 {
		return ErrNotRegistered
	}
	if _, loaded := r.fds[fd]; loaded {
		return ErrRegistered
	}
	if len(r.fds) >= r.limit {
		return ErrFull
	}
	return nil
}

func (r *registry) add(fd int) {
	r.fds[fd] = struct{}{}
}

func (r *registry) has(fd int) bool {
	_, loaded := r.fds[fd]
	return loaded
}

func (r *registry) remove(fd int) error {
	if r.closed {
		return ErrClosed
	}
	if _, loaded := r.fds[fd]; !loaded {
		return ErrNotRegistered
	}
	delete(r.fds, fd)
	return nil
}

func (r *registry) Count() int {
	return len(r.fds)
}

func (r *registry) close() bool {
	if r.closed {
		return false
	}
	r.closed = true
	for fd := range r.fds {
		delete(r.fds, fd)
	}
	return true
}
