package poll

import "syscall"

type Kind uint8

const (
	KindRecv Kind = iota + 1
	KindSend
	KindError
)

// Event describes one ready descriptor. Size is the number of bytes readable
// (recv) or writable (send) when the backend reports it, otherwise 0.
// Errno is set for error events only.
type Event struct {
	FD    int
	Size  int
	Errno syscall.Errno
}

func (e Event) Equal(other Event) bool {
	return e.FD == other.FD
}

func (e Event) Err() error {
	if e.Errno == 0 {
		return nil
	}
	return e.Errno
}

// EventSet holds the classified result of one Wait. Every descriptor appears
// in at most one list; error wins over recv, recv wins over send.
type EventSet struct {
	Recv  []Event
	Send  []Event
	Error []Event
	seen  map[int]Kind
}

func NewEventSet(capacity int) *EventSet {
	return &EventSet{
		Recv:  make([]Event, 0, capacity),
		Send:  make([]Event, 0, capacity),
		Error: make([]Event, 0, capacity),
		seen:  make(map[int]Kind, capacity),
	}
}

func (s *EventSet) Reset() {
	s.Recv = s.Recv[:0]
	s.Send = s.Send[:0]
	s.Error = s.Error[:0]
	if s.seen == nil {
		s.seen = make(map[int]Kind)
	} else {
		for fd := range s.seen {
			delete(s.seen, fd)
		}
	}
}

func (s *EventSet) Len() int {
	return len(s.Recv) + len(s.Send) + len(s.Error)
}

func (s *EventSet) Kind(fd int) Kind {
	return s.seen[fd]
}

func (s *EventSet) AddRecv(fd int, size int) {
	switch s.seen[fd] {
	case KindRecv, KindError:
		return
	case KindSend:
		s.Send = removeEvent(s.Send, fd)
	}
	s.seen[fd] = KindRecv
	s.Recv = append(s.Recv, Event{FD: fd, Size: size})
}

func (s *EventSet) AddSend(fd int, size int) {
	if s.seen[fd] != 0 {
		return
	}
	s.seen[fd] = KindSend
	s.Send = append(s.Send, Event{FD: fd, Size: size})
}

func (s *EventSet) AddError(fd int, errno syscall.Errno) {
	switch s.seen[fd] {
	case KindError:
		return
	case KindRecv:
		s.Recv = removeEvent(s.Recv, fd)
	case KindSend:
		s.Send = removeEvent(s.Send, fd)
	}
	if errno == 0 {
		errno = syscall.ECONNRESET
	}
	s.seen[fd] = KindError
	s.Error = append(s.Error, Event{FD: fd, Errno: errno})
}

func removeEvent(events []Event, fd int) []Event {
	for i := range events {
		if events[i].FD == fd {
			return append(events[:i], events[i+1:]...)
		}
	}
	return events
}
