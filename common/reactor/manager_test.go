package reactor

import (
	"math/rand"
	"syscall"
	"testing"
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/poll"

	"github.com/stretchr/testify/require"
)

type fakePoller struct {
	registered map[int]struct{}
	limit      int
	script     []func(events *poll.EventSet)
	waitErr    error
	failFD     int
}

func newFakePoller(limit int) *fakePoller {
	return &fakePoller{registered: make(map[int]struct{}), limit: limit, failFD: -1}
}

func (p *fakePoller) Register(fd int) error {
	if fd == p.failFD {
		return syscall.EPERM
	}
	if _, loaded := p.registered[fd]; loaded {
		return poll.ErrRegistered
	}
	p.registered[fd] = struct{}{}
	return nil
}

func (p *fakePoller) Unregister(fd int) error {
	if _, loaded := p.registered[fd]; !loaded {
		return poll.ErrNotRegistered
	}
	delete(p.registered, fd)
	return nil
}

func (p *fakePoller) Wait(timeout time.Duration, events *poll.EventSet) (int, error) {
	events.Reset()
	if p.waitErr != nil {
		return 0, p.waitErr
	}
	if len(p.script) == 0 {
		return 0, nil
	}
	step := p.script[0]
	p.script = p.script[1:]
	step(events)
	return events.Len(), nil
}

func (p *fakePoller) Count() int {
	return len(p.registered)
}

func (p *fakePoller) Backend() poll.Backend {
	return "fake"
}

func (p *fakePoller) Close() error {
	return nil
}

type recordConn struct {
	fd       int
	trace    *[]string
	recvErr  error
	errors   []error
	accept   bool
	updaters int
}

func (c *recordConn) FD() int {
	return c.fd
}

func (c *recordConn) OnRecv(available int) error {
	*c.trace = append(*c.trace, "recv")
	return c.recvErr
}

func (c *recordConn) OnSend(available int) error {
	*c.trace = append(*c.trace, "send")
	return nil
}

func (c *recordConn) OnError(err error) {
	*c.trace = append(*c.trace, "error")
	c.errors = append(c.errors, err)
}

type updaterConn struct {
	recordConn
}

func (c *updaterConn) OnUpdate() bool {
	c.updaters++
	return c.accept
}

func newTestManager(t *testing.T, limit int) (*Manager, *fakePoller) {
	poller := newFakePoller(limit)
	manager, err := NewManager(Options{MaxConnections: limit, Poller: poller})
	require.NoError(t, err)
	return manager, poller
}

func requireConsistent(t *testing.T, manager *Manager, poller *fakePoller) {
	require.Equal(t, manager.Count(), poller.Count())
	for fd := range manager.connections {
		_, registered := poller.registered[fd]
		require.True(t, registered, "fd %d joined but not registered", fd)
	}
}

func TestJoinUnjoinMembership(t *testing.T) {
	manager, poller := newTestManager(t, 8)
	var trace []string
	conns := make([]*recordConn, 12)
	for i := range conns {
		conns[i] = &recordConn{fd: i + 3, trace: &trace}
	}
	random := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		conn := conns[random.Intn(len(conns))]
		if random.Intn(2) == 0 {
			err := manager.Join(conn)
			if err != nil {
				require.True(t, E.IsMulti(err, ErrJoined, ErrFull), err)
			}
		} else {
			err := manager.Unjoin(conn)
			if err != nil {
				require.ErrorIs(t, err, ErrNotJoined)
			}
		}
		requireConsistent(t, manager, poller)
		require.LessOrEqual(t, manager.Count(), 8)
	}
}

func TestJoinErrors(t *testing.T) {
	manager, poller := newTestManager(t, 1)
	var trace []string
	first := &recordConn{fd: 3, trace: &trace}
	require.NoError(t, manager.Join(first))
	require.ErrorIs(t, manager.Join(first), ErrJoined)
	require.ErrorIs(t, manager.Join(&recordConn{fd: 4, trace: &trace}), ErrFull)
	require.ErrorIs(t, manager.Join(nil), ErrInvalidConn)
	require.ErrorIs(t, manager.Join(&recordConn{fd: -1, trace: &trace}), ErrInvalidConn)
	require.ErrorIs(t, manager.Unjoin(&recordConn{fd: 5, trace: &trace}), ErrNotJoined)

	require.NoError(t, manager.Unjoin(first))
	poller.failFD = 6
	require.ErrorIs(t, manager.Join(&recordConn{fd: 6, trace: &trace}), syscall.EPERM)
	require.Zero(t, manager.Count())
	requireConsistent(t, manager, poller)

	second := &recordConn{fd: 7, trace: &trace}
	third := &recordConn{fd: 8, trace: &trace}
	require.Equal(t, 1, manager.JoinAll(second, third))
	require.Equal(t, 1, manager.UnjoinAll(second, third))
}

func TestUpdateDispatchOrder(t *testing.T) {
	manager, poller := newTestManager(t, 4)
	var trace []string
	errored := &recordConn{fd: 5, trace: &trace}
	require.NoError(t, manager.Join(errored))
	require.NoError(t, manager.Join(&recordConn{fd: 4, trace: &trace}))
	require.NoError(t, manager.Join(&recordConn{fd: 3, trace: &trace}))
	poller.script = append(poller.script, func(events *poll.EventSet) {
		events.AddError(5, syscall.ECONNRESET)
		events.AddSend(4, 0)
		events.AddRecv(3, 10)
	})
	n, err := manager.Update(time.Second)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"recv", "send", "error"}, trace)
	require.Equal(t, []error{syscall.ECONNRESET}, errored.errors)
	require.Equal(t, []Conn{errored}, manager.ErrorSet())
}

func TestErrorSetTwoCycleDrain(t *testing.T) {
	manager, poller := newTestManager(t, 4)
	var trace []string
	conn := &recordConn{fd: 3, trace: &trace}
	other := &recordConn{fd: 4, trace: &trace}
	require.NoError(t, manager.Join(conn))
	require.NoError(t, manager.Join(other))
	poller.script = append(poller.script, func(events *poll.EventSet) {
		events.AddError(3, syscall.EPIPE)
	})

	_, err := manager.Update(time.Second)
	require.NoError(t, err)
	require.Equal(t, []Conn{conn}, manager.ErrorSet())
	_, stillJoined := manager.Lookup(3)
	require.True(t, stillJoined, "reaped only by the next cycle")
	requireConsistent(t, manager, poller)

	n, err := manager.Update(time.Second)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, manager.ErrorSet())
	_, stillJoined = manager.Lookup(3)
	require.False(t, stillJoined)
	_, otherJoined := manager.Lookup(4)
	require.True(t, otherJoined)
	requireConsistent(t, manager, poller)
}

func TestErrorSetAfterCallerUnjoin(t *testing.T) {
	manager, poller := newTestManager(t, 4)
	var trace []string
	conn := &recordConn{fd: 3, trace: &trace}
	require.NoError(t, manager.Join(conn))
	poller.script = append(poller.script, func(events *poll.EventSet) {
		events.AddError(3, syscall.EPIPE)
	})
	_, err := manager.Update(time.Second)
	require.NoError(t, err)
	for _, failed := range manager.ErrorSet() {
		require.NoError(t, manager.Unjoin(failed))
	}
	_, err = manager.Update(time.Second)
	require.NoError(t, err)
	require.Zero(t, manager.Count())
	requireConsistent(t, manager, poller)
}

func TestErrorSetDescriptorReuse(t *testing.T) {
	manager, poller := newTestManager(t, 4)
	var trace []string
	first := &recordConn{fd: 3, trace: &trace}
	require.NoError(t, manager.Join(first))
	poller.script = append(poller.script, func(events *poll.EventSet) {
		events.AddError(3, syscall.ECONNRESET)
	})
	_, err := manager.Update(time.Second)
	require.NoError(t, err)
	for _, failed := range manager.ErrorSet() {
		require.NoError(t, manager.Unjoin(failed))
	}

	second := &recordConn{fd: 3, trace: &trace}
	require.NoError(t, manager.Join(second))
	poller.script = append(poller.script, func(events *poll.EventSet) {
		events.AddRecv(3, 4)
	})
	n, err := manager.Update(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	joined, loaded := manager.Lookup(3)
	require.True(t, loaded)
	require.Same(t, second, joined)
	require.Empty(t, manager.ErrorSet())
	require.Equal(t, []string{"error", "recv"}, trace)
	requireConsistent(t, manager, poller)

	_, err = manager.Update(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, manager.Count())
}

func TestHandlerFailureStaged(t *testing.T) {
	manager, poller := newTestManager(t, 4)
	var trace []string
	failing := &recordConn{fd: 3, trace: &trace, recvErr: E.New("peer closed")}
	require.NoError(t, manager.Join(failing))
	require.NoError(t, manager.Join(&recordConn{fd: 4, trace: &trace}))
	poller.script = append(poller.script, func(events *poll.EventSet) {
		events.AddRecv(3, 0)
		events.AddSend(4, 0)
	})
	_, err := manager.Update(time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"recv", "send", "error"}, trace)
	require.Len(t, failing.errors, 1)
	require.EqualError(t, failing.errors[0], "peer closed")
	require.Equal(t, []Conn{failing}, manager.ErrorSet())
}

func TestUpdaterRejected(t *testing.T) {
	manager, _ := newTestManager(t, 4)
	var trace []string
	accepting := &updaterConn{recordConn{fd: 3, trace: &trace, accept: true}}
	rejecting := &updaterConn{recordConn{fd: 4, trace: &trace}}
	require.NoError(t, manager.Join(accepting))
	require.NoError(t, manager.Join(rejecting))
	_, err := manager.Update(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, accepting.updaters)
	require.Equal(t, 1, rejecting.updaters)
	require.Equal(t, []error{ErrUpdateRejected}, rejecting.errors)
	require.Len(t, manager.ErrorSet(), 1)
}

func TestUpdateFatal(t *testing.T) {
	manager, poller := newTestManager(t, 4)
	var trace []string
	require.NoError(t, manager.Join(&recordConn{fd: 3, trace: &trace}))
	poller.waitErr = &poll.FatalError{Op: "epoll_wait", Err: syscall.EBADF}
	_, err := manager.Update(time.Second)
	require.ErrorIs(t, err, poll.ErrFatal)
	require.ErrorIs(t, err, syscall.EBADF)
}

func TestClear(t *testing.T) {
	manager, poller := newTestManager(t, 4)
	var trace []string
	require.Equal(t, 3, manager.JoinAll(
		&recordConn{fd: 3, trace: &trace},
		&recordConn{fd: 4, trace: &trace},
		&recordConn{fd: 5, trace: &trace},
	))
	manager.Clear()
	require.Zero(t, manager.Count())
	requireConsistent(t, manager, poller)
	require.NoError(t, manager.Close())
}
