//go:build unix

package tcp

import (
	"context"
	"time"

	"github.com/sagernet/sing-reactor/common"
	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/log"
	"github.com/sagernet/sing-reactor/common/reactor"

	"github.com/sirupsen/logrus"
)

const DefaultPollTimeout = 100 * time.Millisecond

// Handler turns accepted connections into reactor connections and receives
// the error of every connection the reactor drops. A reactor connection that
// implements io.Closer is closed together with its socket.
type Handler interface {
	NewConnection(conn *Conn) (reactor.Conn, error)
	E.Handler
}

type Server struct {
	logger      logrus.FieldLogger
	listener    *AcceptServer
	manager     *reactor.Manager
	handler     Handler
	pollTimeout time.Duration
	conns       map[int]*serverConn
}

type serverConn struct {
	reactor.Conn
	fd   int
	conn *Conn
	err  error
}

func (c *serverConn) FD() int {
	return c.fd
}

func (c *serverConn) OnError(err error) {
	if c.err == nil {
		c.err = err
	}
	c.Conn.OnError(err)
}

type updaterConn struct {
	*serverConn
	updater reactor.Updater
}

func (c *updaterConn) OnUpdate() bool {
	return c.updater.OnUpdate()
}

func NewServer(listener *AcceptServer, manager *reactor.Manager, handler Handler) *Server {
	return &Server{
		logger:      log.NewLogger("server"),
		listener:    listener,
		manager:     manager,
		handler:     handler,
		pollTimeout: DefaultPollTimeout,
		conns:       make(map[int]*serverConn),
	}
}

func (s *Server) SetLogger(logger logrus.FieldLogger) {
	s.logger = logger
}

// SetPollTimeout bounds each reactor wait so that accepts are not starved.
func (s *Server) SetPollTimeout(timeout time.Duration) {
	s.pollTimeout = timeout
}

// Serve runs the accept and dispatch loop on the calling goroutine until
// ctx is done or the listener or poller fails. All connections are closed
// before it returns.
func (s *Server) Serve(ctx context.Context) error {
	defer s.closeAll()
	for {
		if common.Done(ctx) {
			return nil
		}
		err := s.accept()
		if err != nil {
			return err
		}
		_, err = s.manager.Update(s.pollTimeout)
		if err != nil {
			return E.Cause(err, "update reactor")
		}
		s.drain()
	}
}

func (s *Server) accept() error {
	fd, err := s.listener.Accept()
	if err != nil {
		return err
	}
	if fd == 0 {
		return nil
	}
	conn := NewConn(fd, s.listener.Peer())
	err = conn.SetNonblock(true)
	if err != nil {
		conn.Close()
		s.handler.HandleError(E.Cause(err, "prepare ", conn.Peer()))
		return nil
	}
	handlerConn, err := s.handler.NewConnection(conn)
	if err != nil {
		conn.Close()
		s.handler.HandleError(E.Cause(err, "handle ", conn.Peer()))
		return nil
	}
	wrapped := &serverConn{Conn: handlerConn, fd: fd, conn: conn}
	var joined reactor.Conn = wrapped
	if updater, isUpdater := handlerConn.(reactor.Updater); isUpdater {
		joined = &updaterConn{wrapped, updater}
	}
	err = s.manager.Join(joined)
	if err != nil {
		conn.Close()
		s.handler.HandleError(E.Cause(err, "join ", conn.Peer()))
		return nil
	}
	s.conns[fd] = wrapped
	return nil
}

func (s *Server) drain() {
	for _, failed := range s.manager.ErrorSet() {
		fd := failed.FD()
		wrapped, loaded := s.conns[fd]
		if !loaded {
			continue
		}
		err := s.manager.Unjoin(failed)
		if err != nil {
			s.logger.Error(err)
		}
		delete(s.conns, fd)
		peer := wrapped.conn.Peer()
		err = common.Close(wrapped.conn, wrapped.Conn)
		if err != nil {
			s.logger.Debug(err)
		}
		if wrapped.err != nil {
			s.handler.HandleError(E.Cause(wrapped.err, "connection ", peer))
		}
	}
}

func (s *Server) closeAll() {
	s.manager.Clear()
	for fd, wrapped := range s.conns {
		err := common.Close(wrapped.conn, wrapped.Conn)
		if err != nil {
			s.logger.Debug(err)
		}
		delete(s.conns, fd)
	}
}
