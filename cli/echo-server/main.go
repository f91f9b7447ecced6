//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sagernet/sing-reactor"
	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/log"
	"github.com/sagernet/sing-reactor/common/poll"
	"github.com/sagernet/sing-reactor/common/reactor"
	"github.com/sagernet/sing-reactor/common/socket"
	"github.com/sagernet/sing-reactor/conf"
	"github.com/sagernet/sing-reactor/transport/tcp"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type flags struct {
	ConfigFile     string
	Listen         string
	MaxConnections int
	Backend        string
	EdgeTriggered  bool
	AcceptTimeout  time.Duration
	PollTimeout    time.Duration
	OverloadWait   time.Duration
	RecvTimeout    time.Duration
	Verbose        bool
}

func main() {
	f := new(flags)

	command := &cobra.Command{
		Use:     "echo-server",
		Short:   "reactor driven tcp echo server",
		Version: sing.VersionStr,
		Run: func(cmd *cobra.Command, args []string) {
			run(cmd, f)
		},
	}

	command.Flags().StringVarP(&f.ConfigFile, "config", "c", "", "Use a configuration file.")
	command.Flags().StringVarP(&f.Listen, "listen", "l", "127.0.0.1:7000", "Set the listen address.")
	command.Flags().IntVar(&f.MaxConnections, "max-connections", reactor.DefaultMaxConnections, "Set the connection limit.")
	command.Flags().StringVarP(&f.Backend, "backend", "b", string(poll.Native()), "Set the poll backend.")
	command.Flags().BoolVar(&f.EdgeTriggered, "edge-triggered", false, "Use edge triggered notification.")
	command.Flags().DurationVar(&f.AcceptTimeout, "accept-timeout", 10*time.Millisecond, "Set the accept wait.")
	command.Flags().DurationVar(&f.PollTimeout, "poll-timeout", tcp.DefaultPollTimeout, "Set the poll wait.")
	command.Flags().DurationVar(&f.OverloadWait, "overload-wait", tcp.DefaultOverloadWait, "Set the pause after running out of descriptors.")
	command.Flags().DurationVar(&f.RecvTimeout, "recv-timeout", 0, "Drop connections idle for longer than this.")
	command.Flags().BoolVarP(&f.Verbose, "verbose", "v", false, "Enable verbose mode.")

	err := command.Execute()
	if err != nil {
		logrus.Fatal(err)
	}
}

func run(cmd *cobra.Command, f *flags) {
	log.SetVerbose(f.Verbose)
	config, err := loadConfig(cmd, f)
	if err != nil {
		logrus.Fatal(err)
	}
	listen, _ := config.ListenAddr()
	listener, err := tcp.Listen(listen,
		tcp.WithTimeout(config.AcceptTimeout.Duration()),
		tcp.WithOverloadWait(config.OverloadWait.Duration()),
	)
	if err != nil {
		logrus.Fatal(err)
	}
	defer listener.Close()
	manager, err := reactor.NewManager(config.ReactorOptions())
	if err != nil {
		logrus.Fatal(err)
	}
	defer manager.Close()
	logrus.Info("echo server started at ", listener.Addr(), " using ", manager.Backend())

	server := tcp.NewServer(listener, manager, &handler{
		logger:      log.NewLogger("echo"),
		recvTimeout: config.RecvTimeout.Duration(),
	})
	if config.PollTimeout > 0 {
		server.SetPollTimeout(config.PollTimeout.Duration())
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err = server.Serve(ctx)
	if err != nil {
		logrus.Fatal(err)
	}
}

func loadConfig(cmd *cobra.Command, f *flags) (*conf.Config, error) {
	if f.ConfigFile != "" {
		config, err := conf.Load(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		if config.OverloadWait == 0 {
			config.OverloadWait = conf.Duration(tcp.DefaultOverloadWait)
		}
		return config, nil
	}
	config := &conf.Config{
		Listen:         f.Listen,
		MaxConnections: f.MaxConnections,
		Backend:        poll.Backend(f.Backend),
		EdgeTriggered:  f.EdgeTriggered,
		AcceptTimeout:  conf.Duration(f.AcceptTimeout),
		PollTimeout:    conf.Duration(f.PollTimeout),
		OverloadWait:   conf.Duration(f.OverloadWait),
		RecvTimeout:    conf.Duration(f.RecvTimeout),
	}
	return config, config.Validate()
}

type handler struct {
	logger      logrus.FieldLogger
	recvTimeout time.Duration
}

func (h *handler) NewConnection(conn *tcp.Conn) (reactor.Conn, error) {
	h.logger.Info("inbound connection from ", conn.Peer())
	conn.SetRecvTimeout(h.recvTimeout)
	return &echoConn{conn: conn, buffer: make([]byte, 16*1024)}, nil
}

func (h *handler) HandleError(err error) {
	if E.IsClosedOrCanceled(err) {
		h.logger.Debug(err)
		return
	}
	h.logger.Error(err)
}

type echoConn struct {
	conn   *tcp.Conn
	buffer []byte
}

func (c *echoConn) FD() int {
	return c.conn.FD()
}

func (c *echoConn) OnRecv(available int) error {
	for {
		n, err := c.conn.Read(c.buffer)
		if err != nil {
			if socket.IsWouldBlock(err) {
				break
			}
			return err
		}
		c.conn.Queue(c.buffer[:n])
	}
	_, err := c.conn.Flush()
	return err
}

func (c *echoConn) OnSend(available int) error {
	_, err := c.conn.Flush()
	return err
}

func (c *echoConn) OnError(err error) {
}

func (c *echoConn) OnUpdate() bool {
	if c.conn.Queued() > 0 {
		_, err := c.conn.Flush()
		if err != nil {
			return false
		}
	}
	return !c.conn.CheckRecvTimeout(time.Now())
}
