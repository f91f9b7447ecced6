//go:build unix

package main

import (
	"context"
	"io"
	"net/netip"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sagernet/sing-reactor"
	"github.com/sagernet/sing-reactor/common"
	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/log"
	M "github.com/sagernet/sing-reactor/common/metadata"
	"github.com/sagernet/sing-reactor/protocol/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type flags struct {
	Data    string
	Address string
	Timeout time.Duration
	Verbose bool
}

func main() {
	f := new(flags)

	command := &cobra.Command{
		Use:     "http-get <url>",
		Short:   "fetch a url over a non-blocking http stream",
		Version: sing.VersionStr,
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			err := run(f, args[0])
			if E.IsTimeout(err) {
				logrus.Fatal("request timed out after ", f.Timeout)
			} else if err != nil {
				logrus.Fatal(err)
			}
		},
	}

	command.Flags().StringVarP(&f.Data, "data", "d", "", "Send a form POST with this body.")
	command.Flags().StringVarP(&f.Address, "address", "a", "", "Connect to this IP instead of the url host.")
	command.Flags().DurationVarP(&f.Timeout, "timeout", "t", 30*time.Second, "Give up after this long.")
	command.Flags().BoolVarP(&f.Verbose, "verbose", "v", false, "Enable verbose mode.")

	err := command.Execute()
	if err != nil {
		logrus.Fatal(err)
	}
}

func run(f *flags, rawURL string) error {
	log.SetVerbose(f.Verbose)
	requestURL, err := url.Parse(rawURL)
	if err != nil {
		return E.Cause(err, "parse url")
	}
	if requestURL.Scheme != "http" {
		return E.New("unsupported scheme: ", requestURL.Scheme)
	}
	addr, err := resolve(requestURL, f.Address)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if f.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	stream := http.NewStream()
	defer stream.Close()
	if f.Data != "" {
		err = stream.Post(ctx, addr, requestURL.Host, requestURL.RequestURI(), []byte(f.Data))
	} else {
		err = stream.Open(ctx, addr, requestURL.Host, requestURL.RequestURI())
	}
	if err != nil {
		return err
	}

	buffer := make([]byte, 32*1024)
	for {
		if common.Done(ctx) {
			return ctx.Err()
		}
		n, err := stream.Read(buffer)
		if n > 0 {
			_, writeErr := os.Stdout.Write(buffer[:n])
			if writeErr != nil {
				return writeErr
			}
		}
		if err == io.EOF {
			logrus.Debug("received ", stream.Position(), " bytes")
			return nil
		} else if err != nil {
			return err
		}
		if n == 0 {
			err = stream.Wait(100 * time.Millisecond)
			if err != nil {
				return err
			}
		}
	}
}

func resolve(requestURL *url.URL, address string) (netip.AddrPort, error) {
	port := M.PortFromScheme(requestURL.Scheme)
	if rawPort := requestURL.Port(); rawPort != "" {
		parsed, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil {
			return netip.AddrPort{}, E.Cause(err, "parse port")
		}
		port = uint16(parsed)
	}
	host := requestURL.Hostname()
	if address != "" {
		host = address
	}
	destination := M.ParseSocksaddrHostPort(host, port)
	if !destination.IsIP() {
		return netip.AddrPort{}, E.New("host ", host, " is not an IP address, use --address")
	}
	return destination.AddrPort(), nil
}
