package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dhttp"
	"github.com/datawire/dlib/dlog"

	"github.com/utpio/utp/pkg/config"
	"github.com/utpio/utp/pkg/stats"
	"github.com/utpio/utp/pkg/transport"
	"github.com/utpio/utp/pkg/utp"
)

func serveCommand(cfgFile *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and store what the peers send",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := setup(cmd, *cfgFile)
			if err != nil {
				return err
			}
			return serve(ctx, cfg, out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "file prefix for received messages; empty discards them")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, out string) error {
	laddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddress)
	if err != nil {
		return err
	}
	collector := stats.NewCollector("utp", []string{"peer"})

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		SoftShutdownTimeout:  2 * time.Second,
		EnableSignalHandling: true,
		ShutdownOnNonError:   true,
	})

	if cfg.MetricsAddress != "" {
		g.Go("metrics", func(ctx context.Context) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collector)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			sc := &dhttp.ServerConfig{Handler: mux}
			dlog.Infof(ctx, "metrics on %s", cfg.MetricsAddress)
			return sc.ListenAndServe(ctx, cfg.MetricsAddress)
		})
	}

	g.Go("listener", func(ctx context.Context) error {
		defer func() {
			if perr := derror.PanicToError(recover()); perr != nil {
				dlog.Error(ctx, perr)
			}
		}()
		dlog.Infof(ctx, "listening on %s", laddr)
		for ctx.Err() == nil {
			if err := serveOne(ctx, laddr, out, collector); err != nil {
				dlog.Errorf(ctx, "connection failed: %v", err)
			}
		}
		return nil
	})
	return g.Wait()
}

// serveOne accepts a single connection, receives messages until the peer
// closes, and logs the connection counters.
func serveOne(ctx context.Context, laddr *net.UDPAddr, out string, collector *stats.Collector) error {
	conn := utp.NewConn(transport.NewUDP(), rand.NewSource(time.Now().UnixNano()))
	if err := conn.Bind(laddr); err != nil {
		return err
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	peer, err := conn.Accept(ctx)
	if err != nil {
		return err
	}
	session := uuid.New().String()
	dlog.Infof(ctx, "session %s from %s", session, peer)

	collector.Add(session, []string{peer.String()}, conn.Stats)
	defer collector.Remove(session)

	var sink io.Writer = io.Discard
	if out != "" {
		f, err := os.Create(fmt.Sprintf("%s-%.8s", out, session))
		if err != nil {
			return err
		}
		defer f.Close()
		sink = f
	}

	buf := make([]byte, 1<<20)
	for {
		n, err := conn.Recv(ctx, buf)
		switch {
		case err == io.EOF:
			dlog.Infof(ctx, "session %s done: %s", session, conn.Stats())
			return nil
		case err != nil:
			return err
		case n > 0:
			if _, err := sink.Write(buf[:n]); err != nil {
				return err
			}
		}
	}
}
