package main

import (
	"context"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/datawire/dlib/dlog"

	"github.com/utpio/utp/pkg/config"
	"github.com/utpio/utp/pkg/transport"
	"github.com/utpio/utp/pkg/utp"
)

func sendCommand(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "send <file>",
		Short: "Send a file to the server as one message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := setup(cmd, *cfgFile)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return send(ctx, cfg, data)
		},
	}
}

func send(ctx context.Context, cfg *config.Config, data []byte) error {
	raddr, err := net.ResolveUDPAddr("udp", cfg.ServerAddress)
	if err != nil {
		return err
	}
	conn := utp.NewConn(transport.NewUDP(), rand.NewSource(time.Now().UnixNano()))
	defer func() {
		_ = conn.Close(ctx)
	}()
	if err := conn.Connect(ctx, raddr); err != nil {
		return err
	}
	if err := conn.Send(ctx, data); err != nil {
		return err
	}
	if err := conn.Shutdown(ctx, utp.Initiator); err != nil {
		return err
	}
	dlog.Infof(ctx, "sent %d bytes: %s", len(data), conn.Stats())
	return nil
}
