package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/datawire/dlib/dlog"

	"github.com/utpio/utp/pkg/config"
	"github.com/utpio/utp/pkg/transport"
	"github.com/utpio/utp/pkg/utp"
)

func generateCommand(cfgFile *string) *cobra.Command {
	var bursts, minSize, maxSize int
	var seed int64
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Send bursts of random traffic to the server",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := setup(cmd, *cfgFile)
			if err != nil {
				return err
			}
			if minSize < 1 || maxSize < minSize {
				return fmt.Errorf("--min must be >= 1 and --max >= --min")
			}
			return generate(ctx, cfg, bursts, minSize, maxSize, seed)
		},
	}
	cmd.Flags().IntVar(&bursts, "bursts", 10, "number of messages to send")
	cmd.Flags().IntVar(&minSize, "min", 64, "smallest message size in bytes")
	cmd.Flags().IntVar(&maxSize, "max", 16384, "largest message size in bytes")
	cmd.Flags().Int64Var(&seed, "seed", 0, "PRNG seed; 0 picks one from the clock")
	return cmd
}

func generate(ctx context.Context, cfg *config.Config, bursts, minSize, maxSize int, seed int64) error {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))

	raddr, err := net.ResolveUDPAddr("udp", cfg.ServerAddress)
	if err != nil {
		return err
	}
	conn := utp.NewConn(transport.NewUDP(), rand.NewSource(seed))
	defer func() {
		_ = conn.Close(ctx)
	}()
	if err := conn.Connect(ctx, raddr); err != nil {
		return err
	}

	session := uuid.New().String()
	dlog.Infof(ctx, "session %s: %d bursts of %d..%d bytes, seed %d", session, bursts, minSize, maxSize, seed)
	for i := 0; i < bursts; i++ {
		payload := make([]byte, minSize+rnd.Intn(maxSize-minSize+1))
		rnd.Read(payload)
		if err := conn.Send(ctx, payload); err != nil {
			return err
		}
		dlog.Debugf(ctx, "session %s: burst %d, %d bytes", session, i, len(payload))
	}
	if err := conn.Shutdown(ctx, utp.Initiator); err != nil {
		return err
	}
	dlog.Infof(ctx, "session %s done: %s", session, conn.Stats())
	return nil
}
