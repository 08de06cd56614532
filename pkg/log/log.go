// Package log configures the logging used by the binaries. The library
// itself only ever logs through the dlog found in the context, so a test can
// substitute its own.
package log

import (
	"context"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
)

// InitContext returns a context carrying a configured logrus-backed dlog
// logger. The level string is one of logrus's level names.
func InitContext(ctx context.Context, level string) (context.Context, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.0000",
	})
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return ctx, err
	}
	logger.SetLevel(lv)
	return dlog.WithLogger(ctx, dlog.WrapLogrus(logger)), nil
}
