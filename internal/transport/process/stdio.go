package process

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
	"github.com/GriffinCanCode/jsgist/internal/runner"
)

// ServeStdio is the runner process side of the transport. It serves one
// run for src, reading host messages from r and writing runner messages to
// w. It returns once the run finishes, r is closed, or ctx ends.
func ServeStdio(ctx context.Context, src string, r io.Reader, w io.Writer, cfg runner.Config, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbox := make(chan protocol.Message)
	go func() {
		defer close(inbox)
		dec := protocol.NewDecoder(r)
		for {
			msg, err := dec.Decode()
			if err != nil {
				if errors.Is(err, protocol.ErrMalformed) || errors.Is(err, protocol.ErrUnknownType) {
					logger.Warn("Skipping host message", zap.Error(err))
					continue
				}
				if !errors.Is(err, io.EOF) {
					logger.Debug("Host input closed", zap.Error(err))
				}
				return
			}
			select {
			case inbox <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	enc := protocol.NewEncoder(w)
	return runner.Serve(ctx, src, inbox, runner.PostFunc(enc.Encode), cfg, logger)
}
