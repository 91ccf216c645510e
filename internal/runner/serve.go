package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

// Serve is the sandbox side of the execution protocol. It loads the
// bootstrap script named in src, asks the host for code, executes the
// first run message from inbox, and returns once the run's timers drain.
//
// Cancelling ctx stops execution silently. Hitting cfg.Timeout reports an
// error message to the host.
func Serve(ctx context.Context, src string, inbox <-chan protocol.Message, out Poster, cfg Config, logger *zap.Logger) error {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	scriptURL, err := protocol.ScriptURL(src)
	if err != nil {
		return err
	}
	script, err := cfg.Loader.Load(ctx, scriptURL)
	if err != nil {
		return fmt.Errorf("failed to load bootstrap script: %w", err)
	}

	e, err := newEngine(cfg, out, logger)
	if err != nil {
		return err
	}
	if err := e.runScript("jsgist-runner.js", string(script)); err != nil {
		return fmt.Errorf("bootstrap script interrupted: %w", err)
	}

	e.post(protocol.TypeGimmeDaCodez, nil)

	payload, ok := awaitRun(ctx, inbox, logger)
	if !ok {
		return nil
	}
	if payload.IsBlank() {
		logger.Debug("Blank run, nothing to execute")
		return nil
	}

	return execute(ctx, e, payload, cfg, logger)
}

// awaitRun blocks for the first decodable run message
func awaitRun(ctx context.Context, inbox <-chan protocol.Message, logger *zap.Logger) (protocol.Gist, bool) {
	for {
		select {
		case <-ctx.Done():
			return protocol.Gist{}, false
		case msg, open := <-inbox:
			if !open {
				return protocol.Gist{}, false
			}
			if msg.Type != protocol.TypeRun {
				logger.Debug("Ignoring message before run", zap.String("type", string(msg.Type)))
				continue
			}
			var g protocol.Gist
			if err := msg.Decode(&g); err != nil && !errors.Is(err, protocol.ErrNoData) {
				logger.Warn("Dropping undecodable run message", zap.Error(err))
				continue
			}
			return g, true
		}
	}
}

func execute(ctx context.Context, e *engine, payload protocol.Gist, cfg Config, logger *zap.Logger) error {
	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	stop := context.AfterFunc(runCtx, func() {
		e.interrupt(context.Cause(runCtx))
	})
	defer stop()

	files := Split(payload)
	logger.Debug("Executing gist",
		zap.String("name", payload.Name),
		zap.Int("js", len(files.JS)),
		zap.Int("html", len(files.HTML)),
		zap.Int("css", len(files.CSS)),
	)

	err := e.execute(runCtx, files)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		// Host navigated away
		return nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		e.post(protocol.TypeError, protocol.LogData{
			Msg: fmt.Sprintf("%v after %s", ErrTimeout, cfg.Timeout),
		})
		return nil
	}
	return err
}
