/*
Package sandbox owns the lifecycle of the isolated execution context that
runs user code.

# Lifecycle

	Idle --Run--> Starting --gimmeDaCodez--> Running --Run/Teardown--> Idle

Every Run tears down the current session and launches a fresh one with a new
session id. The payload is held as pending until the runner in that session
reports ready, then posted as a run message. Messages from any session other
than the current one are ignored and counted as stale.

The controller never talks to a runner directly. A Launcher creates Frames
(an in-process goroutine or a child process); messages coming out of a frame
flow through the bus and are routed back to the controller by session id.

# Usage

	b := bus.New(logger)
	ctrl := sandbox.New(b, inproc.NewLauncher(b, opts), logs, target, logger)
	ctrl.Register(workspace)  // workspace receives the RunnerAPI

	ctrl.Run(gist, false)     // start a session
	ctrl.Run(protocol.BlankGist(), true) // stop
*/
package sandbox
