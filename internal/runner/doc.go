/*
Package runner is the sandbox side of jsGist: it executes a gist's
JavaScript in a goja VM and streams console output and errors back to the
host as protocol messages.

# Globals

Scripts run with require, process, module and exports removed. They get:

  - console.log, info, warn, error, debug
  - setTimeout, setInterval, clearTimeout, clearInterval, queueMicrotask
  - document, built from the gist's HTML and CSS files via goquery

# Event loop

Each script file and each timer callback is one macrotask. Promise jobs
drain after every macrotask; promises still rejected and unhandled at that
point are reported as unhandledRejection. The loop ends when no timers
remain, the context is cancelled, or the configured timeout elapses.

# Bootstrap

The runner first evaluates the bootstrap script named by the url parameter
of its src, then posts gimmeDaCodez. The built-in prelude is served at
/jsgist-runner.js and used directly for embed: urls.
*/
package runner
