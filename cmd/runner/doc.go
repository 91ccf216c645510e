// Command jsgist-runner executes one gist in isolation.
//
// The server spawns it once per sandbox session when RUNNER_MODE=process.
// Protocol messages are exchanged as newline-delimited JSON: host messages
// on stdin, runner messages on stdout. Logs go to stderr.
//
// Usage:
//
//	jsgist-runner -src 'https://jsgistrunner.devcomments.org/runner-03.html?url=https%3A%2F%2Fjsgist.org%2Fjsgist-runner.js'
package main
