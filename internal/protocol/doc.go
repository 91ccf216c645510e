/*
Package protocol contains the shared wire types exchanged between the host
and a sandboxed runner.

# Messages

Every unit of communication is a Message: a type drawn from a closed
vocabulary plus an opaque JSON payload.

	gimmeDaCodez        sandbox -> host   runner finished bootstrapping
	run                 host -> sandbox   the gist to execute
	log                 sandbox -> host   console output
	error               sandbox -> host   uncaught exception
	unhandledRejection  sandbox -> host   promise rejected and never handled
	newGist             opener -> host    replace the editor contents

Messages cross an isolation boundary (goroutine or OS process), so senders
must not assume the other side exists yet. A host waits for gimmeDaCodez
before posting run.

# Framing

On stream transports each message is one JSON object terminated by a
newline. Encoder and Decoder implement that framing.

# Sandbox URLs

A sandbox is pointed at a runner URL carrying a single query parameter, url,
naming the bootstrap script the runner fetches before it reports ready. The
payload never travels in the URL.
*/
package protocol
