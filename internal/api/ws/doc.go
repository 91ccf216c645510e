/*
Package ws streams a workspace to an editor over a WebSocket at /stream.

The client sends commands:

	{"type":"run", "data":{"name":"...","files":[...]}}   data optional
	{"type":"stop"}
	{"type":"newGist", "data":{...}}
	{"type":"load", "src":"<gist id or url>"}
	{"type":"ping"}

The server pushes:

	{"type":"hello", "workspace":"ws_..."}
	{"type":"logs", "entries":[...]}       full log after every change
	{"type":"notice", "level":"error", "message":"..."}
	{"type":"pong"}

Log changes are coalesced: a burst of output produces one logs message per
writer wakeup, carrying the latest snapshot.
*/
package ws
