/*
Package editor is the host side of jsGist. A Workspace stands in for one
open editor: it holds the gist being edited, the consolidated log of its
last run, and the runner API handed to it by the sandbox controller.

	Run      clear the log, run the current gist
	Stop     run the blank gist, tearing down whatever was running
	NewGist  replace the gist and run it (also triggered by a newGist message)
	Load     fetch a gist by id or url, then run it

Manager creates workspaces, each with its own message bus, log and
controller, so sessions from different editors never share handlers.
*/
package editor
