package inproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jsgist/internal/bus"
	"github.com/GriffinCanCode/jsgist/internal/logstream"
	"github.com/GriffinCanCode/jsgist/internal/protocol"
	"github.com/GriffinCanCode/jsgist/internal/runner"
	"github.com/GriffinCanCode/jsgist/internal/sandbox"
)

var target = protocol.Target{
	RunnerURL: "https://runner.example/runner-03.html",
	ScriptURL: "embed:",
}

func testConfig() runner.Config {
	return runner.Config{Timeout: 2 * time.Second, Loader: runner.EmbeddedLoader{}}
}

func gist(code string) protocol.Gist {
	return protocol.Gist{Files: []protocol.File{{Name: "index.js", Content: code}}}
}

func msgs(entries []logstream.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Msg
	}
	return out
}

func last(m []string) string {
	if len(m) == 0 {
		return ""
	}
	return m[len(m)-1]
}

func TestHandshakeEndToEnd(t *testing.T) {
	b := bus.New(nil)
	logs := logstream.New()
	ctrl := sandbox.New(b, NewLauncher(b, testConfig(), nil), logs, target, nil)
	defer ctrl.Close()

	require.NoError(t, ctrl.Run(gist("for (let i = 0; i < 2; i++) console.log(\"a\")\nthrow new Error(\"boom\")"), false))

	require.Eventually(t, func() bool { return logs.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	entries := logs.Entries()
	assert.Equal(t, "a", entries[0].Msg)
	assert.Equal(t, 2, entries[0].Count)
	assert.Equal(t, "Error: boom", entries[1].Msg)
	assert.Equal(t, "error", entries[1].Type)
	assert.True(t, entries[1].ShowStack)
	assert.Equal(t, sandbox.Running, ctrl.Status().State)
}

func TestRerunDropsOldSession(t *testing.T) {
	b := bus.New(nil)
	logs := logstream.New()
	ctrl := sandbox.New(b, NewLauncher(b, testConfig(), nil), logs, target, nil)
	defer ctrl.Close()

	require.NoError(t, ctrl.Run(gist(`setInterval(() => console.log("old"), 5)`), false))
	require.Eventually(t, func() bool { return logs.Len() > 0 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, ctrl.Run(gist(`console.log("new")`), false))

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual("new", last(msgs(logs.Entries())))
	}, 5*time.Second, 5*time.Millisecond)

	// The old interval would keep logging if its session were still routed
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "new", last(msgs(logs.Entries())))
}

func TestFrameRemoveStopsRunner(t *testing.T) {
	b := bus.New(nil)
	l := NewLauncher(b, testConfig(), nil)

	frame, err := l.Launch(context.Background(), sandbox.FrameSpec{ID: "sbx_1", Src: "https://runner.example/r.html?url=embed%3A"})
	require.NoError(t, err)
	f := frame.(*Frame)

	require.NoError(t, f.Remove())
	require.NoError(t, f.Remove())

	select {
	case <-f.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("runner still alive after Remove")
	}
	assert.ErrorIs(t, f.Post(protocol.MustMessage(protocol.TypeRun, protocol.BlankGist()), "*"), ErrDetached)
	assert.ErrorIs(t, f.Navigate("https://runner.example/r.html"), ErrDetached)
}

func TestNavigateBlankCancels(t *testing.T) {
	b := bus.New(nil)
	l := NewLauncher(b, testConfig(), nil)

	frame, err := l.Launch(context.Background(), sandbox.FrameSpec{ID: "sbx_2", Src: "https://runner.example/r.html?url=embed%3A"})
	require.NoError(t, err)
	f := frame.(*Frame)

	require.NoError(t, f.Navigate(protocol.BlankURL))
	assert.Equal(t, protocol.BlankURL, f.Src())

	select {
	case <-f.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("runner still alive after navigating to about:blank")
	}
}

func TestPostChecksOrigin(t *testing.T) {
	b := bus.New(nil)
	var ready []protocol.Message
	b.On(protocol.TypeGimmeDaCodez, bus.AnyKey, bus.Func(func(m protocol.Message) { ready = append(ready, m) }))

	l := NewLauncher(b, testConfig(), nil)
	frame, err := l.Launch(context.Background(), sandbox.FrameSpec{ID: "sbx_3", Src: "https://runner.example/r.html?url=embed%3A"})
	require.NoError(t, err)
	defer frame.Remove()

	run := protocol.MustMessage(protocol.TypeRun, protocol.BlankGist())
	require.NoError(t, frame.Post(run, "https://elsewhere.example"))
	require.NoError(t, frame.Post(run, "https://runner.example"))

	f := frame.(*Frame)
	select {
	case <-f.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("blank run should let the runner finish")
	}
	require.Len(t, ready, 1)
	assert.Equal(t, "sbx_3", ready[0].Source)
}
