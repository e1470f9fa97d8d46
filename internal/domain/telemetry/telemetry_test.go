package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
)

func messages(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestConsoleSuppressesConsecutiveDuplicateErrors(t *testing.T) {
	c := NewConsole(0)

	_, kept := c.Append(Entry{Level: LevelError, Message: "boom"})
	assert.True(t, kept)
	_, kept = c.Append(Entry{Level: LevelError, Message: "boom"})
	assert.False(t, kept)

	assert.Len(t, c.Entries(), 1)
	assert.Equal(t, 1, c.Suppressed())
}

func TestConsoleInterleavedMessageResetsSuppression(t *testing.T) {
	c := NewConsole(0)

	c.Append(Entry{Level: LevelError, Message: "boom"})
	c.Append(Entry{Level: LevelError, Message: "other"})
	c.Append(Entry{Level: LevelError, Message: "boom"})
	c.Append(Entry{Level: LevelLog, Message: "tick"})
	c.Append(Entry{Level: LevelLog, Message: "tick"})

	assert.Equal(t, []string{"boom", "other", "boom", "tick", "tick"}, messages(c.Entries()))
	assert.Zero(t, c.Suppressed())
}

func TestConsoleFilterCountsAndClear(t *testing.T) {
	c := NewConsole(0)
	for _, l := range []Level{LevelLog, LevelWarn, LevelError, LevelInfo, LevelWarn, LevelDebug} {
		c.Append(Entry{Level: l, Message: fmt.Sprintf("%s message", l)})
	}

	assert.Len(t, c.Entries(LevelWarn), 2)
	assert.Len(t, c.Entries(LevelWarn, LevelError), 3)
	assert.Equal(t, Counts{Log: 1, Info: 1, Warn: 2, Error: 1, Debug: 1, Total: 6}, c.Counts())
	assert.True(t, c.HasProblems())

	c.Clear()

	assert.Empty(t, c.Entries())
	assert.Equal(t, Counts{}, c.Counts())
	assert.False(t, c.HasProblems())
}

func TestConsoleKeepsHistoryUntilClear(t *testing.T) {
	c := NewConsole(0)
	for i := 0; i < 5000; i++ {
		c.Append(Entry{Message: fmt.Sprint(i)})
	}

	entries := c.Entries()
	require.Len(t, entries, 5000)
	assert.Equal(t, "0", entries[0].Message)
	assert.Equal(t, "4999", entries[4999].Message)
	assert.Zero(t, c.Dropped())
}

func TestConsoleCapacity(t *testing.T) {
	tests := []struct {
		name    string
		appends int
		want    []string
	}{
		{"before compaction", 5, []string{"2", "3", "4"}},
		{"after compaction", 20, []string{"17", "18", "19"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsole(3)
			for i := 0; i < tt.appends; i++ {
				c.Append(Entry{Level: LevelWarn, Message: fmt.Sprint(i)})
			}

			assert.Equal(t, tt.want, messages(c.Entries()))
			assert.Equal(t, tt.want, messages(c.Entries(LevelWarn)))
			assert.Equal(t, tt.appends-3, c.Dropped())
			assert.Equal(t, 3, c.Counts().Warn)
		})
	}
}

func TestConsoleCapacityDedupAfterEviction(t *testing.T) {
	c := NewConsole(2)
	c.Append(Entry{Level: LevelError, Message: "a"})
	c.Append(Entry{Level: LevelError, Message: "b"})
	c.Append(Entry{Level: LevelError, Message: "c"})

	_, kept := c.Append(Entry{Level: LevelError, Message: "c"})
	assert.False(t, kept)
	assert.Equal(t, []string{"b", "c"}, messages(c.Entries()))

	c.Clear()
	_, kept = c.Append(Entry{Level: LevelError, Message: "c"})
	assert.True(t, kept)
	assert.Equal(t, []string{"c"}, messages(c.Entries()))
}

func TestConsoleBanner(t *testing.T) {
	c := NewConsole(0)
	c.Append(Entry{Level: LevelError, Message: "host side", Origin: FromHost})
	_, ok := c.Banner()
	assert.False(t, ok, "only runtime errors from the frame raise the banner")

	c.Append(Entry{Level: LevelError, Message: "first", Origin: FromFrame})
	c.Append(Entry{Level: LevelError, Message: "second", Origin: FromFrame})
	b, ok := c.Banner()
	require.True(t, ok)
	assert.Equal(t, "second", b.Message)

	c.DismissBanner()
	_, ok = c.Banner()
	assert.False(t, ok)
	assert.Len(t, c.Entries(), 3, "dismissing the banner keeps history")
}

func TestConsoleSubscribe(t *testing.T) {
	c := NewConsole(0)
	var got []string
	c.Subscribe(func(e Entry) { got = append(got, e.Message) })

	c.Append(Entry{Level: LevelError, Message: "x"})
	c.Append(Entry{Level: LevelError, Message: "x"})
	c.Append(Entry{Message: "y"})

	assert.Equal(t, []string{"x", "y"}, got)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelLog, ParseLevel("trace"))
}

func TestDecode(t *testing.T) {
	m, err := Decode([]byte(`{"source":"preview-console","level":"error","message":"x","stack":"at f"}`))
	require.NoError(t, err)
	assert.True(t, m.IsConsole())
	assert.Equal(t, "at f", m.Stack)

	m, err = Decode([]byte(`{"type":"SCENE_EXPORT_DATA","data":{"metadata":{"version":4.5}}}`))
	require.NoError(t, err)
	assert.True(t, m.IsExportReply())
	assert.JSONEq(t, `{"metadata":{"version":4.5}}`, string(m.Data))

	_, err = Decode([]byte(`{"source":"devtools","message":"x"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

type frameSet struct{ current id.FrameID }

func (f *frameSet) check(key id.FrameID) bool { return key == f.current }

func newTestBridge(cmd Commander) (*Bridge, *frameSet) {
	frames := &frameSet{current: id.NewFrameID()}
	return NewBridge(NewConsole(0), NewExchange(cmd, 200*time.Millisecond), frames.check, nil), frames
}

func consoleMsg(level, msg string) []byte {
	raw, _ := Encode(Message{Source: ConsoleSource, Level: level, Message: msg})
	return raw
}

func TestBridgePreservesOrderWithinFrame(t *testing.T) {
	b, frames := newTestBridge(nil)

	for i := 0; i < 50; i++ {
		require.NoError(t, b.Receive(frames.current, consoleMsg("log", fmt.Sprint(i))))
	}

	got := messages(b.Console().Entries())
	require.Len(t, got, 50)
	for i, m := range got {
		assert.Equal(t, fmt.Sprint(i), m)
	}
	assert.Equal(t, FromFrame, b.Console().Entries()[0].Origin)
}

func TestBridgeDiscardsStaleFrames(t *testing.T) {
	b, frames := newTestBridge(nil)
	old := frames.current
	frames.current = id.NewFrameID()

	err := b.Receive(old, consoleMsg("error", "late"))

	assert.ErrorIs(t, err, ErrStaleFrame)
	assert.Empty(t, b.Console().Entries())
	assert.Equal(t, int64(1), b.Stale())
}

func TestBridgeIgnoresPayloadIdentity(t *testing.T) {
	b, frames := newTestBridge(nil)
	old := frames.current
	frames.current = id.NewFrameID()
	raw := []byte(`{"source":"preview-console","level":"log","message":"spoof","frame":"` + frames.current.String() + `"}`)

	assert.ErrorIs(t, b.Receive(old, raw), ErrStaleFrame)
}

func TestExportRoundTrip(t *testing.T) {
	var b *Bridge
	var frames *frameSet
	b, frames = newTestBridge(CommanderFunc(func(_ context.Context, cmd string) error {
		assert.Equal(t, ExportCommand, cmd)
		go func() {
			_ = b.Receive(frames.current, []byte(`{"type":"SCENE_EXPORT_DATA","data":{"object":{"type":"Scene"}}}`))
		}()
		return nil
	}))

	data, err := b.Exchange().Request(context.Background())

	require.NoError(t, err)
	assert.JSONEq(t, `{"object":{"type":"Scene"}}`, string(data))
	assert.False(t, b.Exchange().Pending())
}

func TestExportFailureReply(t *testing.T) {
	var b *Bridge
	var frames *frameSet
	b, frames = newTestBridge(CommanderFunc(func(context.Context, string) error {
		go func() {
			_ = b.Receive(frames.current, []byte(`{"type":"SCENE_EXPORT_ERROR","message":"No exportable scene found"}`))
		}()
		return nil
	}))

	_, err := b.Exchange().Request(context.Background())

	var failure *ExportFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "No exportable scene found", failure.Message)
}

func TestExportTimeoutAndPending(t *testing.T) {
	started := make(chan struct{})
	x := NewExchange(CommanderFunc(func(context.Context, string) error {
		close(started)
		return nil
	}), 100*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := x.Request(context.Background())
		done <- err
	}()
	<-started

	_, err := x.Request(context.Background())
	assert.ErrorIs(t, err, ErrExportPending)

	assert.ErrorIs(t, <-done, ErrExportTimeout)
	assert.False(t, x.Pending())
	assert.False(t, x.Deliver(Message{Type: TypeExportData}), "late replies are dropped")
}

type mockCommander struct {
	mock.Mock
}

func (m *mockCommander) SendCommand(ctx context.Context, command string) error {
	return m.Called(ctx, command).Error(0)
}

func TestExportCommandError(t *testing.T) {
	cmd := new(mockCommander)
	cmd.On("SendCommand", mock.Anything, ExportCommand).Return(errors.New("no host page connected")).Once()
	x := NewExchange(cmd, time.Second)

	_, err := x.Request(context.Background())

	assert.ErrorContains(t, err, "no host page connected")
	assert.False(t, x.Pending())
	cmd.AssertExpectations(t)
}

func TestExportCommandCarriesDeadline(t *testing.T) {
	cmd := new(mockCommander)
	cmd.On("SendCommand", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), ExportCommand).Return(nil).Once()
	x := NewExchange(cmd, 50*time.Millisecond)

	_, err := x.Request(context.Background())

	assert.ErrorIs(t, err, ErrExportTimeout)
	cmd.AssertExpectations(t)
	cmd.AssertNumberOfCalls(t, "SendCommand", 1)
}
