package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/toolgate/callctx"
	"github.com/effective-security/toolgate/tools"
)

// ensure Scratchpad implements tools.Callback
var _ tools.Callback = (*Scratchpad)(nil)

var TimeNowFn = time.Now

// SessionStats summarizes the invocations of one client session.
type SessionStats struct {
	ClientID string

	Duration            time.Duration
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
	ToolNotFound        uint32
}

// Scratchpad is a callback handler that records a timestamped
// transcript of tool invocations per client session.
type Scratchpad struct {
	sessions map[string]*session
	mode     Mode
	lock     sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		sessions: make(map[string]*session),
		mode:     mode,
	}
}

func (l *Scratchpad) StartSession(ctx context.Context) {
	l.lock.Lock()
	defer l.lock.Unlock()

	clientID := callctx.GetClientID(ctx)
	l.sessions[clientID] = &session{
		stats: SessionStats{
			ClientID: clientID,
		},
		clientID: clientID,
		started:  time.Now(),
	}

	l.sessions[clientID].print(ctx, "*** Session Started ***")
}

// EndSession closes the client's session and returns its stats and
// transcript. It returns nils when no session was started.
func (l *Scratchpad) EndSession(ctx context.Context) (*SessionStats, []byte) {
	s := l.getSession(ctx)
	if s == nil {
		return nil, nil
	}

	stats := s.stats
	stats.Duration = time.Since(s.started)

	s.print(ctx, fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d",
		stats.ToolsCalls,
		stats.ToolsCallsFailed,
		stats.ToolNotFound,
	))
	s.print(ctx, fmt.Sprintf("*** Session Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.sessions, s.clientID)
	l.lock.Unlock()

	return &stats, s.w.Bytes()
}

func (l *Scratchpad) getSession(ctx context.Context) *session {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.sessions[callctx.GetClientID(ctx)]
}

func (l *Scratchpad) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	s := l.getSession(ctx)
	if s == nil {
		return
	}
	atomic.AddUint32(&s.stats.ToolsCalls, 1)
	s.print(ctx, tool.Name(), "*** Tool Start ***")
	s.print(ctx, tool.Name(), "Input:", input)
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	s := l.getSession(ctx)
	if s == nil {
		return
	}
	atomic.AddUint32(&s.stats.ToolsCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		s.print(ctx, tool.Name(), "Output:", output)
	}
	s.print(ctx, tool.Name(), "*** Tool End ***")
}

func (l *Scratchpad) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	s := l.getSession(ctx)
	if s == nil {
		return
	}
	atomic.AddUint32(&s.stats.ToolsCallsFailed, 1)
	s.print(ctx, tool.Name(), "*** Tool Error ***", err.Error())
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, tool string) {
	s := l.getSession(ctx)
	if s == nil {
		return
	}
	atomic.AddUint32(&s.stats.ToolNotFound, 1)
	s.print(ctx, "*** Tool Not Found ***", tool)
}

type session struct {
	clientID string
	w        bytes.Buffer
	started  time.Time
	lock     sync.Mutex
	stats    SessionStats
}

// print writes the entries to the session's transcript.
// The entries are written in the following format:
// timestamp clientID.requestID entry entry\n
func (s *session) print(ctx context.Context, entries ...string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = s.w.WriteString(ts)
	_, _ = s.w.WriteString(" ")
	_, _ = s.w.WriteString(s.clientID)
	_, _ = s.w.WriteString(".")
	_, _ = s.w.WriteString(callctx.GetRequestID(ctx))
	_, _ = s.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = s.w.WriteString(" ")
		}
		_, _ = s.w.WriteString(entry)
	}
	_, _ = s.w.WriteString("\n")
}
