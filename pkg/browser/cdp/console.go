// pkg/browser/cdp/console.go
package cdp

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	json "github.com/json-iterator/go"
)

const defaultConsoleBufferSize = 1000

// ConsoleMessage is one console API call or uncaught exception seen in a tab.
type ConsoleMessage struct {
	Time     time.Time `json:"time"`
	TargetID string    `json:"target_id"`
	Level    string    `json:"level"`
	Text     string    `json:"text"`
}

// consoleBuffer keeps the newest console messages of a session, up to a fixed size.
type consoleBuffer struct {
	mu   sync.Mutex
	msgs []ConsoleMessage
	next int
	full bool
}

func newConsoleBuffer(size int) *consoleBuffer {
	if size <= 0 {
		size = defaultConsoleBufferSize
	}
	return &consoleBuffer{msgs: make([]ConsoleMessage, size)}
}

func (b *consoleBuffer) add(m ConsoleMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs[b.next] = m
	b.next = (b.next + 1) % len(b.msgs)
	if b.next == 0 {
		b.full = true
	}
}

// snapshot returns the buffered messages, oldest first.
func (b *consoleBuffer) snapshot() []ConsoleMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		out := make([]ConsoleMessage, b.next)
		copy(out, b.msgs[:b.next])
		return out
	}
	out := make([]ConsoleMessage, 0, len(b.msgs))
	out = append(out, b.msgs[b.next:]...)
	return append(out, b.msgs[:b.next]...)
}

func consoleFromAPICall(targetID string, e *runtime.EventConsoleAPICalled) ConsoleMessage {
	var text strings.Builder
	for i, arg := range e.Args {
		if i > 0 {
			text.WriteByte(' ')
		}
		var val interface{}
		switch {
		case arg.Value != nil && json.Unmarshal(arg.Value, &val) == nil:
			fmt.Fprintf(&text, "%v", val)
		case arg.Description != "":
			text.WriteString(arg.Description)
		default:
			fmt.Fprintf(&text, "[%s]", arg.Type)
		}
	}
	msg := ConsoleMessage{TargetID: targetID, Level: string(e.Type), Text: text.String()}
	if e.Timestamp != nil {
		msg.Time = e.Timestamp.Time()
	}
	return msg
}

func consoleFromException(targetID string, e *runtime.EventExceptionThrown) (ConsoleMessage, bool) {
	if e.ExceptionDetails == nil {
		return ConsoleMessage{}, false
	}
	text := e.ExceptionDetails.Text
	if ex := e.ExceptionDetails.Exception; ex != nil && ex.Description != "" {
		text = ex.Description
	}
	msg := ConsoleMessage{TargetID: targetID, Level: "exception", Text: text}
	if e.Timestamp != nil {
		msg.Time = e.Timestamp.Time()
	}
	return msg, true
}
