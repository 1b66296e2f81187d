// Package model defines data structures for the dialog pipeline.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Sender identifies who authored a transcript message.
type Sender string

const (
	SenderClient  Sender = "CLIENT"
	SenderManager Sender = "MANAGER"
)

// Message is one transcript entry.
type Message struct {
	Time   time.Time
	Sender Sender
	Text   string
}

// Line renders the message in the persisted transcript format:
// [ISO-8601 timestamp] SENDER: text. Embedded newlines are flattened so
// the one-line-per-message format stays parseable.
func (m Message) Line() string {
	text := strings.ReplaceAll(m.Text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", "")
	return fmt.Sprintf("[%s] %s: %s", m.Time.Format(time.RFC3339), m.Sender, text)
}

var lineRe = regexp.MustCompile(`^\[(.+?)\] (CLIENT|MANAGER): (.*)$`)

// ParseMessageLine parses one persisted transcript line. Returns false for
// lines that do not match the format.
func ParseMessageLine(line string) (Message, bool) {
	match := lineRe.FindStringSubmatch(line)
	if match == nil {
		return Message{}, false
	}
	ts, err := time.Parse(time.RFC3339, match[1])
	if err != nil {
		return Message{}, false
	}
	return Message{
		Time:   ts,
		Sender: Sender(match[2]),
		Text:   strings.TrimSpace(match[3]),
	}, true
}

// Dialog is one customer conversation.
type Dialog struct {
	ID       int64
	Phone    string
	Messages []Message
}

// FirstMessageTime returns the timestamp of the first message, or the zero
// time for an empty dialog.
func (d *Dialog) FirstMessageTime() time.Time {
	if len(d.Messages) == 0 {
		return time.Time{}
	}
	return d.Messages[0].Time
}

// LastMessageTime returns the timestamp of the last message, or the zero
// time for an empty dialog.
func (d *Dialog) LastMessageTime() time.Time {
	if len(d.Messages) == 0 {
		return time.Time{}
	}
	return d.Messages[len(d.Messages)-1].Time
}

// Transcript renders the dialog as persisted transcript text.
func (d *Dialog) Transcript() string {
	var b strings.Builder
	for _, m := range d.Messages {
		b.WriteString(m.Line())
		b.WriteByte('\n')
	}
	return b.String()
}
