// Package chat defines the chat protocol messages exchanged with users.
package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Message schema names.
const (
	KindMessage         = "chat_message"
	KindAcknowledgement = "chat_acknowledgement"
)

// Content type tags.
const (
	TypeText         = "text"
	TypeStartSession = "start-session"
	TypeEndSession   = "end-session"
)

// Content is one part of a chat message: TextContent, StartSessionContent,
// EndSessionContent or OtherContent. The variant is fixed when decoding.
type Content interface {
	ContentType() string
}

// TextContent carries user or assistant text.
type TextContent struct {
	Text string `json:"text"`
}

// StartSessionContent marks the start of a conversation.
type StartSessionContent struct{}

// EndSessionContent marks the end of a conversation.
type EndSessionContent struct{}

// OtherContent holds a content part of a type this agent does not handle.
type OtherContent struct {
	Type string
	Raw  json.RawMessage
}

func (TextContent) ContentType() string         { return TypeText }
func (StartSessionContent) ContentType() string { return TypeStartSession }
func (EndSessionContent) ContentType() string   { return TypeEndSession }
func (o OtherContent) ContentType() string      { return o.Type }

// Contents is a list of content parts with a type-tagged JSON encoding.
type Contents []Content

type taggedText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type tag struct {
	Type string `json:"type"`
}

// MarshalJSON encodes each part with its "type" tag.
func (c Contents) MarshalJSON() ([]byte, error) {
	parts := make([]json.RawMessage, 0, len(c))
	for _, item := range c {
		var (
			b   []byte
			err error
		)
		switch v := item.(type) {
		case TextContent:
			b, err = json.Marshal(taggedText{Type: TypeText, Text: v.Text})
		case OtherContent:
			if len(v.Raw) > 0 {
				b = v.Raw
			} else {
				b, err = json.Marshal(tag{Type: v.Type})
			}
		default:
			b, err = json.Marshal(tag{Type: item.ContentType()})
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s content: %w", item.ContentType(), err)
		}
		parts = append(parts, b)
	}
	return json.Marshal(parts)
}

// UnmarshalJSON decodes each part into its variant by "type" tag.
func (c *Contents) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("decode chat content: %w", err)
	}
	out := make(Contents, 0, len(raws))
	for i, raw := range raws {
		var t tag
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("decode chat content %d: %w", i, err)
		}
		switch t.Type {
		case TypeText:
			var v taggedText
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("decode text content %d: %w", i, err)
			}
			out = append(out, TextContent{Text: v.Text})
		case TypeStartSession:
			out = append(out, StartSessionContent{})
		case TypeEndSession:
			out = append(out, EndSessionContent{})
		default:
			out = append(out, OtherContent{Type: t.Type, Raw: raw})
		}
	}
	*c = out
	return nil
}

// Message is a chat message.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	MsgID     string    `json:"msg_id"`
	Content   Contents  `json:"content"`
}

// Kind implements agent.Message.
func (Message) Kind() string { return KindMessage }

// Acknowledgement confirms receipt of a chat message.
type Acknowledgement struct {
	Timestamp         time.Time         `json:"timestamp"`
	AcknowledgedMsgID string            `json:"acknowledged_msg_id"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Kind implements agent.Message.
func (Acknowledgement) Kind() string { return KindAcknowledgement }

// NewText builds a single-text chat message. With endSession the message
// also carries an end-session marker.
func NewText(text string, endSession bool) Message {
	content := Contents{TextContent{Text: text}}
	if endSession {
		content = append(content, EndSessionContent{})
	}
	return Message{
		Timestamp: time.Now().UTC(),
		MsgID:     ulid.Make().String(),
		Content:   content,
	}
}

// NewAcknowledgement acknowledges msgID.
func NewAcknowledgement(msgID string) Acknowledgement {
	return Acknowledgement{
		Timestamp:         time.Now().UTC(),
		AcknowledgedMsgID: msgID,
	}
}

// Text returns the concatenation of all text parts separated by newlines.
func (m Message) Text() string {
	var out string
	for _, c := range m.Content {
		if t, ok := c.(TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += t.Text
		}
	}
	return out
}
