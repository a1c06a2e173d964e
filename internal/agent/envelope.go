// Package agent implements the addressed message exchange between agents:
// envelopes, a schema-routed dispatcher with sender quotas, and transports.
package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EnvelopeVersion is the envelope format version written by this package.
const EnvelopeVersion = 1

// Message is any payload that can be sent in an envelope.
type Message interface {
	// Kind names the message schema used for routing.
	Kind() string
}

// Envelope wraps a message with its routing information.
type Envelope struct {
	Version   int             `json:"version"`
	Sender    string          `json:"sender"`
	Target    string          `json:"target"`
	Session   string          `json:"session"`
	Schema    string          `json:"schema"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Seal encodes msg into an envelope.
func Seal(sender, target, session string, msg Message) (Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return Envelope{
		Version:   EnvelopeVersion,
		Sender:    sender,
		Target:    target,
		Session:   session,
		Schema:    msg.Kind(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}, nil
}

// Open decodes the envelope payload into v.
func (e Envelope) Open(v any) error {
	if err := Decode(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Schema, err)
	}
	return nil
}

// Decode unmarshals data into v. Numbers landing in interface values are
// kept as json.Number so large listing ids survive intact.
func Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// ErrorMessage reports a failure to the sender of a request.
type ErrorMessage struct {
	Error string `json:"error"`
}

// KindErrorMessage is the schema name of ErrorMessage.
const KindErrorMessage = "error_message"

// Kind implements Message.
func (ErrorMessage) Kind() string { return KindErrorMessage }
