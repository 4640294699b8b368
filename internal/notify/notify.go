// Package notify pushes planning events to an external gateway
// (webhook relay, websocket fanout, whatever is configured). In-app
// notifications live in the database; this is the out-of-band channel.
package notify

import "context"

// Event is the wire payload sent to the gateway.
type Event struct {
	Type  string         `json:"type"`
	Count int            `json:"count,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

type Pusher interface {
	Push(ctx context.Context, ev Event) error
}
