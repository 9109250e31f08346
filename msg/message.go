// Package msg defines the opaque requests a server dispatches and the replies
// it reads back. Encoding them for the wire is left to the connection.
package msg

import "sync/atomic"

var globalRequestID int32

// CurrentRequestID gets the current request id.
func CurrentRequestID() int32 {
	return atomic.AddInt32(&globalRequestID, 0)
}

// NextRequestID gets the next request id.
func NextRequestID() int32 {
	return atomic.AddInt32(&globalRequestID, 1)
}

// Request is a message sent to the server.
type Request interface {
	RequestID() int32
	// Replyable reports whether the server answers this request.
	Replyable() bool
}

// Reply is a message received from the server.
type Reply struct {
	ResponseTo int32
	Body       []byte
}

// LastReplyable returns the last request in reqs, and whether a reply should
// be read for it. Only the last request of a batch is ever answered.
func LastReplyable(reqs []Request) (Request, bool) {
	if len(reqs) == 0 {
		return nil, false
	}
	last := reqs[len(reqs)-1]
	return last, last.Replyable()
}
