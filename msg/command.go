package msg

// Command is an opaque request carrying a pre-encoded payload.
type Command struct {
	ReqID   int32
	DBName  string
	Payload []byte
	// NoReply marks fire-and-forget requests.
	NoReply bool
}

// NewCommand creates a replyable command with the next request id.
func NewCommand(dbName string, payload []byte) *Command {
	return &Command{
		ReqID:   NextRequestID(),
		DBName:  dbName,
		Payload: payload,
	}
}

// RequestID implements the Request interface.
func (c *Command) RequestID() int32 { return c.ReqID }

// Replyable implements the Request interface.
func (c *Command) Replyable() bool { return !c.NoReply }
