package ipc

// Message is an immutable unit of received data: the raw payload plus a
// back-reference to the connection that produced it, for replying or for
// extracting sender credentials.
//
// A Message is created by the read loop and owned by the handler it is
// dispatched to; handlers must copy out anything they need to retain past
// their own return.
type Message struct {
	Data   []byte
	Sender *Connection
}
