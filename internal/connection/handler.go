package connection

// Conn is the handle handlers get for one managed connection.
type Conn interface {
	// SessionID identifies this connection in logs and events.
	SessionID() string

	// Send writes a text frame on this connection.
	Send(data []byte) error

	// SendJSON encodes v and writes it as a text frame on this connection.
	SendJSON(v any) error

	// Close closes this connection and stops the manager from reconnecting.
	Close(code int, reason string) error
}

// Handler receives connection lifecycle callbacks from a Manager.
//
// Callbacks run on the manager's goroutine, one at a time and in order.
// They must not block; long work belongs on its own goroutine.
type Handler interface {
	OnOpen(info ConnInfo)
	OnClose(info CloseInfo)
	OnError(info ErrorInfo)
	OnReconnect(info ReconnectInfo)
	OnMessage(conn Conn, msg TimestampedMessage)
}

// MultiHandler calls each handler in order.
type MultiHandler []Handler

func (m MultiHandler) OnOpen(info ConnInfo) {
	for _, h := range m {
		h.OnOpen(info)
	}
}

func (m MultiHandler) OnClose(info CloseInfo) {
	for _, h := range m {
		h.OnClose(info)
	}
}

func (m MultiHandler) OnError(info ErrorInfo) {
	for _, h := range m {
		h.OnError(info)
	}
}

func (m MultiHandler) OnReconnect(info ReconnectInfo) {
	for _, h := range m {
		h.OnReconnect(info)
	}
}

func (m MultiHandler) OnMessage(conn Conn, msg TimestampedMessage) {
	for _, h := range m {
		h.OnMessage(conn, msg)
	}
}

// NopHandler ignores every callback. Embed it to implement only some.
type NopHandler struct{}

func (NopHandler) OnOpen(ConnInfo)                    {}
func (NopHandler) OnClose(CloseInfo)                  {}
func (NopHandler) OnError(ErrorInfo)                  {}
func (NopHandler) OnReconnect(ReconnectInfo)          {}
func (NopHandler) OnMessage(Conn, TimestampedMessage) {}
