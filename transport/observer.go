package transport

// Observer receives transport events. OnMessage and OnError for inbound
// frames are called from the connection's read goroutine, in arrival order.
// OnError is also called once when Start or Send gives up. OnClose is called
// for every Close call and for every unsolicited disconnect.
type Observer interface {
	OnMessage(msg *Message)
	OnError(err error)
	OnClose()
}

// Callbacks is an Observer built from optional functions. A nil function
// drops that class of event.
type Callbacks struct {
	Message func(msg *Message)
	Error   func(err error)
	Close   func()
}

func (c Callbacks) OnMessage(msg *Message) {
	if c.Message != nil {
		c.Message(msg)
	}
}

func (c Callbacks) OnError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

func (c Callbacks) OnClose() {
	if c.Close != nil {
		c.Close()
	}
}
