package bus

// InboundMessage is one user utterance arriving from a channel, before the
// dispatcher has seen it.
type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	SessionID string
}

// OutboundMessage is a persona reply (or proactive check-in) on its way back
// to a channel.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	Persona string
}
