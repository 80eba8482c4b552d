package events

const (
	// KindSessionState identifies a session lifecycle transition.
	KindSessionState Kind = "session.state"
)

// SessionStateChanged reports a lifecycle transition of the voice
// session.
type SessionStateChanged struct {
	Base
	State string
}

func (e SessionStateChanged) String() string { return e.State }

func NewSessionStateChanged(state string) SessionStateChanged {
	return SessionStateChanged{Base: NewBase(KindSessionState), State: state}
}
