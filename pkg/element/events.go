package element

// Event is a document event delivered to a handler attached via an "on*"
// prop (e.g. "onclick", "oninput").
type Event struct {
	Type  string         // "click", "input", ...
	Value string         // Input value, when applicable
	Data  map[string]any // Extra event payload
}

// Handler is an event handler. The returned value, when the runtime
// recognizes it as deferred work, is executed outside the handler's call
// stack; otherwise it is ignored.
type Handler func(Event) any

// On returns a props entry attaching a handler for the given event type.
// Merge it into an element's props with El:
//
//	El("button", On("click", func(element.Event) any { ... }), Text("+"))
func On(event string, h Handler) Props {
	return Props{"on" + event: h}
}
