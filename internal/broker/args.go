package broker

// EventArgs is the argument type of events that carry no data.
type EventArgs struct{}

// Empty is the shared instance of EventArgs.
var Empty = &EventArgs{}

// CancelEventArgs lets synchronous subscribers veto an operation. The
// publisher reads Cancel after raising.
type CancelEventArgs struct {
	Cancel bool
}

// Canceled reports whether a subscriber set Cancel.
func (a *CancelEventArgs) Canceled() bool {
	return a.Cancel
}
