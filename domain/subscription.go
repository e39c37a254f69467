package domain

// Subscription is a stream of T owned by one consumer. Unsubscribe stops
// delivery and closes Stream.
type Subscription[T any] struct {
	Stream      chan T
	Unsubscribe func()
	Topic       string
}

// RecapRequester asks a source to resend full state for symbol.
type RecapRequester interface {
	RequestRecap(symbol string) error
}
