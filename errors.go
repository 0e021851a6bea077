package cookieauth

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is invoked on a
	// nil or incompletely constructed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrCodecRequired is returned by [Builder.Build] when no ticket codec
	// and no protection key were supplied.
	ErrCodecRequired = errors.New("ticket codec required")
	// ErrRenewWithoutTicket is the containment-visible fault raised when a
	// renewal is flagged but the authenticate result carries no ticket.
	ErrRenewWithoutTicket = errors.New("renewal flagged without a ticket")
)
