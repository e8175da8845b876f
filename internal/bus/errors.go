package bus

import "errors"

// Error taxonomy for bus operations (see spec §7). Only send_direct can
// fail among DistributionCenter operations; MessageContext.Send can also
// fail once the manager has been stopped.
var (
	// ErrBusClosed is returned by Send after the manager's routing loop
	// has been stopped. The manager is not restartable.
	ErrBusClosed = errors.New("bus: closed")

	// ErrUnknownRecipient is returned by SendDirect when no queue is
	// registered for the target UID. The manager logs this at warn and
	// continues; it never propagates further than the immediate caller.
	ErrUnknownRecipient = errors.New("bus: unknown recipient")

	// ErrBackpressure is returned by SendDirect when the recipient's
	// directed queue is full. The caller may retry or drop the message.
	ErrBackpressure = errors.New("bus: backpressure")
)
