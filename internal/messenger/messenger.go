package messenger

import "context"

// Messenger sends a WhatsApp message to a user. Implementations must
// truncate bodies that exceed the transport limit rather than fail.
type Messenger interface {
	Send(ctx context.Context, to, body string) error
}
