package mailer

import "context"

// Message is one outbound introduction email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers outbound introduction messages. Delivery mechanics are a
// collaborator concern; the workflow only depends on this contract.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}
