package models

// OutboundMessage is a queued notification. Either To or Bcc is set:
// direct sends target one address, role fan-outs use Bcc.
type OutboundMessage struct {
	To      string
	Bcc     []string
	Subject string
	Body    string
}
