package etransfer

import (
	"context"
)

// Gmail label names the poller works with. The incoming label is applied by
// a mailbox filter; the other three record what happened to each message.
const (
	LabelIncoming    = "INCOMING_ETRANSFERS"
	LabelProcessed   = "PROCESSED_ETRANSFERS"
	LabelUnverified  = "UNVERIFIED_ETRANSFERS"
	LabelUnprocessed = "UNPROCESSED_ETRANSFERS"
)

// Mailbox is the slice of a mail provider the poller needs: list messages
// under a label, fetch them raw and move them between labels.
type Mailbox interface {
	// Resolve a label name to the provider's label id
	LabelID(ctx context.Context, name string) (string, error)

	// Ids of messages currently under the label
	ListMessages(ctx context.Context, labelID string) ([]string, error)

	// Full raw RFC 822 message bytes
	GetRawMessage(ctx context.Context, messageID string) ([]byte, error)

	// Swap one label for another on a message
	Relabel(ctx context.Context, messageID string, addLabelID string, removeLabelID string) error
}
