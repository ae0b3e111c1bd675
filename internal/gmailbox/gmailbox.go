// Package gmailbox wraps the Gmail API behind the small mailbox surface the
// rest of the application needs: label lookups, raw message access, label
// moves and plain outbound mail.
package gmailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/jac4e/serveit/internal/apperrors"
)

// Gmail addresses the authenticated account as "me"
const selfUser = "me"

type Client struct {
	svc *gmail.Service
}

func New(ctx context.Context, credentialsPath string, tokenPath string) (*Client, error) {
	httpClient, err := authorizedClient(ctx, credentialsPath, tokenPath)
	if err != nil {
		return nil, err
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}

	return &Client{svc: svc}, nil
}

func (c *Client) LabelID(ctx context.Context, name string) (string, error) {
	list, err := c.svc.Users.Labels.List(selfUser).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}

	for _, label := range list.Labels {
		if label.Name == name {
			return label.Id, nil
		}
	}
	return "", fmt.Errorf("label %q: %w", name, apperrors.ErrMailboxUnavailable)
}

func (c *Client) ListMessages(ctx context.Context, labelID string) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		call := c.svc.Users.Messages.List(selfUser).LabelIds(labelID).MaxResults(500).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		list, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}

		for _, msg := range list.Messages {
			ids = append(ids, msg.Id)
		}
		if list.NextPageToken == "" {
			return ids, nil
		}
		pageToken = list.NextPageToken
	}
}

func (c *Client) GetRawMessage(ctx context.Context, messageID string) ([]byte, error) {
	msg, err := c.svc.Users.Messages.Get(selfUser, messageID).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}

	raw, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		return nil, fmt.Errorf("decode message %s: %w", messageID, err)
	}
	return raw, nil
}

func (c *Client) Relabel(ctx context.Context, messageID string, addLabelID string, removeLabelID string) error {
	_, err := c.svc.Users.Messages.Modify(selfUser, messageID, &gmail.ModifyMessageRequest{
		AddLabelIds:    []string{addLabelID},
		RemoveLabelIds: []string{removeLabelID},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("relabel message %s: %w", messageID, err)
	}
	return nil
}

// SendMessage sends a plain text email from the authenticated account
func (c *Client) SendMessage(ctx context.Context, to []string, subject string, body string) error {
	var b strings.Builder
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	_, err := c.svc.Users.Messages.Send(selfUser, &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(b.String())),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
