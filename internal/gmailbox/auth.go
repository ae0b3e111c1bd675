package gmailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// authorizedClient builds an HTTP client from the OAuth application
// credentials and a previously granted user token. The token file is
// produced out of band by walking through the consent flow once; this code
// only refreshes it.
func authorizedClient(ctx context.Context, credentialsPath string, tokenPath string) (*http.Client, error) {
	credentials, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read oauth credentials: %w", err)
	}

	config, err := google.ConfigFromJSON(credentials, gmail.GmailModifyScope, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth credentials: %w", err)
	}

	tokenBytes, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenBytes, &token); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	return config.Client(ctx, &token), nil
}
