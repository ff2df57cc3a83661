package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client wraps the Gmail API client
type Client struct {
	service *gmail.Service

	// userID is the mailbox messages are sent from ("me" for the authorised user)
	userID string

	// sender is used as the From header if set
	sender string

	lastSendTime time.Time
	sendMutex    sync.Mutex
}

// NewClient creates a Gmail client from an OAuth config and a token carrying the gmail.send scope
func NewClient(ctx context.Context, oauthConfig *oauth2.Config, token *oauth2.Token, userID, sender string) (*Client, error) {
	httpClient := oauthConfig.Client(ctx, token)

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	if userID == "" {
		userID = "me"
	}

	return &Client{
		service: service,
		userID:  userID,
		sender:  sender,
	}, nil
}
