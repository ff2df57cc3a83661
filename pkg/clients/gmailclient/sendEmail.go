package gmailclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
)

const EMAIL_INTERVAL = 3 * time.Second

// SendEmail sends a plain text email.
// Sends are serialised and spaced EMAIL_INTERVAL apart to respect Gmail rate limits.
func (c *Client) SendEmail(ctx context.Context, to, subject, body string) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if !c.lastSendTime.IsZero() {
		if wait := EMAIL_INTERVAL - time.Since(c.lastSendTime); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	gmailMessage := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(BuildMessage(c.sender, to, subject, body)),
	}

	if _, err := c.service.Users.Messages.Send(c.userID, gmailMessage).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.lastSendTime = time.Now()
	return nil
}

// BuildMessage renders an RFC 2822 message. from may be empty.
func BuildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
