package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/jakechorley/volunteer-rota/pkg/core/model"
)

// EmailSender sends a plain text email; satisfied by gmailclient.Client
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// MemberLookup resolves recipients to contact details
type MemberLookup interface {
	GetMember(ctx context.Context, id string) (*model.Member, error)
}

// EmailGateway emails each event to its recipient
type EmailGateway struct {
	sender  EmailSender
	members MemberLookup
}

func NewEmailGateway(sender EmailSender, members MemberLookup) *EmailGateway {
	return &EmailGateway{sender: sender, members: members}
}

func (g *EmailGateway) Notify(ctx context.Context, event Event) error {
	recipient, err := g.members.GetMember(ctx, event.RecipientMemberID)
	if err != nil {
		return fmt.Errorf("failed to look up recipient %s: %w", event.RecipientMemberID, err)
	}
	if recipient.Email == "" {
		return fmt.Errorf("member %s has no email address", recipient.ID)
	}

	counterparty := ""
	if id := event.Payload[KeyCounterpartyID]; id != "" {
		counterparty = id
		if m, err := g.members.GetMember(ctx, id); err == nil && m.DisplayName != "" {
			counterparty = m.DisplayName
		}
	}

	subject, body := RenderEmail(event, recipient.DisplayName, counterparty)
	if err := g.sender.SendEmail(ctx, recipient.Email, subject, body); err != nil {
		return fmt.Errorf("failed to email %s: %w", recipient.ID, err)
	}
	return nil
}

// RenderEmail produces the subject and body for an event
func RenderEmail(event Event, recipientName, counterpartyName string) (string, string) {
	when := strings.TrimSpace(event.Payload[KeyDate] + " " + event.Payload[KeyTime])

	var subject, message string
	switch event.Type {
	case EventSwapRequested:
		subject = "Swap requested"
		message = fmt.Sprintf("%s would like to swap assignments with you (your assignment on %s).", counterpartyName, when)
		if reason := event.Payload[KeyReason]; reason != "" {
			message += "\nReason: " + reason
		}
	case EventSwapAccepted:
		subject = "Swap accepted"
		message = fmt.Sprintf("%s accepted your swap request. You are now assigned on %s.", counterpartyName, when)
	case EventSwapRejected:
		subject = "Swap declined"
		message = fmt.Sprintf("%s declined your swap request for %s.", counterpartyName, when)
	case EventSwapCancelled:
		subject = "Swap request withdrawn"
		message = fmt.Sprintf("%s withdrew their swap request for your assignment on %s.", counterpartyName, when)
	case EventAssignmentCreated:
		subject = "New assignment"
		message = fmt.Sprintf("You have been assigned on %s.", when)
	case EventAssignmentDeleted:
		subject = "Assignment removed"
		message = fmt.Sprintf("Your assignment on %s has been removed.", when)
	default:
		subject = string(event.Type)
		message = fmt.Sprintf("Update for %s.", when)
	}

	greeting := "Hi,"
	if recipientName != "" {
		greeting = fmt.Sprintf("Hi %s,", recipientName)
	}
	return subject, greeting + "\n\n" + message + "\n"
}
