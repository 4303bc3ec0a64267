package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailDispatcher delivers email notifications via SendGrid.
type EmailDispatcher struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	log       zerolog.Logger
}

type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

func NewEmailDispatcher(cfg EmailConfig, log zerolog.Logger) (*EmailDispatcher, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if cfg.FromName == "" {
		cfg.FromName = "Clinic Booking"
	}
	return &EmailDispatcher{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		log:       log,
	}, nil
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, req Request) error {
	if req.Channel != ChannelEmail {
		return fmt.Errorf("email dispatcher cannot deliver channel %q", req.Channel)
	}

	from := mail.NewEmail(d.fromName, d.fromEmail)
	to := mail.NewEmail(req.Payload["patient_name"], req.Recipient)
	subject, body := renderTemplate(req.TemplateID, req.Payload)

	message := mail.NewSingleEmail(from, subject, to, body, body)

	resp, err := d.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	d.log.Info().
		Str("to", req.Recipient).
		Str("template_id", req.TemplateID).
		Int("status", resp.StatusCode).
		Msg("email dispatched")
	return nil
}

// renderTemplate produces the subject and plain-text body for the known
// template ids. Content stays deliberately minimal; anything richer
// belongs to the transport collaborator.
func renderTemplate(templateID string, payload map[string]string) (subject, body string) {
	when := payload["slot_start"]
	doctor := payload["doctor_id"]

	switch templateID {
	case "reminder_24h":
		return "Appointment reminder",
			fmt.Sprintf("Your appointment is tomorrow at %s. Reply to confirm or cancel.", when)
	case "reminder_2h":
		return "Appointment reminder",
			fmt.Sprintf("Your appointment starts at %s. Please confirm you completed the intake forms.", when)
	case "reminder_1h":
		return "Appointment starting soon",
			fmt.Sprintf("Your appointment starts at %s. Reply CANCEL if you cannot make it.", when)
	case "dispatch_failed":
		return "Reminder dispatch failed",
			fmt.Sprintf("Reminder %s for appointment %s could not be delivered after retries.",
				payload["stage"], payload["appointment_id"])
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Appointment update for %s", when)
	if doctor != "" {
		fmt.Fprintf(&sb, " with doctor %s", doctor)
	}
	return "Appointment update", sb.String()
}
