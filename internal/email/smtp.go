// Package email renders and delivers portal notification emails over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"colorgarb_portal_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// Sender delivers notification emails.
type Sender interface {
	SendMilestoneEmail(ctx context.Context, toEmail, recipientName, orderNumber, stageLabel, shipDate string) error
	SendShipDateEmail(ctx context.Context, toEmail, recipientName, orderNumber, previousShipDate, newShipDate, reasonLabel string) error
	SendMessageEmail(ctx context.Context, toEmail, recipientName, orderNumber, senderName, excerpt string) error
	SendExportEmail(ctx context.Context, toEmail, recipientName string, recordCount int, errorMessage string) error
}

// SMTPSender implements Sender using a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a sender from the email configuration.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

// SendMilestoneEmail announces that an order reached a stage.
func (s *SMTPSender) SendMilestoneEmail(ctx context.Context, toEmail, recipientName, orderNumber, stageLabel, shipDate string) error {
	subject := fmt.Sprintf("Order %s reached %s", orderNumber, stageLabel)
	content, err := renderEmailTemplate("milestone.html", milestoneEmailData{
		baseEmailData: baseEmailData{
			Title:   subject,
			Heading: "Order progress update",
		},
		RecipientName: recipientName,
		OrderNumber:   orderNumber,
		StageLabel:    stageLabel,
		ShipDate:      shipDate,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

// SendShipDateEmail announces a revised ship date.
func (s *SMTPSender) SendShipDateEmail(ctx context.Context, toEmail, recipientName, orderNumber, previousShipDate, newShipDate, reasonLabel string) error {
	subject := fmt.Sprintf("Ship date updated for order %s", orderNumber)
	content, err := renderEmailTemplate("shipdate.html", shipDateEmailData{
		baseEmailData: baseEmailData{
			Title:   subject,
			Heading: "Ship date updated",
		},
		RecipientName:    recipientName,
		OrderNumber:      orderNumber,
		PreviousShipDate: previousShipDate,
		NewShipDate:      newShipDate,
		ReasonLabel:      reasonLabel,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

// SendMessageEmail announces a new thread message.
func (s *SMTPSender) SendMessageEmail(ctx context.Context, toEmail, recipientName, orderNumber, senderName, excerpt string) error {
	subject := fmt.Sprintf("New message on order %s", orderNumber)
	content, err := renderEmailTemplate("message.html", messageEmailData{
		baseEmailData: baseEmailData{
			Title:   subject,
			Heading: "New message",
		},
		RecipientName: recipientName,
		OrderNumber:   orderNumber,
		SenderName:    senderName,
		Excerpt:       excerpt,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

// SendExportEmail announces a finished audit export.
func (s *SMTPSender) SendExportEmail(ctx context.Context, toEmail, recipientName string, recordCount int, errorMessage string) error {
	subject := "Your communication audit export is ready"
	if errorMessage != "" {
		subject = "Your communication audit export failed"
	}
	content, err := renderEmailTemplate("export.html", exportEmailData{
		baseEmailData: baseEmailData{
			Title:   subject,
			Heading: "Communication audit export",
		},
		RecipientName: recipientName,
		RecordCount:   recordCount,
		Failed:        errorMessage != "",
		ErrorMessage:  errorMessage,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}
