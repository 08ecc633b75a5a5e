package services

import (
	"context"
	"fmt"
	"os"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/elite-zone/elitezone-backend/internal/logger"
)

type EmailService interface {
	SendEmail(ctx context.Context, toEmail string, subject string, plainText string, htmlContent string) error
}

type emailService struct {
	log       *logger.Logger
	client    *sendgrid.Client
	fromName  string
	fromEmail string
}

func NewEmailService(log *logger.Logger) (EmailService, error) {
	serviceLog := log.With("service", "EmailService")
	apiKey := os.Getenv("SENDGRID_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("Missing SENDGRID_API_KEY environment variable")
	}
	fromEmail := os.Getenv("SENDGRID_AUTH_EMAIL")
	if fromEmail == "" {
		serviceLog.Warn("SENDGRID_AUTH_EMAIL not set; using fallback no-reply@elitezone.dz")
		fromEmail = "no-reply@elitezone.dz"
	}
	client := sendgrid.NewSendClient(apiKey)

	return &emailService{
		log:       serviceLog,
		client:    client,
		fromName:  "Élite Zone",
		fromEmail: fromEmail,
	}, nil
}

func (es *emailService) SendEmail(ctx context.Context, toEmail string, subject string, plainText string, htmlContent string) error {
	from := mail.NewEmail(es.fromName, es.fromEmail)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)
	response, err := es.client.SendWithContext(ctx, message)
	if err != nil {
		es.log.Warn("Sendgrid email send failed", "error", err)
		return err
	}
	if response.StatusCode >= 400 {
		es.log.Warn("Sendgrid rejected the email", "statusCode", response.StatusCode, "body", response.Body)
		return fmt.Errorf("sendgrid rejected the email with status %d", response.StatusCode)
	}
	es.log.Info("Email sent", "to", toEmail, "statusCode", response.StatusCode)
	return nil
}
