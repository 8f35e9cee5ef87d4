package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/utils"
)

type mailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type emailService struct {
	client     mailSender
	fromEmail  string
	fromName   string
	adminEmail string
}

// NewEmailService sends through SendGrid. With an empty API key the messages
// are only logged.
func NewEmailService(apiKey, fromEmail, fromName, adminEmail string) EmailService {
	if apiKey == "" {
		return &logEmailService{}
	}
	return newEmailService(sendgrid.NewSendClient(apiKey), fromEmail, fromName, adminEmail)
}

func newEmailService(client mailSender, fromEmail, fromName, adminEmail string) *emailService {
	return &emailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		adminEmail: adminEmail,
	}
}

func (s *emailService) send(to, toName, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail(toName, to)
	message := mail.NewSingleEmail(from, subject, recipient, body, "")

	logger.ExternalServiceCall("sendgrid", "Send", "to", to, "subject", subject)
	response, err := s.client.Send(message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "Send", err)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func customerName(c domain.CustomerInfo) string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func orderSummary(o *domain.Order) string {
	var b strings.Builder
	for _, it := range o.Items {
		fmt.Fprintf(&b, "  %d x %s, %s to %s: %s\n", it.Quantity, it.ToolName,
			utils.FormatDate(it.StartDate), utils.FormatDate(it.EndDate), formatCents(it.TotalCents))
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\nTax: %s\nTotal: %s\nDeposit: %s\n",
		formatCents(o.SubtotalCents), formatCents(o.TaxCents), formatCents(o.TotalCents), formatCents(o.DepositCents))
	return b.String()
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}

func (s *emailService) SendOrderConfirmation(ctx context.Context, o *domain.Order) error {
	if o.CustomerInfo.Email == "" {
		return nil
	}
	subject := fmt.Sprintf("Order %s received", o.OrderNumber)
	body := fmt.Sprintf("Hello %s,\n\nWe have received your rental order %s:\n\n%s\nBest regards,\nThe Rental Team",
		customerName(o.CustomerInfo), o.OrderNumber, orderSummary(o))
	return s.send(o.CustomerInfo.Email, customerName(o.CustomerInfo), subject, body)
}

func (s *emailService) SendOrderStatusUpdate(ctx context.Context, o *domain.Order, from domain.OrderStatus) error {
	if o.CustomerInfo.Email == "" {
		return nil
	}
	subject := fmt.Sprintf("Order %s is now %s", o.OrderNumber, o.Status)
	body := fmt.Sprintf("Hello %s,\n\nThe status of your order %s changed from %s to %s.\n\nBest regards,\nThe Rental Team",
		customerName(o.CustomerInfo), o.OrderNumber, from, o.Status)
	return s.send(o.CustomerInfo.Email, customerName(o.CustomerInfo), subject, body)
}

func (s *emailService) SendAdminReport(ctx context.Context, subject, body string) error {
	if s.adminEmail == "" {
		return nil
	}
	return s.send(s.adminEmail, "", subject, body)
}

type logEmailService struct{}

func (logEmailService) SendOrderConfirmation(ctx context.Context, o *domain.Order) error {
	logger.InfoContext(ctx, "Email skipped: order confirmation", "order_number", o.OrderNumber, "to", o.CustomerInfo.Email)
	return nil
}

func (logEmailService) SendOrderStatusUpdate(ctx context.Context, o *domain.Order, from domain.OrderStatus) error {
	logger.InfoContext(ctx, "Email skipped: order status update", "order_number", o.OrderNumber, "from", from, "to", o.Status)
	return nil
}

func (logEmailService) SendAdminReport(ctx context.Context, subject, body string) error {
	logger.InfoContext(ctx, "Email skipped: admin report", "subject", subject)
	return nil
}
