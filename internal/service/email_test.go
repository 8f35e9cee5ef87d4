package service

import (
	"context"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instrument-rental-backend/internal/domain"
)

type fakeSender struct {
	sent   []*mail.SGMailV3
	status int
}

func (f *fakeSender) Send(m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, m)
	return &rest.Response{StatusCode: f.status, Body: "{}"}, nil
}

func testOrder() *domain.Order {
	return &domain.Order{
		OrderNumber:  "ORD-20240601-0A1B2C3D",
		CustomerInfo: domain.CustomerInfo{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		Items: []domain.OrderItem{
			{ToolName: "Cello", Quantity: 1, StartDate: day("2024-06-10"), EndDate: day("2024-06-17"), TotalCents: 5810},
		},
		SubtotalCents: 5810,
		TaxCents:      465,
		TotalCents:    6275,
		DepositCents:  1162,
		Status:        domain.OrderStatusActive,
	}
}

func TestEmailService_SendOrderConfirmation(t *testing.T) {
	sender := &fakeSender{status: 202}
	svc := newEmailService(sender, "orders@rental.test", "Rental Desk", "")

	require.NoError(t, svc.SendOrderConfirmation(context.Background(), testOrder()))
	require.Len(t, sender.sent, 1)

	m := sender.sent[0]
	assert.Equal(t, "Order ORD-20240601-0A1B2C3D received", m.Subject)
	assert.Equal(t, "orders@rental.test", m.From.Address)
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "ada@example.com", m.Personalizations[0].To[0].Address)
	assert.Contains(t, m.Content[0].Value, "1 x Cello, 2024-06-10 to 2024-06-17: $58.10")
	assert.Contains(t, m.Content[0].Value, "Total: $62.75")
}

func TestEmailService_Failures(t *testing.T) {
	sender := &fakeSender{status: 500}
	svc := newEmailService(sender, "orders@rental.test", "Rental Desk", "ops@rental.test")

	err := svc.SendOrderStatusUpdate(context.Background(), testOrder(), domain.OrderStatusConfirmed)
	assert.ErrorContains(t, err, "status 500")

	// Nothing to send without a recipient.
	noEmail := testOrder()
	noEmail.CustomerInfo.Email = ""
	assert.NoError(t, svc.SendOrderConfirmation(context.Background(), noEmail))
	assert.Len(t, sender.sent, 1)
}

func TestEmailService_AdminReport(t *testing.T) {
	sender := &fakeSender{status: 202}
	svc := newEmailService(sender, "orders@rental.test", "Rental Desk", "ops@rental.test")
	require.NoError(t, svc.SendAdminReport(context.Background(), "Low stock", "Cello: 1 left"))
	assert.Equal(t, "ops@rental.test", sender.sent[0].Personalizations[0].To[0].Address)

	quiet := newEmailService(sender, "orders@rental.test", "Rental Desk", "")
	require.NoError(t, quiet.SendAdminReport(context.Background(), "Low stock", ""))
	assert.Len(t, sender.sent, 1)
}

func TestNewEmailService_WithoutKeyLogsOnly(t *testing.T) {
	svc := NewEmailService("", "orders@rental.test", "Rental Desk", "")
	assert.IsType(t, &logEmailService{}, svc)
	assert.NoError(t, svc.SendOrderConfirmation(context.Background(), testOrder()))
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "$0.05", formatCents(5))
	assert.Equal(t, "$1234.50", formatCents(123450))
	assert.Equal(t, "-$1.00", formatCents(-100))
}
