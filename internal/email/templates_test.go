package email

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTemplates(t *testing.T) {
	start := time.Date(2030, 1, 2, 15, 4, 0, 0, time.UTC)

	msg := AppointmentBooked("p@example.com", "Dr. Grey", start)
	assert.Equal(t, "p@example.com", msg.To)
	assert.Contains(t, msg.Body, "Dr. Grey")
	assert.Contains(t, msg.Body, "Wed, 02 Jan 2030 15:04 UTC")

	msg = DoctorRejected("d@example.com", "Grey")
	assert.Equal(t, "Your verification request was declined", msg.Subject)
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 1, From: "no-reply@example.com"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sender.Send(ctx, Message{To: "x@example.com"}), context.Canceled)
}
