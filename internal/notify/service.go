package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/booking"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/pkg/logging"
)

// Service renders and sends the transactional emails the booking flows
// produce. It satisfies both the booking service's mailer and the voucher
// flow's OTP channel.
type Service struct {
	email      EmailSender
	senderName string
	logger     *logging.Logger
}

// NewService creates the notification service. senderName appears in the
// confirmation signature.
func NewService(email EmailSender, senderName string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if senderName == "" {
		senderName = "Discovery Hike"
	}
	return &Service{email: email, senderName: senderName, logger: logger}
}

// BookingConfirmation emails the client their booking details, the payment
// overview, and the cancellation policy.
func (s *Service) BookingConfirmation(ctx context.Context, to, code string, d booking.Details) error {
	if s.email == nil {
		s.logger.Debug("email disabled, skipping booking confirmation", "code", code)
		return nil
	}
	rec := d.Reconciled()
	msg := EmailMessage{
		To:      to,
		ToName:  d.ClientName,
		Subject: fmt.Sprintf("Booking Confirmation - %s with Discovery Hike", d.TrekName),
		Body: fmt.Sprintf(
			"Dear %s,\n\nYour booking (%s) for %s on %s is confirmed.\nTotal: ₹%d, Advance: ₹%d, Balance: ₹%d.\n\n— %s",
			d.ClientName, code, d.TrekName, formatTrekDate(d.TrekDate),
			d.Total(), rec.AdjustedAdvance, rec.AdjustedBalance, s.senderName),
		HTML: confirmationHTML(code, d, s.senderName),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: booking confirmation: %w", err)
	}
	return nil
}

// SendOTP emails a voucher-transfer one-time code to one party.
func (s *Service) SendOTP(ctx context.Context, to, code string) error {
	if s.email == nil {
		return fmt.Errorf("notify: email disabled")
	}
	msg := EmailMessage{
		To:      to,
		Subject: "Your Discovery Hike verification code",
		Body:    fmt.Sprintf("Your OTP is: %s\n\nIt expires in 10 minutes. If you did not request a voucher transfer, ignore this email.", code),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send otp: %w", err)
	}
	return nil
}

// formatTrekDate renders the stored YYYY-MM-DD date as DD-MM-YYYY; an
// unparseable value passes through unchanged.
func formatTrekDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("02-01-2006")
}

func confirmationHTML(code string, d booking.Details, senderName string) string {
	rec := d.Reconciled()

	voucherNote := ""
	if d.VoucherCode != "" {
		voucherNote = fmt.Sprintf(`<p style="font-size:16px; color:#333333;">🎟️ Voucher <strong>%s</strong> was applied worth ₹%d/-.</p>`,
			d.VoucherCode, d.VoucherAmount)
	}

	return fmt.Sprintf(`<html>
  <body style="font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; margin:0; padding:0; background-color:#f4f4f4;">
    <table width="600" align="center" cellpadding="0" cellspacing="0" border="0" style="background-color:#ffffff; border-radius:8px; overflow:hidden;">
      <tr>
        <td align="center" style="background-color:#003366; padding:20px; color:#ffffff;">
          <h2 style="margin:0; font-size:24px;">Booking Successful</h2>
          <p style="margin:4px 0 0;">Booking ID: <strong>%s</strong></p>
        </td>
      </tr>
      <tr>
        <td style="padding:20px;">
          <p style="font-size:16px; color:#333333;">Dear <strong>%s</strong>,</p>
          <p style="font-size:16px; color:#333333;">
            Your booking for the <span style="color:#FF8C00;"><strong>%s</strong></span> with <strong>Discovery Hike</strong> has been confirmed.
          </p>
          <p style="font-size:16px; color:#333333;">
            You have chosen the date <span style="color:#FF8C00;"><strong>%s</strong></span> and opted for <span style="color:#FF8C00;"><strong>%s</strong></span> sharing. We will update you with the pick-up point and formality details as soon as possible.
          </p>
          %s
          <h3 style="color:#003366; border-bottom:2px solid #FF8C00; padding-bottom:5px;">Detailed Overview of your Booking:</h3>
          <table width="100%%" cellpadding="10" cellspacing="0" border="0" style="border-collapse: collapse; margin-top:10px;">
            <tr><td style="border:1px solid #dddddd; background-color:#f9f9f9; font-weight:bold;">Rate per person</td><td style="border:1px solid #dddddd; text-align:center;">₹%d/-</td></tr>
            <tr><td style="border:1px solid #dddddd; background-color:#f9f9f9; font-weight:bold;">Number of people (Pax)</td><td style="border:1px solid #dddddd; text-align:center;">%d</td></tr>
            <tr><td style="border:1px solid #dddddd; background-color:#f9f9f9; font-weight:bold;">Advance Paid</td><td style="border:1px solid #dddddd; text-align:center; color:#FF8C00;">₹%d/-</td></tr>
            <tr><td style="border:1px solid #dddddd; background-color:#f9f9f9; font-weight:bold;">Remaining Amount</td><td style="border:1px solid #dddddd; text-align:center; color:#FF8C00;">₹%d/-</td></tr>
            <tr><td style="border:1px solid #dddddd; background-color:#f9f9f9; font-weight:bold;">Total Amount</td><td style="border:1px solid #dddddd; text-align:center;">₹%d/-</td></tr>
          </table>
          <h3 style="color:#003366; border-bottom:2px solid #FF8C00; padding-bottom:5px; margin-top:30px;">Cancellation Policy:</h3>
          <ul style="color:#333333; font-size:16px; line-height:1.5;">
            <li><strong>To cancel:</strong> Email us at <a href="mailto:info@discoveryhike.in">info@discoveryhike.in</a>.</li>
            <li><strong>Cancellation due to events:</strong> If cancelled due to natural events, a one-year valid voucher will be issued.</li>
            <li><strong>Personal cancellations:</strong> No cash refunds. 30+ days before: full voucher. 20–29 days: 50%% voucher. Under 20 days: no voucher.</li>
          </ul>
          <h3 style="color:#003366; border-bottom:2px solid #FF8C00; padding-bottom:5px; margin-top:30px;">Important Notes:</h3>
          <ol style="color:#333333; font-size:16px; line-height:1.5;">
            <li>Pay full amount only at pickup.</li>
            <li>Carry valid ID (original + attested copy).</li>
            <li>Pickup details shared ~6 hours before trek.</li>
            <li>Email <a href="mailto:info@discoveryhike.in">info@discoveryhike.in</a> for queries.</li>
          </ol>
        </td>
      </tr>
      <tr>
        <td style="padding:20px; background-color:#003366; color:#ffffff;">
          <p style="margin:0;">Best regards,</p>
          <p style="margin:0;"><strong>%s</strong><br>Team, Discovery Hike</p>
        </td>
      </tr>
    </table>
  </body>
</html>`,
		code, d.ClientName, d.TrekName, formatTrekDate(d.TrekDate), d.SharingType,
		voucherNote,
		d.RatePerPerson, d.GroupSize, rec.AdjustedAdvance, rec.AdjustedBalance, d.Total(),
		senderName)
}

var _ booking.Mailer = (*Service)(nil)
