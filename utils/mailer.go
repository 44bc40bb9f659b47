package utils

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
	"sort"
	"strings"
)

var eventSubjects = map[string]string{
	"reservation_requested":    "New reservation request",
	"reservation_approved":     "Your reservation was approved",
	"reservation_rejected":     "Your reservation was rejected",
	"reservation_canceled":     "Your reservation was canceled",
	"guest_claim_confirmation": "Confirm your reservation request",
}

// SendEventEmail renders one lifecycle event as a plain-text email.
// When SMTP is not configured it logs a mock send instead, so local
// development never blocks on mail delivery.
func SendEventEmail(recipient, event string, payload map[string]string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USERNAME")
	smtpPass := os.Getenv("SMTP_PASSWORD")
	fromName := os.Getenv("SMTP_FROM_NAME")

	subject, ok := eventSubjects[event]
	if !ok {
		subject = event
	}

	if smtpUser == "" || smtpPass == "" || smtpHost == "" || smtpPort == "" {
		log.Printf("[MOCK EMAIL] to:%s event:%s payload:%s", MaskEmail(recipient), event, payloadText(payload))
		return nil
	}

	safe := func(s string) string {
		return strings.ReplaceAll(strings.TrimSpace(s), "\r\n", " ")
	}

	from := fmt.Sprintf("%s <%s>", safe(fromName), smtpUser)
	addr := fmt.Sprintf("%s:%s", smtpHost, smtpPort)
	auth := smtp.PlainAuth("", smtpUser, smtpPass, smtpHost)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", recipient))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", safe(subject)))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	sb.WriteString(subject + "\r\n\r\n")
	sb.WriteString(payloadText(payload) + "\r\n")

	if err := smtp.SendMail(addr, auth, smtpUser, []string{recipient}, []byte(sb.String())); err != nil {
		log.Printf("Failed to send %s email to %s: %v", event, MaskEmail(recipient), err)
		return err
	}
	return nil
}

func payloadText(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, payload[k]))
	}
	return strings.Join(lines, "\n")
}
