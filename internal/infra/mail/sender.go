package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/gomail.v2"
)

var ErrNoRecipients = errors.New("no notification recipients configured")

var newLeadTemplate = template.Must(template.New("new_lead").Parse(`New lead {{.LeadID}}

Name:     {{.Name}}
Email:    {{.Email}}
Phone:    {{.Phone}}
Title:    {{.JobTitle}}
Company:  {{.CompanyName}} ({{.CompanyDomain}})
Industry: {{.Industry}}
Location: {{.City}} {{.State}} {{.Zip}}
Intent:   {{.IntentScore}}
Source:   {{.Source}}
{{if .AssignedUserID}}Assigned: {{.AssignedUserID}}
{{end}}`))

func NewLeadNotifier(host string, port int, user, password, from string, to []string) *LeadNotifier {
	return &LeadNotifier{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		From:     from,
		To:       to,
	}
}

func (s *LeadNotifier) NotifyNewLead(ctx context.Context, summary LeadSummary) error {
	if len(s.To) == 0 || s.Host == "" {
		return ErrNoRecipients
	}

	m, err := s.buildMessage(summary)
	if err != nil {
		return err
	}

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send new lead email: %w", err)
		}
		return nil
	}
}

func (s *LeadNotifier) buildMessage(summary LeadSummary) (*gomail.Message, error) {
	var body bytes.Buffer
	if err := newLeadTemplate.Execute(&body, summary); err != nil {
		return nil, fmt.Errorf("render new lead email: %w", err)
	}

	subject := "New lead"
	if who := strings.TrimSpace(summary.Name); who != "" {
		subject = fmt.Sprintf("New lead: %s", who)
	}
	if summary.CompanyName != "" {
		subject += " @ " + summary.CompanyName
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", s.To...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body.String())
	return m, nil
}
