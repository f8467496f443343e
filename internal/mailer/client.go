// Package mailer talks to the HTTP mail relay used for session
// notifications. With Skip set the client logs instead of sending, which is
// the default for local development.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Email is one outbound message.
type Email struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Client calls the mail relay service.
type Client struct {
	BaseURL string
	APIKey  string
	From    string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client.
func New(baseURL, apiKey, from string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		From:    from,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Health checks relay availability.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mail relay unhealthy: %s", resp.Status)
	}
	return nil
}

// Send delivers one email through the relay.
func (c *Client) Send(ctx context.Context, email Email) error {
	if email.From == "" {
		email.From = c.From
	}
	if c.Skip {
		log.Printf("mail skipped: to=%v subject=%q", email.To, email.Subject)
		return nil
	}

	payload, err := json.Marshal(email)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail relay rejected send: %s: %s", resp.Status, body)
	}
	return nil
}

// SessionStartedBody renders the plain-text notification for a new session.
func SessionStartedBody(courseCode, teacherName, code string, expiresAt time.Time) string {
	return fmt.Sprintf(
		"An attendance session for %s is now open.\n\nSession code: %s\nOpen until: %s\nTeacher: %s\n\nSubmit your attendance from the class location before the session closes.",
		courseCode, code, expiresAt.Format("15:04 MST, Jan 2"), teacherName,
	)
}
