package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Sender отправка текстового ответа покупателю
type Sender interface {
	Send(ctx context.Context, recipientID, text, accessToken string) error
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

// Send posts to /me/messages. Failures are logged and returned; callers treat them as non-fatal.
func (c *Client) Send(ctx context.Context, recipientID, text, accessToken string) error {
	if accessToken == "" {
		log.WithField("recipient", recipientID).Warn("send skipped: no page access token")
		return errors.New("no page access token")
	}

	var body sendRequest
	body.Recipient.ID = recipientID
	body.Message.Text = text
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + "/me/messages?access_token=" + url.QueryEscape(accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).WithField("recipient", recipientID).Error("send failed")
		return errors.Wrap(err, "send message")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.WithFields(log.Fields{
			"recipient": recipientID,
			"status":    resp.StatusCode,
			"body":      string(detail),
		}).Error("send rejected")
		return errors.Errorf("send message: status %d", resp.StatusCode)
	}
	return nil
}
