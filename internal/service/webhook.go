package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"orderbot/internal/domain"
	"orderbot/internal/messenger"
	"orderbot/internal/repository"
)

// WebhookPayload тело POST /webhooks/meta
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

type Participant struct {
	ID string `json:"id"`
}

type InboundMessage struct {
	MID  string `json:"mid"`
	Text string `json:"text"`
}

type Postback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type MessagingEvent struct {
	Sender    *Participant    `json:"sender"`
	Recipient *Participant    `json:"recipient"`
	Message   *InboundMessage `json:"message"`
	Postback  *Postback       `json:"postback"`
	Delivery  json.RawMessage `json:"delivery"`
	Read      json.RawMessage `json:"read"`
}

// IsReceipt delivery/read уведомления игнорируются
func (e MessagingEvent) IsReceipt() bool {
	return present(e.Delivery) || present(e.Read)
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null")) && !bytes.Equal(raw, []byte("{}"))
}

// Text a postback payload wins over message text
func (e MessagingEvent) Text() string {
	if e.Postback != nil && e.Postback.Payload != "" {
		return e.Postback.Payload
	}
	if e.Message != nil {
		return e.Message.Text
	}
	return ""
}

// WebhookProcessor разбирает доставку по каналам и событиям
type WebhookProcessor struct {
	channels     repository.ChannelRepository
	router       *Router
	sender       messenger.Sender
	defaultToken string
}

// NewWebhookProcessor channels == nil means the store is not configured.
func NewWebhookProcessor(channels repository.ChannelRepository, router *Router, sender messenger.Sender, defaultToken string) *WebhookProcessor {
	return &WebhookProcessor{channels: channels, router: router, sender: sender, defaultToken: defaultToken}
}

// ProcessResult сводка по одной доставке, для логов
type ProcessResult struct {
	Handled int
	Skipped int
	Failed  int
}

// Process never fails because of a single event: errors are logged and the
// loop moves on to the next one.
func (p *WebhookProcessor) Process(ctx context.Context, payload WebhookPayload) (ProcessResult, error) {
	var res ProcessResult
	if p == nil || p.channels == nil || p.router == nil {
		return res, ErrStoreNotConfigured
	}

	for _, entry := range payload.Entry {
		logger := log.WithField("page_id", entry.ID)

		var ch *domain.Channel
		var err error
		if entry.ID != "" {
			ch, err = p.channels.FindActiveByExternalID(ctx, domain.PlatformMessenger, entry.ID)
		} else {
			err = repository.ErrNotFound
		}
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				logger.WithError(err).Error("channel lookup failed")
				res.Failed += len(entry.Messaging)
				continue
			}
			logger.Warn("page is not linked to a shop")
			res.Skipped += len(entry.Messaging)
			p.notifyUnlinked(ctx, entry)
			continue
		}

		token := ch.AccessToken
		if token == "" {
			token = p.defaultToken
		}
		for _, ev := range entry.Messaging {
			switch p.processEvent(ctx, *ch, token, ev) {
			case outcomeHandled:
				res.Handled++
			case outcomeSkipped:
				res.Skipped++
			default:
				res.Failed++
			}
		}
	}
	return res, nil
}

type outcome int

const (
	outcomeHandled outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (p *WebhookProcessor) processEvent(ctx context.Context, ch domain.Channel, token string, ev MessagingEvent) (out outcome) {
	if ev.IsReceipt() || ev.Sender == nil || ev.Sender.ID == "" {
		return outcomeSkipped
	}
	logger := log.WithFields(log.Fields{"page_id": ch.ExternalID, "sender": ev.Sender.ID})

	defer func() {
		if rec := recover(); rec != nil {
			logger.WithField("error", fmt.Sprint(rec)).Error("event handling panicked")
			out = outcomeFailed
		}
	}()

	reply, err := p.router.Handle(ctx, Conversation{Channel: ch, PSID: ev.Sender.ID}, ev.Text())
	if err != nil {
		logger.WithError(err).Error("event handling failed")
		p.reply(ctx, ev.Sender.ID, replyTryAgain, token)
		return outcomeFailed
	}
	p.reply(ctx, ev.Sender.ID, reply, token)
	return outcomeHandled
}

func (p *WebhookProcessor) notifyUnlinked(ctx context.Context, entry WebhookEntry) {
	if p.defaultToken == "" {
		return
	}
	for _, ev := range entry.Messaging {
		if ev.IsReceipt() || ev.Sender == nil || ev.Sender.ID == "" {
			continue
		}
		p.reply(ctx, ev.Sender.ID, replyChannelNotLinked, p.defaultToken)
	}
}

// reply send errors are already logged by the client
func (p *WebhookProcessor) reply(ctx context.Context, psid, text, token string) {
	if text == "" || p.sender == nil {
		return
	}
	_ = p.sender.Send(ctx, psid, text, token)
}
