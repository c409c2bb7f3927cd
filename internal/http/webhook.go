package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"orderbot/internal/classifier"
	"orderbot/internal/service"
)

// verifyWebhook handshake: hub.mode=subscribe and a matching hub.verify_token echo hub.challenge
func (s *Server) verifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if s.verifyToken != "" && mode == "subscribe" && token == s.verifyToken {
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}
	c.String(http.StatusForbidden, "Forbidden")
}

// receiveWebhook always acknowledges a parsed delivery, so the platform does not redeliver it.
func (s *Server) receiveWebhook(c *gin.Context) {
	var payload service.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid json"})
		return
	}

	// a dropped connection must not abort the delivery halfway
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := s.webhook.Process(ctx, payload)
	if errors.Is(err, service.ErrStoreNotConfigured) {
		log.Warn("webhook delivery dropped: store not configured")
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if err != nil {
		log.WithError(err).Error("webhook delivery failed")
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": "processing failed"})
		return
	}

	log.WithFields(log.Fields{
		"entries": len(payload.Entry),
		"handled": res.Handled,
		"skipped": res.Skipped,
		"failed":  res.Failed,
	}).Debug("webhook delivery processed")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) debugClassify(c *gin.Context) {
	q := c.DefaultQuery("q", "nheb 2 airpods")
	cls := s.classifier
	if cls == nil {
		cls = classifier.Noop{}
	}
	c.JSON(http.StatusOK, cls.Classify(c.Request.Context(), q))
}
