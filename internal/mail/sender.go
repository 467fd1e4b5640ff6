package mail

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Sender delivers one rendered digest. Implementations must honour ctx
// cancellation; the dispatcher wraps every call in a per-message timeout.
type Sender interface {
	Send(ctx context.Context, d *Digest) error
}

// LogSender logs digests instead of delivering them. Used in development and
// whenever no mail credentials are configured.
type LogSender struct {
	logger   *logrus.Logger
	renderer *Renderer
}

func NewLogSender(logger *logrus.Logger, renderer *Renderer) *LogSender {
	return &LogSender{logger: logger, renderer: renderer}
}

func (s *LogSender) Send(ctx context.Context, d *Digest) error {
	// Render anyway so template breakage surfaces in development too.
	body, err := s.renderer.Render(d)
	if err != nil {
		return err
	}

	articles := 0
	for _, day := range d.Days {
		articles += len(day.Articles)
	}

	s.logger.WithFields(logrus.Fields{
		"to":         d.ToAddress,
		"subject":    d.Subject,
		"days":       len(d.Days),
		"articles":   articles,
		"body_bytes": len(body),
	}).Info("Digest rendered (log-only sender, not delivered)")
	return nil
}
