package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/config"
	"github.com/temcen/livelab/internal/ledger"
	"github.com/temcen/livelab/internal/mail"
	"github.com/temcen/livelab/internal/messaging"
	"github.com/temcen/livelab/pkg/models"
)

type digestLedger interface {
	CountUsers(ctx context.Context) (int, error)
	PageUsers(ctx context.Context, limit, offset int) ([]int64, error)
	UserDigestInfo(ctx context.Context, ids []int64) (map[int64]models.UserDigestInfo, error)
	FetchUnsentDigest(ctx context.Context, userIDs []int64, today time.Time) (map[int64]map[time.Time][]models.DigestArticle, error)
	StampTraces(ctx context.Context, userID int64, stamps []models.TraceStamp, now time.Time) error
}

type digestPublisher interface {
	PublishDigestDispatched(ctx context.Context, event messaging.DigestEvent) error
}

// DigestService is the batch dispatcher that turns unsent impressions into
// digest emails. Traces are stamped only after the mail collaborator accepted
// the message, so a failed send leaves the user eligible for the next batch.
type DigestService struct {
	config   *config.Config
	logger   *logrus.Logger
	store    digestLedger
	sender   mail.Sender
	metrics  *Metrics
	progress *ProgressTracker
	bus      digestPublisher
}

func NewDigestService(cfg *config.Config, logger *logrus.Logger, store digestLedger,
	sender mail.Sender, metrics *Metrics, progress *ProgressTracker, bus digestPublisher) *DigestService {
	return &DigestService{
		config:   cfg,
		logger:   logger,
		store:    store,
		sender:   sender,
		metrics:  metrics,
		progress: progress,
		bus:      bus,
	}
}

// RunDaily dispatches digests for every due user, one page at a time.
// Per-user failures are logged and the page continues; cancellation is
// honoured between pages.
func (s *DigestService) RunDaily(ctx context.Context) error {
	now := time.Now().UTC()
	today := ledger.UTCDate(now)

	total, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}

	prog := &BatchProgress{
		Job:        "digest",
		Date:       today.Format("2006-01-02"),
		Status:     BatchStatusRunning,
		TotalUsers: total,
		StartedAt:  now,
	}
	s.progress.Record(ctx, prog)

	pageSize := s.config.Interleave.UsersPerBatch
	sent := 0

	for offset := 0; offset < total; offset += pageSize {
		if err := ctx.Err(); err != nil {
			prog.Status = BatchStatusFailed
			s.progress.Record(context.Background(), prog)
			return err
		}

		pageStart := time.Now()
		pageSent, failures, err := s.dispatchPage(ctx, pageSize, offset, now, today)
		if err != nil {
			s.logger.WithError(err).WithField("offset", offset).
				Error("Digest page failed, will retry next batch")
			prog.Failures++
		} else {
			sent += pageSent
			prog.Failures += failures
			if s.metrics != nil {
				s.metrics.BatchPageDuration.WithLabelValues("digest").
					Observe(time.Since(pageStart).Seconds())
			}
		}

		prog.PagesDone++
		prog.UsersServed = sent
		s.progress.Record(ctx, prog)
	}

	prog.Status = BatchStatusCompleted
	s.progress.Record(ctx, prog)

	s.logger.WithField("digests", sent).Info("Digest batch finished")
	return nil
}

// dispatchPage builds and sends the digests of one user page. Returns how
// many were dispatched and how many users failed.
func (s *DigestService) dispatchPage(ctx context.Context, limit, offset int, now, today time.Time) (int, int, error) {
	userIDs, err := s.store.PageUsers(ctx, limit, offset)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to page users: %w", err)
	}
	if len(userIDs) == 0 {
		return 0, 0, nil
	}

	pending, err := s.store.FetchUnsentDigest(ctx, userIDs, today)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch unsent impressions: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	withPending := make([]int64, 0, len(pending))
	for id := range pending {
		withPending = append(withPending, id)
	}
	users, err := s.store.UserDigestInfo(ctx, withPending)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load user digest info: %w", err)
	}

	sent, failures := 0, 0
	for _, userID := range userIDs {
		byDate := pending[userID]
		if len(byDate) == 0 {
			continue
		}
		user, ok := users[userID]
		if !ok {
			s.logger.WithField("user_id", userID).Warn("Impressions for unknown user, skipping digest")
			continue
		}

		if err := s.dispatchUser(ctx, user, byDate, now, today); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).
				Warn("Digest dispatch failed, user stays eligible")
			failures++
			if s.metrics != nil {
				s.metrics.DigestSendFailures.Inc()
			}
			continue
		}
		sent++
	}
	return sent, failures, nil
}

// dispatchUser gates the user's cadence, builds the artifact, sends it, and
// stamps the traces. Nothing is stamped unless the send succeeded.
func (s *DigestService) dispatchUser(ctx context.Context, user models.UserDigestInfo,
	byDate map[time.Time][]models.DigestArticle, now, today time.Time) error {

	days := s.gatedDays(user.NotificationInterval, byDate, now, today)
	if len(days) == 0 {
		return nil
	}

	var stamps []models.TraceStamp
	mailDays := make([]mail.DigestDay, 0, len(days))
	for i, day := range days {
		articles := make([]mail.DigestArticle, 0, len(day.articles))
		for _, a := range day.articles {
			clickTrace := uuid.New()
			saveTrace := uuid.New()
			stamps = append(stamps, models.TraceStamp{
				UserID:     user.ID,
				ArticleID:  a.ArticleID,
				ClickTrace: clickTrace,
				SaveTrace:  saveTrace,
			})
			articles = append(articles, mail.DigestArticle{
				ArticleID:   a.ArticleID,
				Title:       a.Title,
				Authors:     a.Authors,
				Explanation: a.Explanation,
				ReadLink: fmt.Sprintf("%s/mail/read/%d/%s/%s",
					s.config.Server.BaseURL, user.ID, a.ArticleID, clickTrace),
				SaveLink: fmt.Sprintf("%s/mail/save/%d/%s/%s",
					s.config.Server.BaseURL, user.ID, a.ArticleID, saveTrace),
			})
		}
		mailDays = append(mailDays, mail.DigestDay{
			Label:    day.date.Format("Monday, January 2"),
			Articles: articles,
			DayIndex: i,
		})
	}

	digest := &mail.Digest{
		ToAddress:    user.Email,
		Subject:      s.config.Digest.Subject,
		TemplateName: "digest",
		Name:         user.Name,
		Days:         mailDays,
		UnsubscribeLink: fmt.Sprintf("%s/mail/unsubscribe/%s",
			s.config.Server.BaseURL, user.UnsubscribeTrace),
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.Digest.MailTimeout)
	err := s.sender.Send(sendCtx, digest)
	cancel()
	if err != nil {
		return fmt.Errorf("mail collaborator rejected digest: %w", err)
	}

	if err := s.store.StampTraces(ctx, user.ID, stamps, now); err != nil {
		return fmt.Errorf("failed to stamp traces: %w", err)
	}

	if s.metrics != nil {
		s.metrics.DigestsDispatched.Inc()
	}
	if s.bus != nil {
		if err := s.bus.PublishDigestDispatched(ctx, messaging.DigestEvent{
			UserID:    user.ID,
			Articles:  len(stamps),
			Days:      len(mailDays),
			Timestamp: time.Now().UTC(),
		}); err != nil {
			s.logger.WithError(err).Warn("Failed to publish digest event")
		}
	}
	return nil
}

type digestDay struct {
	date     time.Time
	articles []models.DigestArticle
}

// gatedDays applies the cadence gate and the per-day top-N cut, returning
// days in ascending date order. Daily cadence keeps only today's
// interleaving; weekly keeps the whole week but only on the configured
// weekday; off drops everything.
func (s *DigestService) gatedDays(interval models.NotificationInterval,
	byDate map[time.Time][]models.DigestArticle, now, today time.Time) []digestDay {

	switch interval {
	case models.DigestDaily:
	case models.DigestWeekly:
		if now.Weekday() != time.Weekday(s.config.Digest.Weekday) {
			return nil
		}
	default:
		return nil
	}

	topN := s.config.Digest.ArticlesPerDate
	var days []digestDay
	for date, articles := range byDate {
		if interval == models.DigestDaily && !date.Equal(today) {
			continue
		}
		// Rows arrive sorted by position score descending within a date.
		if len(articles) > topN {
			articles = articles[:topN]
		}
		if len(articles) == 0 {
			continue
		}
		days = append(days, digestDay{date: date, articles: articles})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].date.Before(days[j].date) })
	return days
}
