package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/celiboy93/supaimage/internal/config"
	"github.com/celiboy93/supaimage/internal/domain"
	"github.com/celiboy93/supaimage/internal/repository"
)

// Notifier delivers a photo URL with a caption to the messaging backend.
type Notifier interface {
	SendPhoto(ctx context.Context, photoURL, caption string) error
}

type DraftService interface {
	Save(ctx context.Context, imageURL, caption string) (*domain.DraftPost, error)
	List(ctx context.Context) ([]domain.DraftPost, error)
	Delete(ctx context.Context, id string) error
	Send(ctx context.Context, id string) error
	SendAll(ctx context.Context) ([]domain.SendReport, error)
}

type draftService struct {
	drafts   repository.DraftStore
	notifier Notifier
	interval time.Duration
	log      *zap.Logger
}

func NewDraftService(drafts repository.DraftStore, notifier Notifier, cfg *config.Config, log *zap.Logger) DraftService {
	return &draftService{
		drafts:   drafts,
		notifier: notifier,
		interval: cfg.App.SendInterval,
		log:      log,
	}
}

func (s *draftService) Save(ctx context.Context, imageURL, caption string) (*domain.DraftPost, error) {
	return s.drafts.SaveDraft(ctx, imageURL, caption)
}

func (s *draftService) List(ctx context.Context) ([]domain.DraftPost, error) {
	return s.drafts.ListDrafts(ctx)
}

func (s *draftService) Delete(ctx context.Context, id string) error {
	return s.drafts.DeleteDraft(ctx, id)
}

// Send posts one draft and removes it from the queue only after Telegram
// confirms delivery. A failed send leaves the draft queued for retry.
func (s *draftService) Send(ctx context.Context, id string) error {
	draft, err := s.drafts.GetDraft(ctx, id)
	if err != nil {
		return err
	}

	if err := s.notifier.SendPhoto(ctx, draft.ImageURL, draft.Caption); err != nil {
		return fmt.Errorf("failed to send draft %s: %w", id, err)
	}

	if err := s.drafts.DeleteDraft(ctx, id); err != nil && !errors.Is(err, domain.ErrDraftNotFound) {
		// Delivered but still queued; surfaces on the next list.
		s.log.Warn("Draft delivered but not removed from queue",
			zap.String("id", id),
			zap.Error(err))
	}

	return nil
}

// SendAll walks the queue in creation order, pacing sends with a fixed
// interval so the bot API is not hammered. Individual failures are reported
// per item and do not stop the loop; cancellation does.
func (s *draftService) SendAll(ctx context.Context) ([]domain.SendReport, error) {
	drafts, err := s.drafts.ListDrafts(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]domain.SendReport, 0, len(drafts))
	for i, draft := range drafts {
		if i > 0 && s.interval > 0 {
			select {
			case <-ctx.Done():
				return reports, ctx.Err()
			case <-time.After(s.interval):
			}
		}

		report := domain.SendReport{ID: draft.ID, ImageURL: draft.ImageURL}
		if err := s.Send(ctx, draft.ID); err != nil {
			report.Error = err.Error()
			s.log.Warn("Bulk send item failed",
				zap.String("id", draft.ID),
				zap.Error(err))
		} else {
			report.Success = true
		}
		reports = append(reports, report)
	}

	s.log.Info("Bulk send finished",
		zap.Int("total", len(drafts)),
		zap.Int("sent", countSent(reports)))

	return reports, nil
}

func countSent(reports []domain.SendReport) int {
	n := 0
	for _, r := range reports {
		if r.Success {
			n++
		}
	}
	return n
}
