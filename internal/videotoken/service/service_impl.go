package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/glamlot/glamlot/internal/clock"
	"github.com/glamlot/glamlot/internal/config"
	"github.com/glamlot/glamlot/internal/videotoken/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	holder *config.MarketplaceConfigHolder
}

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Holder *config.MarketplaceConfigHolder
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("videotoken.service"),

		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		holder: p.Holder,
	}
}

// IssueOrReuse implements domain.Service.
//
// The insert-if-absent / select-existing order matters: two concurrent
// callers both attempt the insert, exactly one wins, and both read back
// the surviving row. A read-then-write would leave a race window.
func (s *Service) IssueOrReuse(ctx context.Context, auctionID, bidID snowflake.ID) (*domain.Token, error) {
	now := s.clock.Now()
	cfg := s.holder.Get()

	candidate := &domain.Token{
		ID:          s.genID.Generate(),
		AuctionID:   auctionID,
		BidID:       bidID,
		Secret:      newSecret(),
		ExpiresAt:   now.Add(cfg.VideoTokenTTL()),
		RetakesLeft: cfg.MaxRetakes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	inserted, err := s.repo.InsertIfAbsent(ctx, s.db, candidate)
	if err != nil {
		return nil, err
	}
	if inserted {
		s.log.Info("issued video token",
			zap.String("auction_id", auctionID.String()),
			zap.String("bid_id", bidID.String()),
			zap.Time("expires_at", candidate.ExpiresAt),
		)
		return candidate, nil
	}

	existing, err := s.repo.FindActive(ctx, s.db, auctionID, bidID)
	if err != nil {
		return nil, err
	}

	// An expired token that was never uploaded gets a fresh window; the
	// winner keeps the same secret so links already sent stay valid.
	if existing.Expired(now) && !existing.Uploaded() {
		extended := now.Add(cfg.VideoTokenTTL())
		if err := s.repo.ExtendExpiry(ctx, s.db, existing.ID, extended, now); err != nil {
			return nil, err
		}
		existing.ExpiresAt = extended
		existing.UpdatedAt = now
		s.log.Info("extended video token expiry",
			zap.String("auction_id", auctionID.String()),
			zap.String("bid_id", bidID.String()),
			zap.Time("expires_at", extended),
		)
	}
	return existing, nil
}

// ConsumeRetake implements domain.Service.
func (s *Service) ConsumeRetake(ctx context.Context, auctionID, bidID snowflake.ID) (*domain.Token, error) {
	token, err := s.repo.FindActive(ctx, s.db, auctionID, bidID)
	if err != nil {
		return nil, err
	}
	if token.Uploaded() {
		return nil, domain.ErrAlreadyUploaded
	}

	consumed, err := s.repo.ConsumeRetake(ctx, s.db, token.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !consumed {
		// The conditional update lost to an upload or an earlier consume.
		current, ferr := s.repo.FindActive(ctx, s.db, auctionID, bidID)
		if ferr == nil && current.Uploaded() {
			return nil, domain.ErrAlreadyUploaded
		}
		return nil, domain.ErrNoRetakesLeft
	}

	token.RetakesLeft--
	return token, nil
}

// MarkUploaded implements domain.Service.
func (s *Service) MarkUploaded(ctx context.Context, auctionID, bidID snowflake.ID) error {
	token, err := s.repo.FindActive(ctx, s.db, auctionID, bidID)
	if err != nil {
		return err
	}
	if token.Uploaded() {
		return nil
	}
	return s.repo.MarkUploaded(ctx, s.db, token.ID, s.clock.Now())
}

func newSecret() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
