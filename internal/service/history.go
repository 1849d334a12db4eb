package service

import (
	"context"
	"fmt"

	"trace-service/internal/chain"
	"trace-service/internal/models"
	"trace-service/internal/store"
	"trace-service/internal/util"

	"go.uber.org/zap"
)

// HistoryService assembles the traced journey of an item: the ordered
// transition log enriched with per-token attributes and actor records.
type HistoryService struct {
	client      chain.Client
	store       *store.Store
	users       *UserDirectory
	priceFactor int64
	logger      *zap.Logger
}

// NewHistoryService creates a new history service
func NewHistoryService(client chain.Client, st *store.Store, users *UserDirectory, priceFactor int64) *HistoryService {
	return &HistoryService{
		client:      client,
		store:       st,
		users:       users,
		priceFactor: priceFactor,
		logger:      util.GetLogger(),
	}
}

// Journey returns the item's transition history as display cards, oldest
// first. The mirrored audit table is preferred; an empty or failing mirror
// falls back to a direct log query. Per-step enrichment failures degrade the
// card instead of failing the journey.
func (s *HistoryService) Journey(ctx context.Context, tokenID uint64) ([]models.HistoryCard, error) {
	ctx, span := util.StartSpan(ctx, "HistoryService.Journey")
	defer span.End()

	records := s.loadRecords(ctx, tokenID)
	if records == nil {
		var err error
		records, err = s.client.FilterHistory(ctx, tokenID)
		if err != nil {
			util.ChainReadFailures.WithLabelValues("filter_history").Inc()
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
	}

	attrs, err := s.client.TokenAttrs(ctx, tokenID)
	if err != nil {
		util.ChainReadFailures.WithLabelValues("token_attrs").Inc()
		return nil, fmt.Errorf("failed to read token attributes: %w", err)
	}

	cards := make([]models.HistoryCard, 0, len(records))
	for _, rec := range records {
		card := models.HistoryCard{
			TokenID:     tokenID,
			Owner:       rec.From,
			StateLabel:  rec.State.ConsumerLabel(),
			Product:     attrs.Product,
			Batch:       attrs.Batch,
			Material:    attrs.Material,
			MinTemp:     attrs.MinTemp,
			MaxTemp:     attrs.MaxTemp,
			BlockNumber: rec.BlockNumber,
			BlockTime:   rec.BlockTime,
			TxHash:      rec.TxHash,
		}
		if attrs.Price != nil && attrs.Price.Sign() > 0 {
			card.PriceDisplay = models.DisplayPrice(attrs.Price, s.priceFactor)
		}

		if s.users != nil {
			user, err := s.users.Lookup(ctx, rec.From)
			if err != nil {
				s.logger.Warn("Skipping actor enrichment for history step",
					zap.Uint64("token_id", tokenID),
					zap.String("from", rec.From),
					zap.Error(err))
			} else {
				card.User = user
			}
		}

		cards = append(cards, card)
	}
	return cards, nil
}

// loadRecords reads the mirrored transition log; nil means fall back to the
// chain.
func (s *HistoryService) loadRecords(ctx context.Context, tokenID uint64) []models.EventRecord {
	if s.store == nil {
		return nil
	}
	records, err := s.store.ListEventRecordsByToken(ctx, tokenID)
	if err != nil {
		s.logger.Warn("Audit mirror unavailable, falling back to log query", zap.Error(err))
		return nil
	}
	if len(records) == 0 {
		return nil
	}
	return records
}
