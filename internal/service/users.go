package service

import (
	"context"
	"fmt"
	"time"

	"trace-service/internal/broker"
	"trace-service/internal/chain"
	"trace-service/internal/models"
	"trace-service/internal/redisclient"
	"trace-service/internal/util"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserDirectory resolves on-chain actor records, read-through cached in
// Redis, and handles admin registrations.
type UserDirectory struct {
	client         chain.Client
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewUserDirectory creates a new user directory
func NewUserDirectory(client chain.Client, redis *redisclient.Client, eventPublisher *broker.EventPublisher) *UserDirectory {
	return &UserDirectory{
		client:         client,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// Lookup returns the actor registered under an address. Cache failures fall
// through to the ledger.
func (d *UserDirectory) Lookup(ctx context.Context, address string) (*models.UserRecord, error) {
	ctx, span := util.StartSpan(ctx, "UserDirectory.Lookup")
	defer span.End()

	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address: %s", address)
	}
	account := common.HexToAddress(address)

	if d.redis != nil {
		cached, err := d.redis.GetUserRecord(ctx, account.Hex())
		if err != nil {
			d.logger.Warn("User cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	record, err := d.client.UserByAddress(ctx, account)
	if err != nil {
		util.ChainReadFailures.WithLabelValues("user_by_address").Inc()
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if d.redis != nil && record != nil {
		if err := d.redis.SetUserRecord(ctx, record); err != nil {
			d.logger.Warn("User cache write failed", zap.Error(err))
		}
	}
	return record, nil
}

// RegisterRequest is the admin registration payload.
type RegisterRequest struct {
	Address string `json:"address" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Role    string `json:"role" binding:"required"`
}

// Register submits a user registration, waits for confirmation, invalidates
// the cache entry and publishes a UserRegistered event.
func (d *UserDirectory) Register(ctx context.Context, req *RegisterRequest) (*models.UserRecord, error) {
	ctx, span := util.StartSpan(ctx, "UserDirectory.Register")
	defer span.End()

	if !common.IsHexAddress(req.Address) {
		return nil, fmt.Errorf("invalid address: %s", req.Address)
	}
	role, ok := models.ParseRole(req.Role)
	if !ok {
		return nil, fmt.Errorf("unknown role: %s", req.Role)
	}
	account := common.HexToAddress(req.Address)

	pending, err := d.client.RegisterUser(ctx, account, req.Name, uint8(role))
	if err != nil {
		return nil, fmt.Errorf("failed to submit registration: %w", err)
	}
	util.TxSubmittedTotal.WithLabelValues("register_user").Inc()

	if err := pending.Wait(ctx); err != nil {
		util.TxFailedTotal.WithLabelValues("register_user", chain.Classify(err).String()).Inc()
		return nil, fmt.Errorf("registration not confirmed: %w", err)
	}
	util.TxConfirmedTotal.WithLabelValues("register_user").Inc()

	if d.redis != nil {
		if err := d.redis.InvalidateUserRecord(ctx, account.Hex()); err != nil {
			d.logger.Warn("User cache invalidation failed", zap.Error(err))
		}
	}

	if d.eventPublisher != nil {
		event := &models.UserRegisteredEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeUserRegistered,
				Timestamp: time.Now(),
			},
			Address: account.Hex(),
			Name:    req.Name,
			Role:    uint8(role),
		}
		if err := d.eventPublisher.PublishUserRegistered(ctx, event); err != nil {
			d.logger.Error("Failed to publish UserRegistered event", zap.Error(err))
		}
	}

	d.logger.Info("User registered",
		zap.String("address", account.Hex()),
		zap.String("role", role.String()))

	return &models.UserRecord{Address: account.Hex(), Name: req.Name, Role: role}, nil
}
