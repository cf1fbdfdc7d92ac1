package farm

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"agrichain/internal/txqueue"
	"agrichain/pkg/ledger"
)

// Service is the farm-verification contract. Every call runs on the contract's
// transaction queue, so reads never observe a half-applied registration.
type Service struct {
	repo   *Repository
	queue  *txqueue.Queue
	clock  ledger.Clock
	gov    ledger.Governance
	logger *zap.Logger
}

// NewService starts the contract goroutine immediately.
func NewService(repo *Repository, clock ledger.Clock, gov ledger.Governance, logger *zap.Logger, opts ...txqueue.Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		queue:  txqueue.New(ContractName, opts...),
		clock:  clock,
		gov:    gov,
		logger: logger.With(zap.String("contract", ContractName)),
	}
}

// RegisterFarm records a new pending farm owned by the sender.
func (s *Service) RegisterFarm(ctx context.Context, tx ledger.Tx, id, name, location string) error {
	id, name, location = strings.TrimSpace(id), strings.TrimSpace(name), strings.TrimSpace(location)
	return s.queue.Do(ctx, "register-farm", func(ctx context.Context) error {
		if err := tx.Authenticated(); err != nil {
			return err
		}
		if err := validateFarm(id, name, location); err != nil {
			return err
		}
		_, exists, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if exists {
			return ErrFarmExists
		}
		height := s.clock.Height()
		f := Farm{
			ID:               id,
			Owner:            tx.Sender,
			Name:             name,
			Location:         location,
			Status:           StatusPending,
			RegistrationDate: height,
			LastUpdated:      height,
		}
		if err := s.repo.Save(ctx, f); err != nil {
			return err
		}
		if err := s.repo.IndexOwner(ctx, tx.Sender, id); err != nil {
			return err
		}
		s.logger.Info("farm registered",
			zap.String("tx-id", tx.TxID),
			zap.String("farm-id", id),
			zap.String("owner", string(tx.Sender)),
			zap.Uint64("height", height))
		return nil
	})
}

// VerifyFarm moves a pending or suspended farm to verified.
func (s *Service) VerifyFarm(ctx context.Context, tx ledger.Tx, id string) error {
	return s.review(ctx, tx, "verify-farm", id, StatusVerified)
}

// SuspendFarm moves a pending or verified farm to suspended.
func (s *Service) SuspendFarm(ctx context.Context, tx ledger.Tx, id string) error {
	return s.review(ctx, tx, "suspend-farm", id, StatusSuspended)
}

func (s *Service) review(ctx context.Context, tx ledger.Tx, function, id string, target Status) error {
	id = strings.TrimSpace(id)
	return s.queue.Do(ctx, function, func(ctx context.Context) error {
		if err := tx.Authenticated(); err != nil {
			return err
		}
		if !s.gov.IsOwner(tx.Sender) {
			return ErrUnauthorized
		}
		f, ok, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrFarmNotFound
		}
		if f.Status == target {
			if target == StatusVerified {
				return ErrAlreadyVerified
			}
			return ErrAlreadySuspended
		}
		previous := f.Status
		f.Status = target
		f.LastUpdated = s.clock.Height()
		f.ReviewedBy = tx.Sender
		if err := s.repo.Save(ctx, f); err != nil {
			return err
		}
		s.logger.Info("farm reviewed",
			zap.String("tx-id", tx.TxID),
			zap.String("farm-id", id),
			zap.Stringer("from", previous),
			zap.Stringer("to", target))
		return nil
	})
}

// GetFarmDetails returns the farm or ErrFarmNotFound.
func (s *Service) GetFarmDetails(ctx context.Context, id string) (Farm, error) {
	id = strings.TrimSpace(id)
	return txqueue.Call(ctx, s.queue, "get-farm-details", func(ctx context.Context) (Farm, error) {
		f, ok, err := s.repo.Get(ctx, id)
		if err != nil {
			return Farm{}, err
		}
		if !ok {
			return Farm{}, ErrFarmNotFound
		}
		return f, nil
	})
}

// IsFarmVerified is false for unknown farms.
func (s *Service) IsFarmVerified(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	return txqueue.Call(ctx, s.queue, "is-farm-verified", func(ctx context.Context) (bool, error) {
		f, ok, err := s.repo.Get(ctx, id)
		if err != nil || !ok {
			return false, err
		}
		return f.Status == StatusVerified, nil
	})
}

// ListFarms returns every registered farm.
func (s *Service) ListFarms(ctx context.Context) ([]Farm, error) {
	return txqueue.Call(ctx, s.queue, "list-farms", s.repo.List)
}

// ListFarmsByOwner returns the farms registered by owner.
func (s *Service) ListFarmsByOwner(ctx context.Context, owner ledger.Principal) ([]Farm, error) {
	return txqueue.Call(ctx, s.queue, "list-farms-by-owner", func(ctx context.Context) ([]Farm, error) {
		return s.repo.ListByOwner(ctx, owner)
	})
}

// Close stops the contract goroutine.
func (s *Service) Close() {
	s.queue.Close()
}

// validateFarm keeps the registration rules near the service so every transport reuses them.
func validateFarm(id, name, location string) error {
	if err := ledger.RequireID(ErrInvalidInput.Code, "farm-id", id); err != nil {
		return err
	}
	if err := ledger.RequireText(ErrInvalidInput.Code, "name", name); err != nil {
		return err
	}
	return ledger.RequireText(ErrInvalidInput.Code, "location", location)
}
