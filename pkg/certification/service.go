package certification

import (
	"context"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"agrichain/internal/txqueue"
	"agrichain/pkg/farm"
	"agrichain/pkg/ledger"
	"agrichain/pkg/roster"
)

// Farms is the part of the farm registry certification depends on.
type Farms interface {
	GetFarmDetails(ctx context.Context, id string) (farm.Farm, error)
}

// Service is the crop-certification contract.
type Service struct {
	repo   *Repository
	farms  Farms
	queue  *txqueue.Queue
	clock  ledger.Clock
	gov    ledger.Governance
	logger *zap.Logger
}

func NewService(repo *Repository, farms Farms, clock ledger.Clock, gov ledger.Governance, logger *zap.Logger, opts ...txqueue.Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		farms:  farms,
		queue:  txqueue.New(ContractName, opts...),
		clock:  clock,
		gov:    gov,
		logger: logger.With(zap.String("contract", ContractName)),
	}
}

// IssueCertification records a certification for a verified farm.
func (s *Service) IssueCertification(ctx context.Context, tx ledger.Tx, id, farmID, cropType string, certType Type, expiryBlocks uint64) error {
	id, farmID, cropType = strings.TrimSpace(id), strings.TrimSpace(farmID), strings.TrimSpace(cropType)
	return s.queue.Do(ctx, "issue-certification", func(ctx context.Context) error {
		if err := tx.Authenticated(); err != nil {
			return err
		}
		if err := s.requireCertifier(ctx, tx.Sender); err != nil {
			return err
		}
		if err := ledger.RequireID(ErrInvalidInput.Code, "certification-id", id); err != nil {
			return err
		}
		if err := ledger.RequireText(ErrInvalidInput.Code, "crop-type", cropType); err != nil {
			return err
		}
		if err := ledger.RequirePrintable(ErrInvalidInput.Code, "farm-id", farmID); err != nil {
			return err
		}
		if !certType.Valid() {
			return ErrInvalidType
		}
		if expiryBlocks == 0 {
			return ErrInvalidExpiry
		}
		_, exists, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if exists {
			return ErrCertificationExists
		}
		f, err := s.farms.GetFarmDetails(ctx, farmID)
		if errors.Is(err, farm.ErrFarmNotFound) {
			return ErrFarmNotFound
		}
		if err != nil {
			return err
		}
		if f.Status != farm.StatusVerified {
			return ErrFarmNotVerified
		}

		height := s.clock.Height()
		if expiryBlocks > math.MaxUint64-height {
			return ErrInvalidExpiry
		}
		c := Certification{
			ID:         id,
			FarmID:     farmID,
			CropType:   cropType,
			Type:       certType,
			IssueDate:  height,
			ExpiryDate: height + expiryBlocks,
			Certifier:  tx.Sender,
		}
		if err := s.repo.Save(ctx, c, true); err != nil {
			return err
		}
		s.logger.Info("certification issued",
			zap.String("tx-id", tx.TxID),
			zap.String("certification-id", id),
			zap.String("farm-id", farmID),
			zap.Stringer("type", certType),
			zap.Uint64("expiry-date", c.ExpiryDate))
		return nil
	})
}

// RevokeCertification may be called by the issuing certifier or the contract owner.
func (s *Service) RevokeCertification(ctx context.Context, tx ledger.Tx, id string) error {
	id = strings.TrimSpace(id)
	return s.queue.Do(ctx, "revoke-certification", func(ctx context.Context) error {
		if err := tx.Authenticated(); err != nil {
			return err
		}
		c, ok, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		if tx.Sender != c.Certifier && !s.gov.IsOwner(tx.Sender) {
			return ErrUnauthorized
		}
		if c.Revoked {
			return ErrAlreadyRevoked
		}
		c.Revoked = true
		c.RevokedAt = s.clock.Height()
		c.RevokedBy = tx.Sender
		if err := s.repo.Save(ctx, c, false); err != nil {
			return err
		}
		s.logger.Info("certification revoked",
			zap.String("tx-id", tx.TxID),
			zap.String("certification-id", id),
			zap.String("sender", string(tx.Sender)))
		return nil
	})
}

// IsCertificationValid is false for unknown, revoked or expired certifications and
// for certifications of farms that are no longer verified.
func (s *Service) IsCertificationValid(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	return txqueue.Call(ctx, s.queue, "is-certification-valid", func(ctx context.Context) (bool, error) {
		c, ok, err := s.repo.Get(ctx, id)
		if err != nil || !ok {
			return false, err
		}
		if !c.ActiveAt(s.clock.Height()) {
			return false, nil
		}
		f, err := s.farms.GetFarmDetails(ctx, c.FarmID)
		if errors.Is(err, farm.ErrFarmNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return f.Status == farm.StatusVerified, nil
	})
}

func (s *Service) GetCertificationDetails(ctx context.Context, id string) (Certification, error) {
	id = strings.TrimSpace(id)
	return txqueue.Call(ctx, s.queue, "get-certification-details", func(ctx context.Context) (Certification, error) {
		c, ok, err := s.repo.Get(ctx, id)
		if err != nil {
			return Certification{}, err
		}
		if !ok {
			return Certification{}, ErrNotFound
		}
		return c, nil
	})
}

// ListFarmCertifications returns every certification issued to farmID, revoked ones included.
func (s *Service) ListFarmCertifications(ctx context.Context, farmID string) ([]Certification, error) {
	farmID = strings.TrimSpace(farmID)
	return txqueue.Call(ctx, s.queue, "list-farm-certifications", func(ctx context.Context) ([]Certification, error) {
		return s.repo.ListByFarm(ctx, farmID)
	})
}

// AddCertifier grants p the right to issue certifications. Owner only.
func (s *Service) AddCertifier(ctx context.Context, tx ledger.Tx, p ledger.Principal) error {
	return s.queue.Do(ctx, "add-certifier", func(ctx context.Context) error {
		if err := s.requireOwner(tx); err != nil {
			return err
		}
		if !p.Valid() {
			return ledger.ErrInvalidPrincipal
		}
		err := s.repo.Certifiers().Add(ctx, p, tx.Sender, s.clock.Height())
		if errors.Is(err, roster.ErrMember) {
			return ErrAlreadyCertifier
		}
		if err != nil {
			return err
		}
		s.logger.Info("certifier added", zap.String("tx-id", tx.TxID), zap.String("certifier", string(p)))
		return nil
	})
}

// RemoveCertifier revokes p's right to issue certifications. Owner only.
func (s *Service) RemoveCertifier(ctx context.Context, tx ledger.Tx, p ledger.Principal) error {
	return s.queue.Do(ctx, "remove-certifier", func(ctx context.Context) error {
		if err := s.requireOwner(tx); err != nil {
			return err
		}
		err := s.repo.Certifiers().Remove(ctx, p)
		if errors.Is(err, roster.ErrNotMember) {
			return ErrNotCertifier
		}
		if err != nil {
			return err
		}
		s.logger.Info("certifier removed", zap.String("tx-id", tx.TxID), zap.String("certifier", string(p)))
		return nil
	})
}

// IsCertifier reports roster membership; the contract owner is implicitly a certifier.
func (s *Service) IsCertifier(ctx context.Context, p ledger.Principal) (bool, error) {
	return txqueue.Call(ctx, s.queue, "is-certifier", func(ctx context.Context) (bool, error) {
		if s.gov.IsOwner(p) {
			return true, nil
		}
		return s.repo.Certifiers().Contains(ctx, p)
	})
}

// ListCertifiers returns the roster members, excluding the implicit owner.
func (s *Service) ListCertifiers(ctx context.Context) ([]roster.Member, error) {
	return txqueue.Call(ctx, s.queue, "list-certifiers", s.repo.Certifiers().List)
}

func (s *Service) Close() {
	s.queue.Close()
}

func (s *Service) requireOwner(tx ledger.Tx) error {
	if err := tx.Authenticated(); err != nil {
		return err
	}
	if !s.gov.IsOwner(tx.Sender) {
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) requireCertifier(ctx context.Context, p ledger.Principal) error {
	if s.gov.IsOwner(p) {
		return nil
	}
	ok, err := s.repo.Certifiers().Contains(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}
