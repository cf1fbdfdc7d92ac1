package quality

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"agrichain/internal/txqueue"
	"agrichain/pkg/ledger"
	"agrichain/pkg/roster"
)

// Shipments answers whether a shipment is known to the logistics contract.
type Shipments interface {
	ShipmentExists(ctx context.Context, id string) (bool, error)
}

// Service is the quality-verification contract.
type Service struct {
	repo      *Repository
	shipments Shipments
	queue     *txqueue.Queue
	clock     ledger.Clock
	gov       ledger.Governance
	logger    *zap.Logger
}

func NewService(repo *Repository, shipments Shipments, clock ledger.Clock, gov ledger.Governance, logger *zap.Logger, opts ...txqueue.Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		shipments: shipments,
		queue:     txqueue.New(ContractName, opts...),
		clock:     clock,
		gov:       gov,
		logger:    logger.With(zap.String("contract", ContractName)),
	}
}

// AddTester authorizes p to record tests. Owner only.
func (s *Service) AddTester(ctx context.Context, tx ledger.Tx, p ledger.Principal) error {
	return s.queue.Do(ctx, "add-tester", func(ctx context.Context) error {
		if err := s.requireOwner(tx); err != nil {
			return err
		}
		if !p.Valid() {
			return ledger.ErrInvalidPrincipal
		}
		err := s.repo.Testers().Add(ctx, p, tx.Sender, s.clock.Height())
		if errors.Is(err, roster.ErrMember) {
			return ErrAlreadyTester
		}
		if err != nil {
			return err
		}
		s.logger.Info("tester added", zap.String("tx-id", tx.TxID), zap.String("tester", string(p)))
		return nil
	})
}

// RemoveTester withdraws p's authorization. Owner only.
func (s *Service) RemoveTester(ctx context.Context, tx ledger.Tx, p ledger.Principal) error {
	return s.queue.Do(ctx, "remove-tester", func(ctx context.Context) error {
		if err := s.requireOwner(tx); err != nil {
			return err
		}
		err := s.repo.Testers().Remove(ctx, p)
		if errors.Is(err, roster.ErrNotMember) {
			return ErrNotTester
		}
		if err != nil {
			return err
		}
		s.logger.Info("tester removed", zap.String("tx-id", tx.TxID), zap.String("tester", string(p)))
		return nil
	})
}

func (s *Service) IsTester(ctx context.Context, p ledger.Principal) (bool, error) {
	return txqueue.Call(ctx, s.queue, "is-tester", func(ctx context.Context) (bool, error) {
		return s.repo.Testers().Contains(ctx, p)
	})
}

func (s *Service) ListTesters(ctx context.Context) ([]roster.Member, error) {
	return txqueue.Call(ctx, s.queue, "list-testers", s.repo.Testers().List)
}

// RecordTest stores a lab result for an existing shipment. Testers only.
func (s *Service) RecordTest(ctx context.Context, tx ledger.Tx, id, shipmentID, testType, result string, passed bool, notes string) error {
	id, shipmentID = strings.TrimSpace(id), strings.TrimSpace(shipmentID)
	testType, result = strings.TrimSpace(testType), strings.TrimSpace(result)
	return s.queue.Do(ctx, "record-test", func(ctx context.Context) error {
		if err := tx.Authenticated(); err != nil {
			return err
		}
		ok, err := s.repo.Testers().Contains(ctx, tx.Sender)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnauthorized
		}
		if err := validateTest(id, shipmentID, testType, result, notes); err != nil {
			return err
		}
		_, exists, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if exists {
			return ErrTestExists
		}
		known, err := s.shipments.ShipmentExists(ctx, shipmentID)
		if err != nil {
			return err
		}
		if !known {
			return ErrShipmentMissing
		}

		t := Test{
			ID:         id,
			ShipmentID: shipmentID,
			TestType:   testType,
			Result:     result,
			Passed:     passed,
			TestDate:   s.clock.Height(),
			Tester:     tx.Sender,
			Notes:      notes,
		}
		if err := s.repo.Insert(ctx, t); err != nil {
			return err
		}
		s.logger.Info("test recorded",
			zap.String("tx-id", tx.TxID),
			zap.String("test-id", id),
			zap.String("shipment-id", shipmentID),
			zap.Bool("passed", passed))
		return nil
	})
}

func (s *Service) GetTestDetails(ctx context.Context, id string) (Test, error) {
	id = strings.TrimSpace(id)
	return txqueue.Call(ctx, s.queue, "get-test-details", func(ctx context.Context) (Test, error) {
		t, ok, err := s.repo.Get(ctx, id)
		if err != nil {
			return Test{}, err
		}
		if !ok {
			return Test{}, ErrNotFound
		}
		return t, nil
	})
}

// ListShipmentTests returns the shipment's tests ordered by test id.
func (s *Service) ListShipmentTests(ctx context.Context, shipmentID string) ([]Test, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	return txqueue.Call(ctx, s.queue, "list-shipment-tests", func(ctx context.Context) ([]Test, error) {
		return s.repo.ListByShipment(ctx, shipmentID)
	})
}

// ShipmentPassedAllTests is false for shipments without any recorded test.
func (s *Service) ShipmentPassedAllTests(ctx context.Context, shipmentID string) (bool, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	return txqueue.Call(ctx, s.queue, "shipment-passed-all-tests", func(ctx context.Context) (bool, error) {
		tests, err := s.repo.ListByShipment(ctx, shipmentID)
		if err != nil {
			return false, err
		}
		return AllPassed(tests), nil
	})
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

func validateTest(id, shipmentID, testType, result, notes string) error {
	if err := ledger.RequireID(ErrInvalidInput.Code, "test-id", id); err != nil {
		return err
	}
	if err := ledger.RequirePrintable(ErrInvalidInput.Code, "shipment-id", shipmentID); err != nil {
		return err
	}
	if err := ledger.RequireText(ErrInvalidInput.Code, "test-type", testType); err != nil {
		return err
	}
	if err := ledger.RequireText(ErrInvalidInput.Code, "result", result); err != nil {
		return err
	}
	return ledger.RequireLength(ErrInvalidInput.Code, "notes", notes, 0, ledger.MaxNotesLength)
}
