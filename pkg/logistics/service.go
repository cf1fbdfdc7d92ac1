package logistics

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"agrichain/internal/txqueue"
	"agrichain/pkg/farm"
	"agrichain/pkg/ledger"
)

// Farms is the part of the farm registry shipments depend on.
type Farms interface {
	GetFarmDetails(ctx context.Context, id string) (farm.Farm, error)
}

// Service is the logistics-tracking contract.
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

// CreateShipment opens a shipment from a verified farm owned by the sender.
func (s *Service) CreateShipment(ctx context.Context, tx ledger.Tx, id, farmID, cropType string, quantity uint64, origin, destination string) error {
	id, farmID = strings.TrimSpace(id), strings.TrimSpace(farmID)
	cropType, origin, destination = strings.TrimSpace(cropType), strings.TrimSpace(origin), strings.TrimSpace(destination)
	return s.queue.Do(ctx, "create-shipment", func(ctx context.Context) error {
		if err := tx.Authenticated(); err != nil {
			return err
		}
		if err := validateShipment(id, farmID, cropType, origin, destination); err != nil {
			return err
		}
		if quantity == 0 {
			return ErrInvalidQuantity
		}
		_, exists, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if exists {
			return ErrShipmentExists
		}
		f, err := s.farms.GetFarmDetails(ctx, farmID)
		if errors.Is(err, farm.ErrFarmNotFound) {
			return ErrFarmNotFound
		}
		if err != nil {
			return err
		}
		if f.Owner != tx.Sender {
			return ErrUnauthorized
		}
		if f.Status != farm.StatusVerified {
			return ErrFarmNotVerified
		}

		height := s.clock.Height()
		sh := Shipment{
			ID:              id,
			FarmID:          farmID,
			Owner:           tx.Sender,
			CropType:        cropType,
			Quantity:        quantity,
			Origin:          origin,
			Destination:     destination,
			Status:          StatusCreated,
			CurrentLocation: origin,
			CreationDate:    height,
			LastUpdated:     height,
			Updates:         1,
		}
		entry := HistoryEntry{
			Sequence:    0,
			Status:      StatusCreated,
			Location:    origin,
			BlockHeight: height,
			UpdatedBy:   tx.Sender,
			TxID:        tx.TxID,
		}
		if err := s.repo.Append(ctx, sh, entry); err != nil {
			return err
		}
		s.logger.Info("shipment created",
			zap.String("tx-id", tx.TxID),
			zap.String("shipment-id", id),
			zap.String("farm-id", farmID),
			zap.Uint64("quantity", quantity))
		return nil
	})
}

// UpdateShipmentStatus moves the shipment along the allowed transitions and
// appends a history entry. The shipment owner and the contract owner may update.
func (s *Service) UpdateShipmentStatus(ctx context.Context, tx ledger.Tx, id string, status Status, location string) error {
	id, location = strings.TrimSpace(id), strings.TrimSpace(location)
	return s.queue.Do(ctx, "update-shipment-status", func(ctx context.Context) error {
		if err := tx.Authenticated(); err != nil {
			return err
		}
		if !status.Valid() {
			return ErrInvalidStatus
		}
		if err := ledger.RequireText(ErrInvalidInput.Code, "current-location", location); err != nil {
			return err
		}
		sh, ok, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		if tx.Sender != sh.Owner && !s.gov.IsOwner(tx.Sender) {
			return ErrUnauthorized
		}
		if !CanTransition(sh.Status, status) {
			return ErrInvalidTransition
		}

		previous := sh.Status
		height := s.clock.Height()
		entry := HistoryEntry{
			Sequence:    sh.Updates,
			Status:      status,
			Location:    location,
			BlockHeight: height,
			UpdatedBy:   tx.Sender,
			TxID:        tx.TxID,
		}
		sh.Status = status
		sh.CurrentLocation = location
		sh.LastUpdated = height
		sh.Updates++
		if err := s.repo.Append(ctx, sh, entry); err != nil {
			return err
		}
		s.logger.Info("shipment updated",
			zap.String("tx-id", tx.TxID),
			zap.String("shipment-id", id),
			zap.Stringer("from", previous),
			zap.Stringer("to", status),
			zap.String("location", location))
		return nil
	})
}

func (s *Service) GetShipmentDetails(ctx context.Context, id string) (Shipment, error) {
	id = strings.TrimSpace(id)
	return txqueue.Call(ctx, s.queue, "get-shipment-details", func(ctx context.Context) (Shipment, error) {
		sh, ok, err := s.repo.Get(ctx, id)
		if err != nil {
			return Shipment{}, err
		}
		if !ok {
			return Shipment{}, ErrNotFound
		}
		return sh, nil
	})
}

// GetShipmentHistory returns the entries oldest first.
func (s *Service) GetShipmentHistory(ctx context.Context, id string) ([]HistoryEntry, error) {
	id = strings.TrimSpace(id)
	return txqueue.Call(ctx, s.queue, "get-shipment-history", func(ctx context.Context) ([]HistoryEntry, error) {
		_, ok, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotFound
		}
		return s.repo.History(ctx, id)
	})
}

func (s *Service) ShipmentExists(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	return txqueue.Call(ctx, s.queue, "shipment-exists", func(ctx context.Context) (bool, error) {
		_, ok, err := s.repo.Get(ctx, id)
		return ok, err
	})
}

func (s *Service) Close() {
	s.queue.Close()
}

func validateShipment(id, farmID, cropType, origin, destination string) error {
	if err := ledger.RequireID(ErrInvalidInput.Code, "shipment-id", id); err != nil {
		return err
	}
	if err := ledger.RequirePrintable(ErrInvalidInput.Code, "farm-id", farmID); err != nil {
		return err
	}
	for _, f := range []struct{ name, value string }{
		{"crop-type", cropType},
		{"origin", origin},
		{"destination", destination},
	} {
		if err := ledger.RequireText(ErrInvalidInput.Code, f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}
