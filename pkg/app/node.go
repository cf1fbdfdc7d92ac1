package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"agrichain/internal/txqueue"
	"agrichain/pkg/certification"
	"agrichain/pkg/config"
	"agrichain/pkg/contract"
	"agrichain/pkg/farm"
	"agrichain/pkg/ledger"
	"agrichain/pkg/logistics"
	"agrichain/pkg/metrics"
	"agrichain/pkg/quality"
	"agrichain/pkg/storage"
	"agrichain/pkg/storage/leveldbstore"
	"agrichain/pkg/storage/sqlstore"
)

// Node is one running ledger: world state, clock and the four contracts.
type Node struct {
	Store    storage.Store
	Clock    *ledger.BlockClock
	Gov      ledger.Governance
	Metrics  *metrics.Metrics
	Services contract.Services
	Registry *contract.Registry
	logger   *zap.Logger
}

// openStore selects the world-state backend named by cfg.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Type {
	case storage.TypeMemory, storage.TypeSQLite, storage.TypeSQLite3:
		s, err := sqlstore.Open(ctx, cfg.Type, cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case storage.TypeLevelDB:
		s, err := leveldbstore.Open(cfg.Path, true)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// OpenNode composes persistence and domain services. The caller must Close it.
func OpenNode(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Node, error) {
	owner, err := cfg.Owner()
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s storage: %w", cfg.Storage.Type, err)
	}
	genesis, err := ledger.LoadGenesis(ctx, store, time.Now())
	if err != nil {
		store.Close()
		return nil, err
	}

	n := &Node{
		Store:   store,
		Clock:   ledger.NewBlockClock(genesis, cfg.GetBlockInterval(), 0),
		Gov:     ledger.Governance{Owner: owner},
		Metrics: metrics.New(),
		logger:  logger,
	}
	opt := txqueue.WithObserver(n.Metrics)
	farms := farm.NewService(farm.NewRepository(store), n.Clock, n.Gov, logger, opt)
	shipments := logistics.NewService(logistics.NewRepository(store), farms, n.Clock, n.Gov, logger, opt)
	n.Services = contract.Services{
		Farms:          farms,
		Certifications: certification.NewService(certification.NewRepository(store), farms, n.Clock, n.Gov, logger, opt),
		Quality:        quality.NewService(quality.NewRepository(store), shipments, n.Clock, n.Gov, logger, opt),
		Logistics:      shipments,
	}
	n.Registry = contract.New(n.Services)

	if err := n.seedRosters(ctx, cfg.Governance); err != nil {
		n.Close()
		return nil, err
	}
	if owner == "" {
		logger.Warn("no contract owner configured; farm reviews and roster changes are locked",
			zap.String("setting", "governance.contract_owner"))
	}
	logger.Info("ledger node ready",
		zap.String("storage", cfg.Storage.Type),
		zap.Time("genesis", genesis),
		zap.Uint64("height", n.Clock.Height()),
		zap.String("contract-owner", string(owner)))
	return n, nil
}

// seedRosters adds configured certifiers and testers on behalf of the contract owner.
// Principals that are already members are left alone.
func (n *Node) seedRosters(ctx context.Context, gov config.GovernanceConfig) error {
	if n.Gov.Owner == "" {
		if len(gov.Certifiers)+len(gov.Testers) > 0 {
			n.logger.Warn("governance rosters configured without a contract owner; skipping")
		}
		return nil
	}
	tx := ledger.NewTx(n.Gov.Owner)
	for _, p := range config.Principals(gov.Certifiers) {
		err := n.Services.Certifications.AddCertifier(ctx, tx, p)
		if err != nil && !errors.Is(err, certification.ErrAlreadyCertifier) {
			return fmt.Errorf("seed certifier %s: %w", p, err)
		}
	}
	for _, p := range config.Principals(gov.Testers) {
		err := n.Services.Quality.AddTester(ctx, tx, p)
		if err != nil && !errors.Is(err, quality.ErrAlreadyTester) {
			return fmt.Errorf("seed tester %s: %w", p, err)
		}
	}
	return nil
}

// Close stops the contract goroutines before closing the store they write to.
func (n *Node) Close() error {
	n.Services.Quality.Close()
	n.Services.Certifications.Close()
	n.Services.Logistics.Close()
	n.Services.Farms.Close()
	return n.Store.Close()
}
