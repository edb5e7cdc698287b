package pipeline

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/config"
	"github/fastauth/go-migrate/internal/derive"
	"github/fastauth/go-migrate/internal/identity"
	"github/fastauth/go-migrate/internal/legacy"
	"github/fastauth/go-migrate/internal/queue"
	"github/fastauth/go-migrate/internal/relayer"
	"github/fastauth/go-migrate/internal/rpc"

	// Postgres driver for database/sql
	_ "github.com/lib/pq"
)

// StageAll selects every stage for the work command.
const StageAll = "all"

// Service 装配迁移流水线：队列存储、各阶段处理器与工作池
type Service struct {
	cfg   config.Service
	db    *sql.DB
	store *queue.PGStore
	pools map[string]*queue.Pool
}

// NewService opens the queue database and wires the four stages.
func NewService(cfg config.Service) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Queue.DatabaseURL == "" {
		return nil, errors.New("queue.database_url is required")
	}

	db, err := sql.Open("postgres", cfg.Queue.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open queue database")
	}

	endpointPool, err := rpc.NewEndpointPool(cfg.RPC.EndpointURLs, cfg.RPC.BaseWait, cfg.RPC.BackoffMultiplier)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	client := rpc.NewClient(endpointPool, cfg.RPC.RetryCount, cfg.RPC.RequestTimeout)
	provider := chain.NewProvider(client, cfg.RPC.AccountIndexURL, cfg.RPC.BlockHeightMargin, cfg.RPC.RequestTimeout)

	operatorKey, err := chain.ParseSecretKey(cfg.Legacy.OperatorSecretKey)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "invalid legacy.operator_secret_key")
	}

	tokenKey := operatorKey
	if cfg.Token.SecretKey != "" {
		tokenKey, err = chain.ParseSecretKey(cfg.Token.SecretKey)
		if err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "invalid token.secret_key")
		}
	}

	legacyClient := legacy.NewClient(cfg.Legacy.BaseURL, operatorKey, cfg.Legacy.RequestTimeout)
	deriveClient := derive.NewClient(provider, cfg.Derive.ContractID, cfg.Derive.IssuerDomain, cfg.Derive.DomainID)
	minter := identity.NewTokenMinter(tokenKey, cfg.Derive.IssuerDomain, cfg.Token.Audience, cfg.Token.TTL)

	signerPool, err := relayer.NewSignerPool(cfg.Relayer.Signers)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	relayService := relayer.NewService(provider, signerPool, cfg.Relayer.BlockHashTTL)

	store := queue.NewPGStore(db, cfg.Queue.MaxAttempts)

	handlers := map[string]queue.Handler{
		QueueIntake:    NewIntakeStage(minter, legacyClient, deriveClient).Handle,
		QueueProvision: NewProvisionStage(provider).Handle,
		QueueSign:      NewSignStage(legacyClient).Handle,
		QueueRelay:     NewRelayStage(relayService).Handle,
	}

	pools := make(map[string]*queue.Pool, len(handlers))
	for name, handler := range handlers {
		pools[name] = queue.NewPool(
			store,
			name,
			handler,
			cfg.Queue.WorkerCount,
			cfg.Queue.PollInterval,
			cfg.Queue.VisibilityTimeout,
			endpointPool.Backoff,
		)
	}

	return &Service{
		cfg:   cfg,
		db:    db,
		store: store,
		pools: pools,
	}, nil
}

// Close releases the queue database.
func (s *Service) Close() error {
	return s.db.Close()
}

// Seed streams the identity export and enqueues one intake job per record.
// skip allows restarting a partially seeded export.
func (s *Service) Seed(ctx context.Context, export io.Reader, skip int) (int, error) {
	reader := identity.NewExportReader(export)

	if skip > 0 {
		if err := reader.Skip(skip); err != nil {
			return 0, err
		}

		log.Info().Int("skipped", skip).Msg("Skipped already-seeded export lines")
	}

	seeded := 0
	for {
		id, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return seeded, err
		}

		err = s.store.Enqueue(ctx, queue.Message{
			Queue:   QueueIntake,
			Payload: IntakeJob{Identity: *id},
		})
		if err != nil {
			return seeded, errors.Wrapf(err, "failed to seed identity at line %d", reader.Line())
		}

		seeded++
		if seeded%1000 == 0 {
			log.Info().Int("seeded", seeded).Msg("Seeding identity export")
		}
	}

	log.Info().Int("seeded", seeded).Msg("Identity export seeded")

	return seeded, nil
}

// ResolveStages expands the "all" selector and validates stage names.
func ResolveStages(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one stage name is required")
	}

	for _, name := range names {
		if name == StageAll {
			return append([]string(nil), StageQueues...), nil
		}
	}

	valid := make(map[string]struct{}, len(StageQueues))
	for _, q := range StageQueues {
		valid[q] = struct{}{}
	}

	for _, name := range names {
		if _, ok := valid[name]; !ok {
			return nil, errors.Errorf("unknown stage %q, valid stages: %v", name, StageQueues)
		}
	}

	return names, nil
}

// Work runs the worker pools of the selected stages until the context is
// cancelled. Stages execute concurrently and independently.
func (s *Service) Work(ctx context.Context, stages []string) error {
	selected, err := ResolveStages(stages)
	if err != nil {
		return err
	}

	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "queue database is unreachable")
	}

	var wg sync.WaitGroup
	for _, stage := range selected {
		pool := s.pools[stage]

		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Run(ctx)
		}()
	}

	wg.Wait()

	return nil
}

// WaitHealthy pings the queue database until it responds or the timeout
// elapses, for the probe command.
func (s *Service) WaitHealthy(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return errors.Wrap(s.db.PingContext(ctx), "queue database is unreachable")
}
