package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/cache"
	"github.com/fekuna/omnipos-inventory-service/internal/chance"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"github.com/fekuna/omnipos-inventory-service/internal/warmup"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const drillProductID = "loadtest-product"

type drillOptions struct {
	Algorithm      string
	CacheMode      string
	Workers        int
	Requests       int
	Stock          int
	TimeoutMs      int
	Latency        time.Duration
	RaceDelayP     float64
	MaxRaceDelay   time.Duration
	DuplicateP     float64
	StaleReadP     float64
	DroppedWriteP  float64
	Seed           uint64
	SettleDuration time.Duration
}

type drillReport struct {
	Requests     int
	Succeeded    int64
	Insufficient int64
	TimedOut     int64
	Failed       int64

	PersistedReserved  int
	PersistedAvailable int
	// Divergence is persisted reservations minus acknowledged ones.
	// Timed out requests may still land, so a positive value is expected
	// when TimedOut > 0.
	Divergence int
	Oversold   bool
	Drift      error
}

var drill drillOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reserve one unit at a time against an in-memory ledger",
	Long: `Run a reservation drill against an in-memory repository and cache.

Examples:
  # Lock-based reservations, no fault injection
  loadtest run --algorithm lock_based --requests 500 --stock 200

  # Fast path with race delays and duplicate writes
  loadtest run --algorithm fast_path --race-delay-probability 0.5 --duplicate-write-probability 0.2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		report, err := simulate(cmd.Context(), drill, log)
		if err != nil {
			return err
		}
		logReport(log, drill, report)
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&drill.Algorithm, "algorithm", string(variant.AlgorithmLockBased), "Reservation algorithm: lock_based or fast_path")
	f.StringVar(&drill.CacheMode, "cache-mode", string(variant.CacheModeStandard), "Cache mode: standard or optimized")
	f.IntVar(&drill.Workers, "workers", 20, "Concurrent workers")
	f.IntVar(&drill.Requests, "requests", 200, "Total reservations of one unit")
	f.IntVar(&drill.Stock, "stock", 100, "Initial quantity of the product")
	f.IntVar(&drill.TimeoutMs, "timeout-ms", 0, "Per-request timeout, 0 waits for completion")
	f.DurationVar(&drill.Latency, "latency", 2*time.Millisecond, "Simulated repository latency per call")
	f.Float64Var(&drill.RaceDelayP, "race-delay-probability", 0, "Fast-path chance of pausing between read and write")
	f.DurationVar(&drill.MaxRaceDelay, "max-race-delay", 20*time.Millisecond, "Upper bound of a fast-path pause")
	f.Float64Var(&drill.DuplicateP, "duplicate-write-probability", 0, "Fast-path chance of a duplicate write")
	f.Float64Var(&drill.StaleReadP, "stale-read-probability", 0, "Optimized-mode chance of flagging a hit as stale")
	f.Float64Var(&drill.DroppedWriteP, "dropped-write-probability", 0, "Optimized-mode chance of dropping a cache write")
	f.Uint64Var(&drill.Seed, "seed", uint64(time.Now().UnixNano()), "Seed for fault injection")
	f.DurationVar(&drill.SettleDuration, "settle", 500*time.Millisecond, "Wait for timed out requests before reading the ledger")

	rootCmd.AddCommand(runCmd)
}

func simulate(ctx context.Context, opts drillOptions, log logger.ZapLogger) (drillReport, error) {
	alg, err := variant.ParseAlgorithm(opts.Algorithm)
	if err != nil {
		return drillReport{}, err
	}
	mode, err := variant.ParseCacheMode(opts.CacheMode)
	if err != nil {
		return drillReport{}, err
	}
	if opts.Workers <= 0 || opts.Requests < 0 {
		return drillReport{}, fmt.Errorf("workers must be positive and requests non-negative")
	}

	dice := chance.New(opts.Seed)
	events := telemetry.NewRecorder()
	repo := repository.NewMemoryRepository(opts.Latency)
	store := cache.NewMemoryStore(time.Minute)

	layer := cache.NewLayer(store, cache.CoherencyConfig{
		StaleReadProbability:    opts.StaleReadP,
		DroppedWriteProbability: opts.DroppedWriteP,
	}, dice, events, log)
	controller := usecase.NewController(repo, layer, usecase.NewLocalLocker(), usecase.ControllerConfig{
		LedgerCacheTTL:            time.Minute,
		RaceDelayProbability:      opts.RaceDelayP,
		MaxRaceDelay:              opts.MaxRaceDelay,
		DuplicateWriteProbability: opts.DuplicateP,
	}, dice, events, log)
	strategy := warmup.NewStrategy(store, warmup.Config{}, dice, events, log)
	uc := usecase.NewInventoryUseCase(repo, controller, strategy, events, log)

	if _, err := uc.CreateInventory(ctx, &dto.CreateInventoryInput{ProductID: drillProductID, Quantity: opts.Stock}); err != nil {
		return drillReport{}, fmt.Errorf("seed ledger: %w", err)
	}

	sel := variant.Selection{
		CacheMode:  mode,
		Algorithm:  alg,
		TimeoutMs:  opts.TimeoutMs,
		WarmupMode: variant.WarmupOnDemand,
	}

	report := drillReport{Requests: opts.Requests}
	var succeeded, insufficient, timedOut, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := 0; i < opts.Requests; i++ {
		g.Go(func() error {
			_, err := uc.ApplyInventoryAction(gctx, &dto.ApplyActionInput{
				ProductID: drillProductID,
				Action:    string(inventory.ActionReserve),
				Quantity:  1,
				Selection: sel,
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, inventory.ErrInsufficientStock):
				insufficient.Add(1)
			case errors.Is(err, inventory.ErrTimedOut):
				timedOut.Add(1)
			default:
				failed.Add(1)
				log.Debug("reservation failed", zap.Int("request", i), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return drillReport{}, err
	}

	if timedOut.Load() > 0 && opts.SettleDuration > 0 {
		select {
		case <-ctx.Done():
			return drillReport{}, ctx.Err()
		case <-time.After(opts.SettleDuration):
		}
	}

	persisted, err := repo.GetByProduct(context.WithoutCancel(ctx), drillProductID)
	if err != nil {
		return drillReport{}, err
	}
	if persisted == nil {
		return drillReport{}, inventory.ErrNotFound
	}

	report.Succeeded = succeeded.Load()
	report.Insufficient = insufficient.Load()
	report.TimedOut = timedOut.Load()
	report.Failed = failed.Load()
	report.PersistedReserved = persisted.ReservedQuantity
	report.PersistedAvailable = persisted.AvailableQuantity
	report.Divergence = persisted.ReservedQuantity - int(report.Succeeded)
	report.Oversold = persisted.ReservedQuantity > opts.Stock
	report.Drift = inventory.CheckInvariant(*persisted)
	return report, nil
}

func logReport(log logger.ZapLogger, opts drillOptions, r drillReport) {
	fields := []zap.Field{
		zap.String("algorithm", opts.Algorithm),
		zap.String("cache_mode", opts.CacheMode),
		zap.Int("requests", r.Requests),
		zap.Int64("succeeded", r.Succeeded),
		zap.Int64("insufficient", r.Insufficient),
		zap.Int64("timed_out", r.TimedOut),
		zap.Int64("failed", r.Failed),
		zap.Int("persisted_reserved", r.PersistedReserved),
		zap.Int("persisted_available", r.PersistedAvailable),
		zap.Int("divergence", r.Divergence),
		zap.Bool("oversold", r.Oversold),
	}
	if r.Drift != nil {
		fields = append(fields, zap.NamedError("drift", r.Drift))
	}

	if r.Divergence != 0 || r.Oversold || r.Drift != nil {
		log.Warn("drill finished with inconsistencies", fields...)
		return
	}
	log.Info("drill finished", fields...)
}
