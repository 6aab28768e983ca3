package main

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory/handler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	remoteTarget    string
	remoteProduct   string
	remoteAlgorithm string
	remoteCacheMode string
	remoteRequests  int
	remoteWorkers   int
	remoteTimeout   time.Duration
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Reserve one unit at a time against a running service over gRPC",
	Long: `Send concurrent ApplyInventoryAction calls to a running service. The
algorithm and cache mode travel as x-variant-* metadata, so the service
must allow overrides for them to apply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if remoteProduct == "" {
			return errors.New("--product is required")
		}
		if remoteWorkers <= 0 {
			return errors.New("--workers must be positive")
		}
		log := newLogger()
		defer log.Sync()

		conn, err := grpc.NewClient(remoteTarget, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return err
		}
		defer conn.Close()
		client := handler.NewInventoryServiceClient(conn)

		req, err := structpb.NewStruct(map[string]interface{}{
			"product_id": remoteProduct,
			"action":     "reserve",
			"quantity":   1,
		})
		if err != nil {
			return err
		}
		md := metadata.Pairs(
			handler.OverridePrefix+"algorithm", remoteAlgorithm,
			handler.OverridePrefix+"cache-mode", remoteCacheMode,
		)

		outcomes := map[codes.Code]*atomic.Int64{}
		for _, c := range []codes.Code{codes.OK, codes.InvalidArgument, codes.DeadlineExceeded, codes.NotFound, codes.Internal, codes.Unavailable} {
			outcomes[c] = new(atomic.Int64)
		}
		var other atomic.Int64

		start := time.Now()
		g, gctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(remoteWorkers)
		for i := 0; i < remoteRequests; i++ {
			g.Go(func() error {
				ctx, cancel := context.WithTimeout(gctx, remoteTimeout)
				defer cancel()
				_, err := client.Call(metadata.NewOutgoingContext(ctx, md), "ApplyInventoryAction", req)
				if n, ok := outcomes[status.Code(err)]; ok {
					n.Add(1)
				} else {
					other.Add(1)
				}
				if err != nil {
					log.Debug("request failed", zap.Int("request", i), zap.Error(err))
				}
				return nil
			})
		}
		_ = g.Wait()

		log.Info("remote drill finished",
			zap.String("target", remoteTarget),
			zap.String("algorithm", remoteAlgorithm),
			zap.Int("requests", remoteRequests),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int64("ok", outcomes[codes.OK].Load()),
			zap.Int64("rejected", outcomes[codes.InvalidArgument].Load()),
			zap.Int64("deadline_exceeded", outcomes[codes.DeadlineExceeded].Load()),
			zap.Int64("not_found", outcomes[codes.NotFound].Load()),
			zap.Int64("internal", outcomes[codes.Internal].Load()),
			zap.Int64("unavailable", outcomes[codes.Unavailable].Load()),
			zap.Int64("other", other.Load()))
		return nil
	},
}

func init() {
	f := remoteCmd.Flags()
	f.StringVar(&remoteTarget, "target", "localhost:8082", "gRPC address of the service")
	f.StringVar(&remoteProduct, "product", "", "Product ID to reserve")
	f.StringVar(&remoteAlgorithm, "algorithm", "lock_based", "Reservation algorithm override")
	f.StringVar(&remoteCacheMode, "cache-mode", "standard", "Cache mode override")
	f.IntVar(&remoteRequests, "requests", 100, "Total reservations of one unit")
	f.IntVar(&remoteWorkers, "workers", 10, "Concurrent workers")
	f.DurationVar(&remoteTimeout, "timeout", 5*time.Second, "Client side deadline per call")

	rootCmd.AddCommand(remoteCmd)
}
