package middleware

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/traffic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ContextInterceptor moves caller identity from metadata into the context,
// counts the request toward the traffic monitor and logs its outcome.
func ContextInterceptor(monitor *traffic.Monitor, log logger.ZapLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		done := monitor.Begin()
		defer done()

		ctx = auth.WithUser(ctx, auth.UserContext{
			UserID:    auth.GetUserID(ctx),
			SessionID: auth.GetSessionID(ctx),
		})

		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		switch code {
		case codes.OK, codes.NotFound, codes.InvalidArgument, codes.AlreadyExists:
			log.Debug("grpc request", fields...)
		case codes.DeadlineExceeded:
			log.Warn("grpc request", append(fields, zap.Error(err))...)
		default:
			log.Error("grpc request", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
