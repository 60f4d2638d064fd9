package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingInterceptor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	interceptor := LoggingInterceptor(zap.New(core))

	successHandler := func(ctx context.Context, req any) (any, error) {
		return "success", nil
	}
	errorHandler := func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "test error")
	}

	t.Run("successful request", func(t *testing.T) {
		info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/TestMethod"}

		resp, err := interceptor(context.Background(), "test request", info, successHandler)
		require.NoError(t, err)
		assert.Equal(t, "success", resp)

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	})

	t.Run("error request", func(t *testing.T) {
		info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/TestMethod"}

		_, err := interceptor(context.Background(), "test request", info, errorHandler)
		require.Error(t, err)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	})

	t.Run("health probe logged at debug", func(t *testing.T) {
		info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

		_, err := interceptor(context.Background(), nil, info, successHandler)
		require.NoError(t, err)

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	})
}
