// Package admin exposes a loopback gRPC service for inspecting and managing
// live presence sessions.
package admin

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cory-johannsen/office/internal/presence"
)

// Directory is the view of the session service the admin API needs.
type Directory interface {
	Sessions() []presence.Session
	Count() int
	Disconnect(connectionID string) bool
}

// Revoker records revoked token ids.
type Revoker interface {
	Deny(key string, until time.Time)
}

// Option configures a Server.
type Option func(*Server)

// WithRevoker enables RevokeToken. Revocations last for ttl, which should be
// at least the longest token lifetime the issuer grants.
func WithRevoker(r Revoker, ttl time.Duration) Option {
	return func(s *Server) {
		s.revoker = r
		s.revokeTTL = ttl
	}
}

// WithClock overrides the time source used for revocation expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server implements PresenceAdminServer over a Directory.
type Server struct {
	dir       Directory
	logger    *zap.Logger
	revoker   Revoker
	revokeTTL time.Duration
	now       func() time.Time
}

// NewServer creates a Server.
//
// Precondition: dir and logger must be non-nil.
func NewServer(dir Directory, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{dir: dir, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListSessions returns every live session in registration order.
func (s *Server) ListSessions(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	sessions := s.dir.Sessions()
	items := make([]any, 0, len(sessions))
	for _, sess := range sessions {
		items = append(items, map[string]any{
			"connectionId": sess.ConnectionID,
			"userId":       sess.Identity.UserID,
			"displayName":  sess.Identity.DisplayName,
			"x":            sess.Position.X,
			"y":            sess.Position.Y,
			"z":            sess.Position.Z,
			"joinedAt":     sess.JoinedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding sessions: %v", err)
	}
	return list, nil
}

// CountSessions returns the number of live sessions.
func (s *Server) CountSessions(_ context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	return wrapperspb.Int64(int64(s.dir.Count())), nil
}

// Disconnect closes the named connection. The session's normal disconnect
// sequence then runs.
//
// Postcondition: Returns true if the connection was live; InvalidArgument for an empty id.
func (s *Server) Disconnect(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	id := strings.TrimSpace(req.GetValue())
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "connection id must not be empty")
	}
	closed := s.dir.Disconnect(id)
	s.logger.Info("admin disconnect",
		zap.String("connection_id", id),
		zap.Bool("closed", closed),
	)
	return wrapperspb.Bool(closed), nil
}

// RevokeToken denies the token id so later handshakes presenting it are
// rejected. Sessions already connected with it are not affected.
func (s *Server) RevokeToken(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if s.revoker == nil {
		return nil, status.Error(codes.Unimplemented, "token revocation is not configured")
	}
	id := strings.TrimSpace(req.GetValue())
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "token id must not be empty")
	}
	until := s.now().Add(s.revokeTTL)
	s.revoker.Deny(id, until)
	s.logger.Info("admin revoked token",
		zap.String("token_id", id),
		zap.Time("until", until),
	)
	return &emptypb.Empty{}, nil
}

// UnaryLogging logs every admin call with its method, status code, and duration.
func UnaryLogging(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("admin call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("admin call", fields...)
		}
		return resp, err
	}
}

// NewGRPCServer builds a grpc.Server with the admin service registered.
//
// Postcondition: Returns a server ready for Serve.
func NewGRPCServer(dir Directory, logger *zap.Logger, opts ...Option) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryLogging(logger)))
	RegisterPresenceAdminServer(srv, NewServer(dir, logger, opts...))
	return srv
}
