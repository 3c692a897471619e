// Package grpcserver exposes the onepass gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	passesv1 "github.com/and161185/onepass/internal/api/passesv1"
	"github.com/and161185/onepass/internal/convert"
	"github.com/and161185/onepass/internal/errs"
	"github.com/and161185/onepass/internal/model"
	"github.com/and161185/onepass/internal/service"
)

// Server wires the pass service into gRPC handlers.
type Server struct {
	passes  service.PassService
	signKey []byte
	log     *zap.Logger
}

var _ passesv1.PassesServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(passes service.PassService, signKey []byte, log *zap.Logger) *Server {
	return &Server{passes: passes, signKey: signKey, log: log}
}

// toStatus maps service errors to gRPC status codes.
func toStatus(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, "signature mismatch")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrProvisionTimeout):
		return status.Error(codes.DeadlineExceeded, "pass was not provisioned in time")
	case errors.Is(err, errs.ErrPassNotValid):
		return status.Errorf(codes.FailedPrecondition, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

// GetPass returns the caller's current pass.
func (s *Server) GetPass(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	uid, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	p, err := s.passes.Current(ctx, uid)
	if err != nil {
		return nil, toStatus("get pass", err)
	}
	return convert.ToProtoPass(p), nil
}

// EnsurePass returns the caller's valid pass, provisioning one if needed.
func (s *Server) EnsurePass(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	uid, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	p, err := s.passes.GetOrCreate(ctx, uid)
	if err != nil {
		return nil, toStatus("ensure pass", err)
	}
	return convert.ToProtoPass(&p), nil
}

// RevokePass revokes the caller's pass with the given reason.
func (s *Server) RevokePass(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	uid, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	if err := s.passes.Revoke(ctx, uid, convert.StringField(req, convert.KeyReason)); err != nil {
		return nil, toStatus("revoke", err)
	}
	return &emptypb.Empty{}, nil
}

// MarkScanned records the caller scanning another user's pass.
func (s *Server) MarkScanned(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	scanner, err := s.userIDFromCtx(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	uid := convert.StringField(req, model.FieldUID)
	sig := convert.StringField(req, model.FieldSignature)
	if err := s.passes.MarkScanned(ctx, uid, scanner, sig); err != nil {
		return nil, toStatus("scan", err)
	}
	return &emptypb.Empty{}, nil
}

// WatchPass streams the caller's pass until the client goes away or the upstream ends.
func (s *Server) WatchPass(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	uid, err := s.userIDFromCtx(ctx)
	if err != nil {
		return status.Error(codes.Unauthenticated, "no auth")
	}
	passes, err := s.passes.Watch(ctx, uid)
	if err != nil {
		return toStatus("watch", err)
	}
	for p := range passes {
		if err := stream.Send(convert.ToProtoPass(p)); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return status.Error(codes.Unavailable, "pass stream ended")
}

// userIDFromCtx: extract "authorization: Bearer <JWT>", verify HS256, return sub as the pass owner uid.
func (s *Server) userIDFromCtx(ctx context.Context) (string, error) {
	if uid, ok := UserIDFromCtx(ctx); ok {
		return uid, nil
	}
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return "", err
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", errors.New("invalid token")
	}

	v := jwt.NewValidator(jwt.WithLeeway(30 * time.Second))
	if err := v.Validate(&claims); err != nil {
		return "", errors.New("token expired or not valid yet")
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", errors.New("bad subject")
	}
	return sub, nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}

// IssueToken signs an HS256 access token for uid; used by operators and tests.
func IssueToken(signKey []byte, uid string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signKey)
}
