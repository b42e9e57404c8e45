package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/atiera/qrlogin/internal/common"
	pb "github.com/atiera/qrlogin/internal/proto"
	"github.com/atiera/qrlogin/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *GRPCServer) Login(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {

	sess, err := s.login.Login(ctx, req.GetValue(), originFromContext(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return s.toStruct(ctx, map[string]any{
		pb.FieldAccessToken: sess.AccessToken,
		pb.FieldUserID:      sess.UserID,
		pb.FieldRole:        sess.Role,
		pb.FieldRedirect:    sess.Redirect,
	})
}

func (s *GRPCServer) IssueCode(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error) {

	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	issued, err := s.codes.Issue(ctx, userID, req.GetValue())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return s.toStruct(ctx, map[string]any{
		pb.FieldToken:    issued.RawToken,
		pb.FieldRecordID: issued.RecordID,
		pb.FieldLoginURL: issued.LoginURL,
	})
}

func (s *GRPCServer) GetActiveCode(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {

	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	active, found, err := s.codes.ActiveCode(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if !found {
		return nil, status.Error(codes.NotFound, "no active qr code")
	}

	var lastUsed any
	if active.LastUsedAt != nil {
		lastUsed = active.LastUsedAt.UTC().Format(time.RFC3339)
	}

	return s.toStruct(ctx, map[string]any{
		pb.FieldRecordID:   active.RecordID,
		pb.FieldToken:      active.RawToken,
		pb.FieldLoginURL:   active.LoginURL,
		pb.FieldCreatedAt:  active.CreatedAt.UTC().Format(time.RFC3339),
		pb.FieldLastUsedAt: lastUsed,
	})
}

func (s *GRPCServer) RevokeCode(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {

	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	n, err := s.codes.Revoke(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return s.toStruct(ctx, map[string]any{pb.FieldRevoked: n})
}

func (s *GRPCServer) toStruct(ctx context.Context, m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		s.logger.Error(ctx, "encode response", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// toStatus maps service errors onto gRPC status codes. Unexpected errors are
// logged and hidden from the caller.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrMissingQRToken),
		errors.Is(err, common.ErrInvalidQRToken),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, common.ErrAccountInactive), errors.Is(err, common.ErrQRLoginNotAllowed):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrActiveCodeExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, common.ErrConflict):
		s.logger.Warn(ctx, "concurrent credential change", "error", err)
		return status.Error(codes.Aborted, common.ErrConflict.Error())
	case errors.Is(err, common.ErrPersistence):
		s.logger.Error(ctx, "store unavailable", "error", err)
		return status.Error(codes.Unavailable, common.ErrPersistence.Error())
	}
	s.logger.Error(ctx, err.Error())
	return status.Error(codes.Internal, "internal error")
}

// originFromContext takes the client address from the transport peer and
// the user agent from the request metadata.
func originFromContext(ctx context.Context) services.Origin {
	var o services.Origin

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("user-agent"); len(v) > 0 {
			o.UserAgent = v[0]
		}
	}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		o.IP = p.Addr.String()
		if host, _, err := net.SplitHostPort(o.IP); err == nil {
			o.IP = host
		}
	}
	return o
}
