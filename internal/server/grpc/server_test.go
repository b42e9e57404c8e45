package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/atiera/qrlogin/internal/common"
	"github.com/atiera/qrlogin/internal/cryptox"
	"github.com/atiera/qrlogin/internal/logging"
	pb "github.com/atiera/qrlogin/internal/proto"
	"github.com/atiera/qrlogin/internal/server/audit"
	"github.com/atiera/qrlogin/internal/server/auth"
	"github.com/atiera/qrlogin/internal/server/config"
	"github.com/atiera/qrlogin/internal/server/models"
	"github.com/atiera/qrlogin/internal/server/repositories/repomanager"
	"github.com/atiera/qrlogin/internal/server/services"
	"github.com/atiera/qrlogin/internal/server/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const testAppKey = "portal-app-key-for-tests"

type env struct {
	client pb.QRLoginServiceClient
	codes  *services.QRCodeService
	key    []byte
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := storetest.NewSQLite(t)
	storetest.SeedUser(t, db, models.User{ID: "42", UserName: "jdoe", FullName: "Jane Doe", Role: "staff", Status: "active"})

	rm, err := repomanager.NewSQLiteRepositoryManager(db)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AppKey = testAppKey

	cipher, err := cryptox.NewTokenCipher(cfg.AppKey)
	require.NoError(t, err)
	key, err := auth.SigningKey(cfg.AppKey)
	require.NoError(t, err)

	sink := audit.NewDBSink(db, rm)
	codes := services.NewQRCodeService(db, rm, cipher, sink, logging.Nop{}, cfg)
	login := services.NewLoginService(codes, sink, logging.Nop{}, key, cfg)
	srv := NewGRPCServer("bufnet", logging.Nop{}, codes, login, key)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &env{client: pb.NewQRLoginServiceClient(conn), codes: codes, key: key}
}

func withToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, token)
}

func TestQRLoginFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	issued, err := e.codes.Issue(ctx, "42", false)
	require.NoError(t, err)

	resp, err := e.client.Login(ctx, wrapperspb.String(issued.RawToken))
	require.NoError(t, err)
	fields := resp.GetFields()
	assert.Equal(t, "42", fields[pb.FieldUserID].GetStringValue())
	assert.Equal(t, "staff", fields[pb.FieldRole].GetStringValue())
	assert.Equal(t, "/staff/", fields[pb.FieldRedirect].GetStringValue())

	access := fields[pb.FieldAccessToken].GetStringValue()
	claims, err := auth.ParseToken(access, e.key)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)

	authed := withToken(ctx, access)

	shown, err := e.client.GetActiveCode(authed, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, issued.RawToken, shown.GetFields()[pb.FieldToken].GetStringValue())
	assert.NotEmpty(t, shown.GetFields()[pb.FieldLastUsedAt].GetStringValue())

	renewed, err := e.client.IssueCode(authed, wrapperspb.Bool(true))
	require.NoError(t, err)
	newToken := renewed.GetFields()[pb.FieldToken].GetStringValue()
	assert.NotEqual(t, issued.RawToken, newToken)
	assert.Contains(t, renewed.GetFields()[pb.FieldLoginURL].GetStringValue(), newToken)

	_, err = e.client.Login(ctx, wrapperspb.String(issued.RawToken))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	revoked, err := e.client.RevokeCode(authed, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, float64(1), revoked.GetFields()[pb.FieldRevoked].GetNumberValue())

	_, err = e.client.GetActiveCode(authed, &emptypb.Empty{})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestIssueCodeWithoutRotateConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	access, err := auth.GenerateToken("42", "staff", e.key, time.Minute)
	require.NoError(t, err)
	authed := withToken(ctx, access)

	_, err = e.client.IssueCode(authed, wrapperspb.Bool(false))
	require.NoError(t, err)

	_, err = e.client.IssueCode(authed, wrapperspb.Bool(false))
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	expired, err := auth.GenerateToken("42", "staff", e.key, -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.GenerateToken("42", "staff", []byte("another-signing-key"), time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name string
		ctx  context.Context
		msg  string
	}{
		{"no token", ctx, "missing token"},
		{"garbage", withToken(ctx, "not-a-jwt"), "invalid token"},
		{"expired", withToken(ctx, expired), "token expired"},
		{"wrong key", withToken(ctx, foreign), "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.client.IssueCode(tt.ctx, wrapperspb.Bool(true))
			st, _ := status.FromError(err)
			assert.Equal(t, codes.Unauthenticated, st.Code())
			assert.Equal(t, tt.msg, st.Message())

			_, err = e.client.RevokeCode(tt.ctx, &emptypb.Empty{})
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
		})
	}
}

func TestLoginErrors(t *testing.T) {
	e := newEnv(t)

	_, err := e.client.Login(context.Background(), wrapperspb.String(""))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = e.client.Login(context.Background(), wrapperspb.String("garbage-token"))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestToStatus(t *testing.T) {
	s := &GRPCServer{logger: logging.Nop{}}

	tests := []struct {
		err  error
		want codes.Code
	}{
		{common.ErrMissingQRToken, codes.Unauthenticated},
		{common.ErrInvalidQRToken, codes.Unauthenticated},
		{common.ErrAccountInactive, codes.PermissionDenied},
		{common.ErrQRLoginNotAllowed, codes.PermissionDenied},
		{common.ErrActiveCodeExists, codes.AlreadyExists},
		{fmt.Errorf("load owner: %w", common.ErrorNotFound), codes.NotFound},
		{fmt.Errorf("issue: %w: %w", common.ErrPersistence, common.ErrConflict), codes.Aborted},
		{fmt.Errorf("issue: %w: %w", common.ErrPersistence, errors.New("conn reset")), codes.Unavailable},
		{fmt.Errorf("issue: %w: %w", common.ErrPersistence, context.DeadlineExceeded), codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(s.toStatus(context.Background(), tt.err)))
		})
	}
}

func TestOriginFromContext(t *testing.T) {
	md := metadata.Pairs("user-agent", "qrctl/1.0")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	ctx = peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 40112}})

	assert.Equal(t, services.Origin{IP: "203.0.113.9", UserAgent: "qrctl/1.0"}, originFromContext(ctx))
	assert.Equal(t, services.Origin{}, originFromContext(context.Background()))
}
