package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atiera/qrlogin/internal/common"
	pb "github.com/atiera/qrlogin/internal/proto"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

/*************
 * Fake pb client
 *************/

type fakePB struct {
	lastLoginReq *wrapperspb.StringValue
	lastIssueReq *wrapperspb.BoolValue
	activeCalls  int
	revokeCalls  int

	loginResp *structpb.Struct
	loginErr  error

	issueResp *structpb.Struct
	issueErr  error

	activeResp *structpb.Struct
	activeErr  error

	revokeResp *structpb.Struct
	revokeErr  error
}

func (f *fakePB) Login(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.lastLoginReq = in
	return f.loginResp, f.loginErr
}
func (f *fakePB) IssueCode(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.lastIssueReq = in
	return f.issueResp, f.issueErr
}
func (f *fakePB) GetActiveCode(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.activeCalls++
	return f.activeResp, f.activeErr
}
func (f *fakePB) RevokeCode(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.revokeCalls++
	return f.revokeResp, f.revokeErr
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

/*************
 * accessTokenInterceptor tests
 *************/

func TestInterceptor_AttachesAccessToken(t *testing.T) {
	c := &GRPCClient{accessToken: "A1"}

	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		toks := md.Get(common.AccessTokenHeaderName)
		require.Equal(t, []string{"A1"}, toks)
		return nil
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, "stale")
	require.NoError(t, c.accessTokenInterceptor(ctx, "/svc/Method", nil, nil, nil, invoker))
}

func TestInterceptor_NoTokenBeforeLogin(t *testing.T) {
	c := &GRPCClient{}

	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		require.Empty(t, md.Get(common.AccessTokenHeaderName))
		return nil
	}

	require.NoError(t, c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker))
}

func TestInterceptor_PassesErrorsThrough(t *testing.T) {
	c := &GRPCClient{accessToken: "X"}
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Internal, "boom")
	}
	err := c.accessTokenInterceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker)
	require.Equal(t, codes.Internal, status.Code(err))
}

/*************
 * mapError tests
 *************/

func TestMapError(t *testing.T) {
	c := &GRPCClient{}

	err := c.mapError(status.Error(codes.Unauthenticated, "token expired"))
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorContains(t, err, "token expired")

	require.ErrorIs(t, c.mapError(status.Error(codes.PermissionDenied, "x")), ErrUnauthorized)
	require.ErrorIs(t, c.mapError(status.Error(codes.NotFound, "x")), ErrNotFound)
	require.ErrorIs(t, c.mapError(status.Error(codes.AlreadyExists, "x")), common.ErrActiveCodeExists)
	require.ErrorIs(t, c.mapError(status.Error(codes.Aborted, "x")), common.ErrConflict)
	require.ErrorIs(t, c.mapError(status.Error(codes.Unavailable, "x")), ErrUnavailable)
	require.ErrorIs(t, c.mapError(status.Error(codes.DeadlineExceeded, "x")), ErrUnavailable)
	require.NoError(t, c.mapError(nil))

	e := errors.New("plain")
	require.ErrorContains(t, c.mapError(e), "rpc error:")
}

/*************
 * Login tests
 *************/

func TestLogin_StoresAccessToken(t *testing.T) {
	f := &fakePB{loginResp: mustStruct(t, map[string]any{
		pb.FieldAccessToken: "A",
		pb.FieldUserID:      "42",
		pb.FieldRole:        "staff",
		pb.FieldRedirect:    "/staff/",
	})}
	c := &GRPCClient{client: f}

	sess, err := c.Login(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.Equal(t, "deadbeef", f.lastLoginReq.GetValue())
	require.Equal(t, "A", c.AccessToken())
	require.Equal(t, "42", sess.UserID)
	require.Equal(t, "staff", sess.Role)
	require.Equal(t, "/staff/", sess.Redirect)
}

func TestLogin_MapsError(t *testing.T) {
	f := &fakePB{loginErr: status.Error(codes.Unauthenticated, "invalid or expired qr token")}
	c := &GRPCClient{client: f}

	_, err := c.Login(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Empty(t, c.AccessToken())
}

func TestLogin_EmptyAccessToken(t *testing.T) {
	f := &fakePB{loginResp: mustStruct(t, map[string]any{pb.FieldUserID: "42"})}
	c := &GRPCClient{client: f}

	_, err := c.Login(context.Background(), "t")
	require.ErrorIs(t, err, ErrBadResponse)
}

/*************
 * IssueCode / GetActiveCode / RevokeCode tests
 *************/

func TestIssueCode_PassesRotate(t *testing.T) {
	f := &fakePB{issueResp: mustStruct(t, map[string]any{
		pb.FieldToken:    "tok",
		pb.FieldRecordID: "r1",
		pb.FieldLoginURL: "https://portal.example/qr-login?t=tok",
	})}
	c := &GRPCClient{client: f}

	code, err := c.IssueCode(context.Background(), true)
	require.NoError(t, err)
	require.True(t, f.lastIssueReq.GetValue())
	require.Equal(t, "tok", code.Token)
	require.Equal(t, "r1", code.RecordID)
	require.Equal(t, "https://portal.example/qr-login?t=tok", code.LoginURL)
}

func TestIssueCode_ActiveExists(t *testing.T) {
	f := &fakePB{issueErr: status.Error(codes.AlreadyExists, "active qr code already exists")}
	c := &GRPCClient{client: f}

	_, err := c.IssueCode(context.Background(), false)
	require.ErrorIs(t, err, common.ErrActiveCodeExists)
	require.False(t, f.lastIssueReq.GetValue())
}

func TestGetActiveCode_ParsesTimes(t *testing.T) {
	f := &fakePB{activeResp: mustStruct(t, map[string]any{
		pb.FieldRecordID:   "r1",
		pb.FieldToken:      "tok",
		pb.FieldLoginURL:   "u",
		pb.FieldCreatedAt:  "2026-03-01T10:00:00Z",
		pb.FieldLastUsedAt: "2026-03-02T08:30:00Z",
	})}
	c := &GRPCClient{client: f}

	code, err := c.GetActiveCode(context.Background())
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), code.CreatedAt)
	require.NotNil(t, code.LastUsedAt)
	require.Equal(t, time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC), *code.LastUsedAt)
}

func TestGetActiveCode_NeverUsed(t *testing.T) {
	f := &fakePB{activeResp: mustStruct(t, map[string]any{
		pb.FieldRecordID:   "r1",
		pb.FieldToken:      "tok",
		pb.FieldCreatedAt:  "2026-03-01T10:00:00Z",
		pb.FieldLastUsedAt: nil,
	})}
	c := &GRPCClient{client: f}

	code, err := c.GetActiveCode(context.Background())
	require.NoError(t, err)
	require.Nil(t, code.LastUsedAt)
}

func TestGetActiveCode_BadTimestamp(t *testing.T) {
	f := &fakePB{activeResp: mustStruct(t, map[string]any{pb.FieldCreatedAt: "yesterday"})}
	c := &GRPCClient{client: f}

	_, err := c.GetActiveCode(context.Background())
	require.ErrorIs(t, err, ErrBadResponse)
}

func TestGetActiveCode_NotFound(t *testing.T) {
	f := &fakePB{activeErr: status.Error(codes.NotFound, "no active qr code")}
	c := &GRPCClient{client: f}

	_, err := c.GetActiveCode(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, f.activeCalls)
}

func TestRevokeCode(t *testing.T) {
	f := &fakePB{revokeResp: mustStruct(t, map[string]any{pb.FieldRevoked: 1})}
	c := &GRPCClient{client: f}

	n, err := c.RevokeCode(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestRevokeCode_MapsError(t *testing.T) {
	f := &fakePB{revokeErr: status.Error(codes.Unavailable, "persistence failure")}
	c := &GRPCClient{client: f}

	_, err := c.RevokeCode(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestClose_WithoutConnection(t *testing.T) {
	c := &GRPCClient{}
	require.NoError(t, c.Close())
}
