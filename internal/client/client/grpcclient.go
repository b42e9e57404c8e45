package client

import (
	"context"
	"fmt"
	"time"

	"github.com/atiera/qrlogin/internal/client/models"
	"github.com/atiera/qrlogin/internal/common"
	pb "github.com/atiera/qrlogin/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.QRLoginServiceClient
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.accessToken != "" {
		ctx = withAccessToken(ctx, s.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func NewQRLoginClient(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	err := c.InitGRPCClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {

	conn, err := grpc.NewClient(s.endpointURL, grpc.WithTransportCredentials(insecure.NewCredentials()), grpc.WithUnaryInterceptor(s.accessTokenInterceptor))
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = pb.NewQRLoginServiceClient(conn)
	return nil
}

// SetAccessToken sets the session token sent with subsequent calls.
func (s *GRPCClient) SetAccessToken(token string) {
	s.accessToken = token
}

func (s *GRPCClient) AccessToken() string {
	return s.accessToken
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Login exchanges a raw QR token for a session. The returned access token
// is kept for later calls.
func (s *GRPCClient) Login(ctx context.Context, qrToken string) (*models.Session, error) {

	resp, err := s.client.Login(ctx, wrapperspb.String(qrToken))
	if err != nil {
		return nil, s.mapError(err)
	}

	sess := &models.Session{
		AccessToken: stringField(resp, pb.FieldAccessToken),
		UserID:      stringField(resp, pb.FieldUserID),
		Role:        stringField(resp, pb.FieldRole),
		Redirect:    stringField(resp, pb.FieldRedirect),
	}
	if sess.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token", ErrBadResponse)
	}

	s.accessToken = sess.AccessToken
	return sess, nil
}

func (s *GRPCClient) IssueCode(ctx context.Context, rotate bool) (*models.IssuedCode, error) {

	resp, err := s.client.IssueCode(ctx, wrapperspb.Bool(rotate))
	if err != nil {
		return nil, s.mapError(err)
	}

	code := &models.IssuedCode{
		Token:    stringField(resp, pb.FieldToken),
		RecordID: stringField(resp, pb.FieldRecordID),
		LoginURL: stringField(resp, pb.FieldLoginURL),
	}
	if code.Token == "" {
		return nil, fmt.Errorf("%w: no token", ErrBadResponse)
	}
	return code, nil
}

func (s *GRPCClient) GetActiveCode(ctx context.Context) (*models.ActiveCode, error) {

	resp, err := s.client.GetActiveCode(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}

	code := &models.ActiveCode{
		RecordID: stringField(resp, pb.FieldRecordID),
		Token:    stringField(resp, pb.FieldToken),
		LoginURL: stringField(resp, pb.FieldLoginURL),
	}

	created, err := time.Parse(time.RFC3339, stringField(resp, pb.FieldCreatedAt))
	if err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", ErrBadResponse, err)
	}
	code.CreatedAt = created

	if v := stringField(resp, pb.FieldLastUsedAt); v != "" {
		used, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("%w: last_used_at: %v", ErrBadResponse, err)
		}
		code.LastUsedAt = &used
	}

	return code, nil
}

// RevokeCode deactivates the caller's active code and reports how many
// records were revoked.
func (s *GRPCClient) RevokeCode(ctx context.Context) (int64, error) {

	resp, err := s.client.RevokeCode(ctx, &emptypb.Empty{})
	if err != nil {
		return 0, s.mapError(err)
	}

	return int64(resp.GetFields()[pb.FieldRevoked].GetNumberValue()), nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		return common.ErrActiveCodeExists
	case codes.Aborted:
		return common.ErrConflict
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
