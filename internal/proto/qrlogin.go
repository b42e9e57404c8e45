// Package proto describes the qrlogin.v1.QRLoginService gRPC API. Payloads
// are protobuf well-known types, so no generated message code is needed:
// requests are wrapperspb/emptypb values and responses are structpb.Struct
// objects whose keys are listed below.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "qrlogin.v1.QRLoginService"

// Full method names.
const (
	QRLoginService_Login_FullMethodName         = "/" + ServiceName + "/Login"
	QRLoginService_IssueCode_FullMethodName     = "/" + ServiceName + "/IssueCode"
	QRLoginService_GetActiveCode_FullMethodName = "/" + ServiceName + "/GetActiveCode"
	QRLoginService_RevokeCode_FullMethodName    = "/" + ServiceName + "/RevokeCode"
)

// Response field keys.
const (
	FieldAccessToken = "access_token"
	FieldUserID      = "user_id"
	FieldRole        = "role"
	FieldRedirect    = "redirect"
	FieldToken       = "token"
	FieldRecordID    = "record_id"
	FieldLoginURL    = "login_url"
	FieldCreatedAt   = "created_at"
	FieldLastUsedAt  = "last_used_at"
	FieldRevoked     = "revoked"
)

// QRLoginServiceServer is the server API for QRLoginService.
type QRLoginServiceServer interface {
	// Login exchanges a raw QR token for a session access token.
	Login(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// IssueCode issues a code for the caller; the request value asks for rotation.
	IssueCode(context.Context, *wrapperspb.BoolValue) (*structpb.Struct, error)
	GetActiveCode(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	RevokeCode(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func RegisterQRLoginServiceServer(s grpc.ServiceRegistrar, srv QRLoginServiceServer) {
	s.RegisterService(&QRLoginService_ServiceDesc, srv)
}

func unaryHandler[T any](fullMethod string, call func(QRLoginServiceServer, context.Context, *T) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(T)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(QRLoginServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(QRLoginServiceServer), ctx, req.(*T))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// QRLoginService_ServiceDesc is the grpc.ServiceDesc for QRLoginService.
var QRLoginService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QRLoginServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Login",
			Handler:    unaryHandler(QRLoginService_Login_FullMethodName, QRLoginServiceServer.Login),
		},
		{
			MethodName: "IssueCode",
			Handler:    unaryHandler(QRLoginService_IssueCode_FullMethodName, QRLoginServiceServer.IssueCode),
		},
		{
			MethodName: "GetActiveCode",
			Handler:    unaryHandler(QRLoginService_GetActiveCode_FullMethodName, QRLoginServiceServer.GetActiveCode),
		},
		{
			MethodName: "RevokeCode",
			Handler:    unaryHandler(QRLoginService_RevokeCode_FullMethodName, QRLoginServiceServer.RevokeCode),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qrlogin/v1/qrlogin.proto",
}

// QRLoginServiceClient is the client API for QRLoginService.
type QRLoginServiceClient interface {
	Login(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	IssueCode(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetActiveCode(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	RevokeCode(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type qrLoginServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewQRLoginServiceClient(cc grpc.ClientConnInterface) QRLoginServiceClient {
	return &qrLoginServiceClient{cc}
}

func (c *qrLoginServiceClient) invoke(ctx context.Context, method string, in any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *qrLoginServiceClient) Login(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, QRLoginService_Login_FullMethodName, in, opts...)
}

func (c *qrLoginServiceClient) IssueCode(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, QRLoginService_IssueCode_FullMethodName, in, opts...)
}

func (c *qrLoginServiceClient) GetActiveCode(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, QRLoginService_GetActiveCode_FullMethodName, in, opts...)
}

func (c *qrLoginServiceClient) RevokeCode(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, QRLoginService_RevokeCode_FullMethodName, in, opts...)
}
