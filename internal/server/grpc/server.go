package grpc

import (
	"context"
	"net"

	"github.com/atiera/qrlogin/internal/logging"
	pb "github.com/atiera/qrlogin/internal/proto"
	"github.com/atiera/qrlogin/internal/server/services"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address   string
	codes     *services.QRCodeService
	login     *services.LoginService
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, codes *services.QRCodeService, login *services.LoginService, signingKey []byte) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		codes:     codes,
		login:     login,
		jwtSecret: signingKey,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {

	// creates gRPC-server
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))

	// registers service
	pb.RegisterQRLoginServiceServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
