// Package grpcserver exposes the blog operations over gRPC. Messages are
// plain Go structs carried by a JSON codec.
package grpcserver

import (
	"context"
	"database/sql"
	"net"

	"google.golang.org/grpc"

	"github.com/patric-chuzhbe/bloglist/internal/auth"
	"github.com/patric-chuzhbe/bloglist/internal/grpcserver/interceptor"
	"github.com/patric-chuzhbe/bloglist/internal/user"
)

type tokenVerifier interface {
	GetIdentityFromToken(tokenString string) (auth.Identity, error)
}

type userKeeper interface {
	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error)
}

// NewServer builds a grpc.Server with BlogService registered.
func NewServer(handler BlogServiceServer, verifier tokenVerifier, db userKeeper) *grpc.Server {
	authInterceptor := interceptor.NewAuthInterceptor(verifier, db)

	server := grpc.NewServer(
		grpc.ForceServerCodec(Codec{}),
		grpc.ChainUnaryInterceptor(
			interceptor.UnaryLoggingInterceptor(AllMethods),
			authInterceptor.UnaryAuthInterceptor([]string{
				CreateBlogFullMethodName,
				DeleteBlogFullMethodName,
			}),
			authInterceptor.UnaryOptionalAuthInterceptor([]string{
				UpdateBlogFullMethodName,
			}),
			authInterceptor.UnaryRequireIdentityInterceptor([]string{
				CreateBlogFullMethodName,
				DeleteBlogFullMethodName,
			}),
		),
	)
	RegisterBlogServiceServer(server, handler)

	return server
}

// NewGRPCServer listens on addr and returns the server with its listener.
func NewGRPCServer(
	addr string,
	handler BlogServiceServer,
	verifier tokenVerifier,
	db userKeeper,
) (*grpc.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	return NewServer(handler, verifier, db), lis, nil
}
