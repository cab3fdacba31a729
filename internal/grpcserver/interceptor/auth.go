package interceptor

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/bloglist/internal/auth"
	"github.com/patric-chuzhbe/bloglist/internal/logger"
	"github.com/patric-chuzhbe/bloglist/internal/models"
	"github.com/patric-chuzhbe/bloglist/internal/user"
)

type tokenVerifier interface {
	GetIdentityFromToken(tokenString string) (auth.Identity, error)
}

type userKeeper interface {
	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error)
}

type AuthInterceptor struct {
	auth tokenVerifier
	db   userKeeper
}

func NewAuthInterceptor(auth tokenVerifier, db userKeeper) *AuthInterceptor {
	return &AuthInterceptor{auth: auth, db: db}
}

func methodSet(methods []string) map[string]struct{} {
	result := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		result[m] = struct{}{}
	}

	return result
}

// identify resolves the "authorization" metadata into an identity. A call
// without the metadata yields the zero Identity.
func (a *AuthInterceptor) identify(ctx context.Context) (auth.Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return auth.Identity{}, nil
	}

	authHeader := md.Get("authorization")
	if len(authHeader) == 0 || authHeader[0] == "" {
		return auth.Identity{}, nil
	}

	identity, err := a.auth.GetIdentityFromToken(authHeader[0])
	if err != nil {
		logger.Log.Debugln("Error calling the `a.auth.GetIdentityFromToken()`: ", zap.Error(err))
		return auth.Identity{}, status.Error(codes.Unauthenticated, "token invalid")
	}

	usr, err := a.db.GetUserByID(ctx, identity.UserID, nil)
	if errors.Is(err, models.ErrRecordNotFound) {
		return auth.Identity{}, status.Error(codes.Unauthenticated, "token invalid")
	}
	if err != nil {
		logger.Log.Debugln("Error calling the `a.db.GetUserByID()`: ", zap.Error(err))
		return auth.Identity{}, status.Error(codes.Internal, "internal server error")
	}
	identity.Username = usr.Username

	return identity, nil
}

// UnaryAuthInterceptor attaches the identity of the caller to the context
// of the listed methods. Calls without the metadata stay anonymous; an
// invalid token or a token of a removed user fails with Unauthenticated.
func (a *AuthInterceptor) UnaryAuthInterceptor(allowedMethods []string) grpc.UnaryServerInterceptor {
	allowed := methodSet(allowedMethods)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if _, ok := allowed[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		identity, err := a.identify(ctx)
		if err != nil {
			return nil, err
		}
		if identity.UserID == "" {
			return handler(ctx, req)
		}

		return handler(auth.WithIdentity(ctx, identity), req)
	}
}

// UnaryOptionalAuthInterceptor attaches the identity of a valid token and
// lets every other call of the listed methods through anonymously.
func (a *AuthInterceptor) UnaryOptionalAuthInterceptor(allowedMethods []string) grpc.UnaryServerInterceptor {
	allowed := methodSet(allowedMethods)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if _, ok := allowed[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		identity, err := a.identify(ctx)
		if err != nil || identity.UserID == "" {
			return handler(ctx, req)
		}

		return handler(auth.WithIdentity(ctx, identity), req)
	}
}

// UnaryRequireIdentityInterceptor rejects anonymous calls of the listed
// methods. It must run after UnaryAuthInterceptor.
func (a *AuthInterceptor) UnaryRequireIdentityInterceptor(requiredMethods []string) grpc.UnaryServerInterceptor {
	required := methodSet(requiredMethods)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if _, ok := required[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		if _, ok := auth.IdentityFromContext(ctx); !ok {
			return nil, status.Error(codes.Unauthenticated, "token missing")
		}

		return handler(ctx, req)
	}
}
