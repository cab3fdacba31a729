package grpcserver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/bloglist/internal/auth"
	"github.com/patric-chuzhbe/bloglist/internal/logger"
	"github.com/patric-chuzhbe/bloglist/internal/models"
	"github.com/patric-chuzhbe/bloglist/internal/service"
)

type blogService interface {
	Ping(ctx context.Context) error
	ListBlogs(ctx context.Context) ([]models.BlogView, error)
	CreateBlog(ctx context.Context, identity auth.Identity, request models.CreateBlogRequest) (models.BlogView, error)
	DeleteBlog(ctx context.Context, identity auth.Identity, blogID string) (models.DeleteBlogResponse, error)
	UpdateBlog(ctx context.Context, identity auth.Identity, blogID string, request models.UpdateBlogRequest) error
	Login(ctx context.Context, request models.LoginRequest) (models.LoginResponse, error)
}

// BlogHandler serves bloglist.BlogService on top of the service layer.
type BlogHandler struct {
	svc blogService
}

func NewBlogHandler(svc blogService) *BlogHandler {
	return &BlogHandler{svc: svc}
}

func (h *BlogHandler) ListBlogs(ctx context.Context, _ *ListBlogsRequest) (*ListBlogsResponse, error) {
	blogs, err := h.svc.ListBlogs(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	return &ListBlogsResponse{Blogs: blogs}, nil
}

func (h *BlogHandler) CreateBlog(ctx context.Context, req *CreateBlogRequest) (*CreateBlogResponse, error) {
	identity, _ := auth.IdentityFromContext(ctx)

	blog, err := h.svc.CreateBlog(ctx, identity, req.Blog)
	if err != nil {
		return nil, toStatus(err)
	}

	return &CreateBlogResponse{Blog: blog}, nil
}

func (h *BlogHandler) UpdateBlog(ctx context.Context, req *UpdateBlogRequest) (*UpdateBlogResponse, error) {
	identity, _ := auth.IdentityFromContext(ctx)

	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id missing")
	}

	if err := h.svc.UpdateBlog(ctx, identity, req.ID, req.Blog); err != nil {
		return nil, toStatus(err)
	}

	return &UpdateBlogResponse{}, nil
}

func (h *BlogHandler) DeleteBlog(ctx context.Context, req *DeleteBlogRequest) (*DeleteBlogResponse, error) {
	identity, _ := auth.IdentityFromContext(ctx)

	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id missing")
	}

	result, err := h.svc.DeleteBlog(ctx, identity, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}

	return &DeleteBlogResponse{Message: result.Message}, nil
}

func (h *BlogHandler) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	result, err := h.svc.Login(ctx, models.LoginRequest{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	return &LoginResponse{
		Token:    result.Token,
		Username: result.Username,
		Name:     result.Name,
	}, nil
}

func (h *BlogHandler) Ping(ctx context.Context, _ *PingRequest) (*PingResponse, error) {
	if err := h.svc.Ping(ctx); err != nil {
		logger.Log.Debugln("Error calling the `h.svc.Ping()`: ", zap.Error(err))
		return nil, status.Error(codes.Unavailable, "storage unavailable")
	}

	return &PingResponse{OK: true}, nil
}

// toStatus maps a service error kind to a gRPC status. Unclassified errors
// are logged and reported as Internal without details.
func toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrAuthentication):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, service.ErrAuthorization):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	}

	logger.Log.Errorw("gRPC request failed", zap.Error(err))

	return status.Error(codes.Internal, "internal server error")
}
