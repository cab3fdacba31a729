package grpcserver

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/bloglist/internal/auth"
	"github.com/patric-chuzhbe/bloglist/internal/config"
	"github.com/patric-chuzhbe/bloglist/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bloglist/internal/logger"
	"github.com/patric-chuzhbe/bloglist/internal/mockstorage"
	"github.com/patric-chuzhbe/bloglist/internal/models"
	"github.com/patric-chuzhbe/bloglist/internal/service"
)

const (
	addr         = "localhost:0"
	dialTimeout  = 5 * time.Second
	testPassword = "sekret"
)

type initOptions struct {
	mockStorage *mockstorage.StorageMock
	updateMode  models.UpdateMode
}

type initOption func(*initOptions)

func withMockStorage(db *mockstorage.StorageMock) initOption {
	return func(options *initOptions) {
		options.mockStorage = db
	}
}

func withUpdateMode(mode models.UpdateMode) initOption {
	return func(options *initOptions) {
		options.updateMode = mode
	}
}

type testEnv struct {
	client  *BlogServiceClient
	service *service.Service
}

func strPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}

// startTestGRPCServer boots up a test gRPC server and returns the client and shutdown function.
func startTestGRPCServer(t *testing.T, optionsProto ...initOption) (*testEnv, func()) {
	options := &initOptions{updateMode: models.UpdateModePermissive}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	require.NoError(t, logger.Init("debug", ""))

	cfg, err := config.New(config.WithDisableFlagsParsing(true))
	require.NoError(t, err)

	signingKey, err := base64.URLEncoding.DecodeString(cfg.TokenSigningSecretKey)
	require.NoError(t, err)

	var (
		svc     *service.Service
		keeper  userKeeper
		theAuth *auth.Auth
	)
	if options.mockStorage != nil {
		theAuth = auth.New(options.mockStorage, cfg.AuthCookieName, signingKey, cfg.TokenTTL)
		svc = service.New(options.mockStorage, theAuth)
		keeper = options.mockStorage
	} else {
		db, err := memorystorage.New()
		require.NoError(t, err)
		theAuth = auth.New(db, cfg.AuthCookieName, signingKey, cfg.TokenTTL)
		svc = service.New(db, theAuth, service.WithUpdateMode(options.updateMode))
		keeper = db
	}

	server, lis, err := NewGRPCServer(addr, NewBlogHandler(svc), theAuth, keeper)
	require.NoError(t, err)

	go func() {
		if err := server.Serve(lis); err != nil {
			t.Logf("gRPC server stopped: %v", err)
		}
	}()

	dialContext, cancelDial := context.WithTimeout(context.Background(), dialTimeout)
	defer cancelDial()

	conn, err := grpc.DialContext(
		dialContext,
		lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	require.NoError(t, err)

	return &testEnv{client: NewBlogServiceClient(conn), service: svc},
		func() {
			server.Stop()
			conn.Close()
			lis.Close()
		}
}

// loginAs registers username and returns an outgoing context carrying its token.
func (env *testEnv) loginAs(t *testing.T, username string) context.Context {
	ctx := context.Background()

	_, err := env.service.RegisterUser(ctx, models.RegisterUserRequest{
		Username: username,
		Name:     username,
		Password: testPassword,
	})
	require.NoError(t, err)

	resp, err := env.client.Login(ctx, &LoginRequest{Username: username, Password: testPassword})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)

	return metadata.NewOutgoingContext(ctx, metadata.Pairs("authorization", "Bearer "+resp.Token))
}

func (env *testEnv) createBlog(t *testing.T, ctx context.Context, title string) models.BlogView {
	resp, err := env.client.CreateBlog(ctx, &CreateBlogRequest{
		Blog: models.CreateBlogRequest{
			Title:  strPtr(title),
			Author: strPtr("Michael Chan"),
			URL:    strPtr("https://reactpatterns.com/"),
		},
	})
	require.NoError(t, err)

	return resp.Blog
}

func requireCode(t *testing.T, err error, code codes.Code) {
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, code, st.Code(), st.Message())
}

func TestCreateBlog_Success(t *testing.T) {
	env, shutdown := startTestGRPCServer(t)
	defer shutdown()

	ctx := env.loginAs(t, "mluukkai")
	blog := env.createBlog(t, ctx, "React patterns")

	assert.NotEmpty(t, blog.ID)
	assert.Equal(t, 0, blog.Likes)
	require.NotNil(t, blog.User)
	assert.Equal(t, "mluukkai", blog.User.Username)

	list, err := env.client.ListBlogs(context.Background(), &ListBlogsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Blogs, 1)
	assert.Equal(t, blog.ID, list.Blogs[0].ID)
}

func TestCreateBlog_Anonymous(t *testing.T) {
	env, shutdown := startTestGRPCServer(t)
	defer shutdown()

	_, err := env.client.CreateBlog(context.Background(), &CreateBlogRequest{
		Blog: models.CreateBlogRequest{Title: strPtr("t"), URL: strPtr("u")},
	})
	requireCode(t, err, codes.Unauthenticated)
}

func TestCreateBlog_InvalidToken(t *testing.T) {
	env, shutdown := startTestGRPCServer(t)
	defer shutdown()

	ctx := metadata.NewOutgoingContext(context.Background(), metadata.Pairs("authorization", "Bearer garbage"))
	_, err := env.client.CreateBlog(ctx, &CreateBlogRequest{
		Blog: models.CreateBlogRequest{Title: strPtr("t"), URL: strPtr("u")},
	})
	requireCode(t, err, codes.Unauthenticated)
}

func TestCreateBlog_MissingTitle(t *testing.T) {
	env, shutdown := startTestGRPCServer(t)
	defer shutdown()

	ctx := env.loginAs(t, "mluukkai")
	_, err := env.client.CreateBlog(ctx, &CreateBlogRequest{
		Blog: models.CreateBlogRequest{URL: strPtr("https://example.com")},
	})
	requireCode(t, err, codes.InvalidArgument)
}

func TestDeleteBlog(t *testing.T) {
	env, shutdown := startTestGRPCServer(t)
	defer shutdown()

	ownerCtx := env.loginAs(t, "mluukkai")
	strangerCtx := env.loginAs(t, "hellas")
	blog := env.createBlog(t, ownerCtx, "React patterns")

	_, err := env.client.DeleteBlog(context.Background(), &DeleteBlogRequest{ID: blog.ID})
	requireCode(t, err, codes.Unauthenticated)

	_, err = env.client.DeleteBlog(strangerCtx, &DeleteBlogRequest{ID: blog.ID})
	requireCode(t, err, codes.PermissionDenied)

	_, err = env.client.DeleteBlog(ownerCtx, &DeleteBlogRequest{ID: "unknown"})
	requireCode(t, err, codes.NotFound)

	resp, err := env.client.DeleteBlog(ownerCtx, &DeleteBlogRequest{ID: blog.ID})
	require.NoError(t, err)
	assert.Equal(t, "blog 'React patterns' deleted", resp.Message)

	list, err := env.client.ListBlogs(context.Background(), &ListBlogsRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Blogs)
}

func TestUpdateBlog_Permissive(t *testing.T) {
	env, shutdown := startTestGRPCServer(t)
	defer shutdown()

	blog := env.createBlog(t, env.loginAs(t, "mluukkai"), "React patterns")

	_, err := env.client.UpdateBlog(context.Background(), &UpdateBlogRequest{
		ID:   blog.ID,
		Blog: models.UpdateBlogRequest{Likes: intPtr(42)},
	})
	require.NoError(t, err)

	list, err := env.client.ListBlogs(context.Background(), &ListBlogsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Blogs, 1)
	assert.Equal(t, 42, list.Blogs[0].Likes)
	assert.Equal(t, "React patterns", list.Blogs[0].Title)

	_, err = env.client.UpdateBlog(context.Background(), &UpdateBlogRequest{
		ID:   blog.ID,
		Blog: models.UpdateBlogRequest{Likes: intPtr(-1)},
	})
	requireCode(t, err, codes.InvalidArgument)
}

func TestUpdateBlog_Strict(t *testing.T) {
	env, shutdown := startTestGRPCServer(t, withUpdateMode(models.UpdateModeStrict))
	defer shutdown()

	ownerCtx := env.loginAs(t, "mluukkai")
	strangerCtx := env.loginAs(t, "hellas")
	blog := env.createBlog(t, ownerCtx, "React patterns")
	update := models.UpdateBlogRequest{Likes: intPtr(3)}

	_, err := env.client.UpdateBlog(context.Background(), &UpdateBlogRequest{ID: blog.ID, Blog: update})
	requireCode(t, err, codes.Unauthenticated)

	_, err = env.client.UpdateBlog(strangerCtx, &UpdateBlogRequest{ID: blog.ID, Blog: update})
	requireCode(t, err, codes.PermissionDenied)

	_, err = env.client.UpdateBlog(ownerCtx, &UpdateBlogRequest{ID: "unknown", Blog: update})
	requireCode(t, err, codes.NotFound)

	_, err = env.client.UpdateBlog(ownerCtx, &UpdateBlogRequest{ID: blog.ID, Blog: update})
	require.NoError(t, err)
}

func TestInvalidToken_OpenMethods(t *testing.T) {
	env, shutdown := startTestGRPCServer(t)
	defer shutdown()

	blog := env.createBlog(t, env.loginAs(t, "mluukkai"), "React patterns")
	ctx := metadata.NewOutgoingContext(context.Background(), metadata.Pairs("authorization", "Bearer garbage"))

	list, err := env.client.ListBlogs(ctx, &ListBlogsRequest{})
	require.NoError(t, err)
	assert.Len(t, list.Blogs, 1)

	_, err = env.client.UpdateBlog(ctx, &UpdateBlogRequest{
		ID:   blog.ID,
		Blog: models.UpdateBlogRequest{Likes: intPtr(5)},
	})
	require.NoError(t, err)

	_, err = env.client.DeleteBlog(ctx, &DeleteBlogRequest{ID: blog.ID})
	requireCode(t, err, codes.Unauthenticated)
}

func TestLogin_WrongPassword(t *testing.T) {
	env, shutdown := startTestGRPCServer(t)
	defer shutdown()

	env.loginAs(t, "mluukkai")

	_, err := env.client.Login(context.Background(), &LoginRequest{Username: "mluukkai", Password: "wrong"})
	requireCode(t, err, codes.Unauthenticated)
}

func TestPing_Success(t *testing.T) {
	env, shutdown := startTestGRPCServer(t)
	defer shutdown()

	resp, err := env.client.Ping(context.Background(), &PingRequest{})
	require.NoError(t, err)
	assert.True(t, resp.OK)
}

func TestPing_DBFailure(t *testing.T) {
	db := new(mockstorage.StorageMock)
	env, shutdown := startTestGRPCServer(t, withMockStorage(db))
	defer shutdown()

	db.On("Ping", mock.Anything).Return(errors.New("db error"))

	_, err := env.client.Ping(context.Background(), &PingRequest{})
	requireCode(t, err, codes.Unavailable)
}

func TestListBlogs_InternalError(t *testing.T) {
	db := new(mockstorage.StorageMock)
	env, shutdown := startTestGRPCServer(t, withMockStorage(db))
	defer shutdown()

	db.On("ListBlogs", mock.Anything).Return(nil, errors.New("db error"))

	_, err := env.client.ListBlogs(context.Background(), &ListBlogsRequest{})
	requireCode(t, err, codes.Internal)
}
