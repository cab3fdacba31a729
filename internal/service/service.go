// Package service implements the bloglist operations shared by the HTTP
// and gRPC transports. Every operation receives the requester identity as an
// explicit argument; the zero auth.Identity is an anonymous requester.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bloglist/internal/auth"
	"github.com/patric-chuzhbe/bloglist/internal/logger"
	"github.com/patric-chuzhbe/bloglist/internal/models"
	"github.com/patric-chuzhbe/bloglist/internal/ownership"
	"github.com/patric-chuzhbe/bloglist/internal/user"
)

type transactioner interface {
	BeginTransaction() (*sql.Tx, error)

	RollbackTransaction(transaction *sql.Tx) error

	CommitTransaction(transaction *sql.Tx) error
}

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) (string, error)

	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error)

	GetUserByUsername(ctx context.Context, username string) (*user.User, error)

	GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error)

	ListUsers(ctx context.Context) ([]*user.User, error)

	AppendUserBlog(ctx context.Context, userID, blogID string, transaction *sql.Tx) error
}

type blogKeeper interface {
	InsertBlog(ctx context.Context, blog *models.Blog, transaction *sql.Tx) (string, error)

	GetBlogByID(ctx context.Context, blogID string) (*models.Blog, error)

	ListBlogs(ctx context.Context) ([]*models.Blog, error)

	UpdateBlog(ctx context.Context, blogID string, update models.BlogUpdate) (bool, error)

	DeleteBlog(ctx context.Context, blogID string, transaction *sql.Tx) (bool, error)
}

type statsKeeper interface {
	CountBlogs(ctx context.Context) (int64, error)

	CountUsers(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	transactioner
	userKeeper
	blogKeeper
	statsKeeper
	pinger
}

type tokenIssuer interface {
	BuildToken(usr *user.User) (string, error)
}

type refPruner interface {
	EnqueueJob(job *models.PruneJob)
}

type recorder interface {
	BlogCreated()
	BlogDeleted()
}

type Service struct {
	db                storage
	tokens            tokenIssuer
	pruner            refPruner
	recorder          recorder
	updateMode        models.UpdateMode
	createConsistency models.CreateConsistency
}

// Option configures a Service.
type Option func(*Service)

// WithUpdateMode selects whether updates are ownership-checked.
func WithUpdateMode(mode models.UpdateMode) Option {
	return func(s *Service) {
		s.updateMode = mode
	}
}

// WithCreateConsistency selects how the blog insert and the owner append
// are coordinated.
func WithCreateConsistency(consistency models.CreateConsistency) Option {
	return func(s *Service) {
		s.createConsistency = consistency
	}
}

// WithPruner hands every deleted blog to pruner.
func WithPruner(pruner refPruner) Option {
	return func(s *Service) {
		s.pruner = pruner
	}
}

func WithRecorder(recorder recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

func New(db storage, tokens tokenIssuer, options ...Option) *Service {
	s := &Service{
		db:                db,
		tokens:            tokens,
		updateMode:        models.UpdateModePermissive,
		createConsistency: models.CreateConsistencyNone,
	}
	for _, option := range options {
		option(s)
	}

	return s
}

// Ping checks the health of the storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// ListBlogs returns every blog with its owner summary resolved.
func (s *Service) ListBlogs(ctx context.Context) ([]models.BlogView, error) {
	blogs, err := s.db.ListBlogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/ListBlogs(): error while `s.db.ListBlogs()` calling: %w", err)
	}

	ownerIDs := make([]string, 0, len(blogs))
	for _, blog := range blogs {
		ownerIDs = append(ownerIDs, blog.OwnerID)
	}
	owners, err := s.db.GetUsersByIDs(ctx, funk.UniqString(ownerIDs))
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/ListBlogs(): error while `s.db.GetUsersByIDs()` calling: %w", err)
	}

	result := make([]models.BlogView, 0, len(blogs))
	for _, blog := range blogs {
		result = append(result, toBlogView(blog, owners[blog.OwnerID]))
	}

	return result, nil
}

// CreateBlog stores a new blog owned by identity and appends it to the
// owner's blog set.
func (s *Service) CreateBlog(
	ctx context.Context,
	identity auth.Identity,
	request models.CreateBlogRequest,
) (models.BlogView, error) {
	if err := validateRequest(request); err != nil {
		return models.BlogView{}, err
	}

	owner, err := s.resolveRequester(ctx, identity)
	if err != nil {
		return models.BlogView{}, err
	}

	blog := &models.Blog{
		ID:      uuid.New().String(),
		Title:   *request.Title,
		URL:     *request.URL,
		OwnerID: owner.ID,
	}
	if request.Author != nil {
		blog.Author = *request.Author
	}
	if request.Likes != nil {
		blog.Likes = *request.Likes
	}

	switch s.createConsistency {
	case models.CreateConsistencyTransaction:
		err = s.insertBlogInTransaction(ctx, blog)
	case models.CreateConsistencyCompensate:
		err = s.insertBlogWithCompensation(ctx, blog)
	default:
		err = s.insertBlog(ctx, blog)
	}
	if err != nil {
		return models.BlogView{}, err
	}

	if s.recorder != nil {
		s.recorder.BlogCreated()
	}

	return toBlogView(blog, owner), nil
}

func (s *Service) insertBlog(ctx context.Context, blog *models.Blog) error {
	blogID, err := s.db.InsertBlog(ctx, blog, nil)
	if err != nil {
		return fmt.Errorf("in internal/service/service.go/insertBlog(): error while `s.db.InsertBlog()` calling: %w", err)
	}
	blog.ID = blogID

	if err := s.db.AppendUserBlog(ctx, blog.OwnerID, blogID, nil); err != nil {
		return fmt.Errorf("in internal/service/service.go/insertBlog(): error while `s.db.AppendUserBlog()` calling: %w", err)
	}

	return nil
}

func (s *Service) insertBlogInTransaction(ctx context.Context, blog *models.Blog) error {
	tx, err := s.db.BeginTransaction()
	if err != nil {
		return fmt.Errorf("in internal/service/service.go/insertBlogInTransaction(): error while `s.db.BeginTransaction()` calling: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = s.db.RollbackTransaction(tx)
		}
	}()

	blogID, err := s.db.InsertBlog(ctx, blog, tx)
	if err != nil {
		return fmt.Errorf("in internal/service/service.go/insertBlogInTransaction(): error while `s.db.InsertBlog()` calling: %w", err)
	}
	blog.ID = blogID

	if err := s.db.AppendUserBlog(ctx, blog.OwnerID, blogID, tx); err != nil {
		return fmt.Errorf("in internal/service/service.go/insertBlogInTransaction(): error while `s.db.AppendUserBlog()` calling: %w", err)
	}

	if err := s.db.CommitTransaction(tx); err != nil {
		return fmt.Errorf("in internal/service/service.go/insertBlogInTransaction(): error while `s.db.CommitTransaction()` calling: %w", err)
	}
	committed = true

	return nil
}

func (s *Service) insertBlogWithCompensation(ctx context.Context, blog *models.Blog) error {
	blogID, err := s.db.InsertBlog(ctx, blog, nil)
	if err != nil {
		return fmt.Errorf("in internal/service/service.go/insertBlogWithCompensation(): error while `s.db.InsertBlog()` calling: %w", err)
	}
	blog.ID = blogID

	appendErr := s.db.AppendUserBlog(ctx, blog.OwnerID, blogID, nil)
	if appendErr == nil {
		return nil
	}

	_, undoErr := s.db.DeleteBlog(ctx, blogID, nil)
	if undoErr != nil {
		logger.Log.Errorw("orphaned blog left behind", "blog_id", blogID, zap.Error(undoErr))
	}

	return fmt.Errorf(
		"in internal/service/service.go/insertBlogWithCompensation(): error while `s.db.AppendUserBlog()` calling: %w",
		multierr.Append(appendErr, undoErr),
	)
}

// DeleteBlog removes a blog owned by identity. The owner's blog set keeps
// the id unless a pruner is configured.
func (s *Service) DeleteBlog(
	ctx context.Context,
	identity auth.Identity,
	blogID string,
) (models.DeleteBlogResponse, error) {
	if identity.UserID == "" {
		return models.DeleteBlogResponse{}, newError(ErrAuthentication, "token missing")
	}

	blog, err := s.findBlog(ctx, blogID)
	if err != nil {
		return models.DeleteBlogResponse{}, err
	}

	if err := ownership.Authorize(identity, blog); err != nil {
		return models.DeleteBlogResponse{}, newError(ErrAuthorization, "Deleting blog forbidden")
	}

	deleted, err := s.db.DeleteBlog(ctx, blogID, nil)
	if err != nil {
		return models.DeleteBlogResponse{}, fmt.Errorf("in internal/service/service.go/DeleteBlog(): error while `s.db.DeleteBlog()` calling: %w", err)
	}
	if !deleted {
		return models.DeleteBlogResponse{}, newError(ErrNotFound, "blog not found")
	}

	if s.pruner != nil {
		s.pruner.EnqueueJob(&models.PruneJob{UserID: blog.OwnerID, BlogID: blog.ID})
	}
	if s.recorder != nil {
		s.recorder.BlogDeleted()
	}

	return models.DeleteBlogResponse{
		Message: fmt.Sprintf("blog '%s' deleted", blog.Title),
	}, nil
}

// UpdateBlog writes the fields present in request. In permissive mode any
// requester may update any blog and an unknown id is a no-op; in strict mode
// the requester must own the blog.
func (s *Service) UpdateBlog(
	ctx context.Context,
	identity auth.Identity,
	blogID string,
	request models.UpdateBlogRequest,
) error {
	if err := validateRequest(request); err != nil {
		return err
	}

	strict := s.updateMode == models.UpdateModeStrict
	if strict {
		if identity.UserID == "" {
			return newError(ErrAuthentication, "token missing")
		}
		blog, err := s.findBlog(ctx, blogID)
		if err != nil {
			return err
		}
		if !ownership.CanUpdate(identity, blog) {
			return newError(ErrAuthorization, "Updating blog forbidden")
		}
	}

	found, err := s.db.UpdateBlog(ctx, blogID, models.BlogUpdate{
		Title:  request.Title,
		Author: request.Author,
		URL:    request.URL,
		Likes:  request.Likes,
	})
	if err != nil {
		return fmt.Errorf("in internal/service/service.go/UpdateBlog(): error while `s.db.UpdateBlog()` calling: %w", err)
	}
	if !found && strict {
		return newError(ErrNotFound, "blog not found")
	}

	return nil
}

// RegisterUser creates a user account.
func (s *Service) RegisterUser(ctx context.Context, request models.RegisterUserRequest) (models.UserView, error) {
	if err := validateRequest(request); err != nil {
		return models.UserView{}, err
	}

	passwordHash, err := auth.HashPassword(request.Password)
	if err != nil {
		return models.UserView{}, fmt.Errorf("in internal/service/service.go/RegisterUser(): error while `auth.HashPassword()` calling: %w", err)
	}

	usr := &user.User{
		Username:     request.Username,
		Name:         request.Name,
		PasswordHash: passwordHash,
	}
	usr.ID, err = s.db.CreateUser(ctx, usr, nil)
	if errors.Is(err, models.ErrDuplicateUsername) {
		return models.UserView{}, newError(ErrConflict, "username must be unique")
	}
	if err != nil {
		return models.UserView{}, fmt.Errorf("in internal/service/service.go/RegisterUser(): error while `s.db.CreateUser()` calling: %w", err)
	}

	return models.UserView{
		ID:       usr.ID,
		Username: usr.Username,
		Name:     usr.Name,
		Blogs:    []models.BlogSummary{},
	}, nil
}

// ListUsers returns every user with the blogs its blog set references.
// References to deleted blogs are skipped.
func (s *Service) ListUsers(ctx context.Context) ([]models.UserView, error) {
	users, err := s.db.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/ListUsers(): error while `s.db.ListUsers()` calling: %w", err)
	}

	blogs, err := s.db.ListBlogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/ListUsers(): error while `s.db.ListBlogs()` calling: %w", err)
	}
	blogsByID := make(map[string]*models.Blog, len(blogs))
	for _, blog := range blogs {
		blogsByID[blog.ID] = blog
	}

	result := make([]models.UserView, 0, len(users))
	for _, usr := range users {
		view := models.UserView{
			ID:       usr.ID,
			Username: usr.Username,
			Name:     usr.Name,
			Blogs:    make([]models.BlogSummary, 0, len(usr.BlogIDs)),
		}
		for _, blogID := range usr.BlogIDs {
			blog, ok := blogsByID[blogID]
			if !ok {
				continue
			}
			view.Blogs = append(view.Blogs, models.BlogSummary{
				ID:     blog.ID,
				Title:  blog.Title,
				Author: blog.Author,
				URL:    blog.URL,
				Likes:  blog.Likes,
			})
		}
		result = append(result, view)
	}

	return result, nil
}

// Login exchanges credentials for a bearer token.
func (s *Service) Login(ctx context.Context, request models.LoginRequest) (models.LoginResponse, error) {
	invalidCredentials := newError(ErrAuthentication, "invalid username or password")

	if request.Username == "" || request.Password == "" {
		return models.LoginResponse{}, invalidCredentials
	}

	usr, err := s.db.GetUserByUsername(ctx, request.Username)
	if errors.Is(err, models.ErrRecordNotFound) {
		return models.LoginResponse{}, invalidCredentials
	}
	if err != nil {
		return models.LoginResponse{}, fmt.Errorf("in internal/service/service.go/Login(): error while `s.db.GetUserByUsername()` calling: %w", err)
	}

	if !auth.CheckPassword(usr.PasswordHash, request.Password) {
		return models.LoginResponse{}, invalidCredentials
	}

	token, err := s.tokens.BuildToken(usr)
	if err != nil {
		return models.LoginResponse{}, fmt.Errorf("in internal/service/service.go/Login(): error while `s.tokens.BuildToken()` calling: %w", err)
	}

	return models.LoginResponse{
		Token:    token,
		Username: usr.Username,
		Name:     usr.Name,
	}, nil
}

// GetInternalStats returns the number of stored blogs and users.
func (s *Service) GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error) {
	blogs, err := s.db.CountBlogs(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	users, err := s.db.CountUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	return models.InternalStatsResponse{
		Blogs: blogs,
		Users: users,
	}, nil
}

func (s *Service) resolveRequester(ctx context.Context, identity auth.Identity) (*user.User, error) {
	if identity.UserID == "" {
		return nil, newError(ErrAuthentication, "token missing")
	}

	owner, err := s.db.GetUserByID(ctx, identity.UserID, nil)
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, newError(ErrAuthentication, "token invalid")
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/resolveRequester(): error while `s.db.GetUserByID()` calling: %w", err)
	}

	return owner, nil
}

func (s *Service) findBlog(ctx context.Context, blogID string) (*models.Blog, error) {
	blog, err := s.db.GetBlogByID(ctx, blogID)
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "blog not found")
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/findBlog(): error while `s.db.GetBlogByID()` calling: %w", err)
	}

	return blog, nil
}

func toBlogView(blog *models.Blog, owner *user.User) models.BlogView {
	view := models.BlogView{
		ID:     blog.ID,
		Title:  blog.Title,
		Author: blog.Author,
		URL:    blog.URL,
		Likes:  blog.Likes,
	}
	if owner != nil {
		view.User = &models.OwnerSummary{
			ID:       owner.ID,
			Username: owner.Username,
			Name:     owner.Name,
		}
	}

	return view
}
