// Package mockstorage provides a testify-based mock implementation
// of the storage interface consumed by the service package.
// It lets service tests simulate store failures that the real backends
// cannot produce on demand.
package mockstorage

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/bloglist/internal/models"
	"github.com/patric-chuzhbe/bloglist/internal/user"
)

// StorageMock is a testify mock of the blog and user store.
type StorageMock struct {
	mock.Mock

	// OnCountUsers, when set, replaces the testify handler for CountUsers.
	OnCountUsers func(ctx context.Context) (int64, error)

	// OnCountBlogs, when set, replaces the testify handler for CountBlogs.
	OnCountBlogs func(ctx context.Context) (int64, error)
}

func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StorageMock) BeginTransaction() (*sql.Tx, error) {
	args := m.Called()
	tx, _ := args.Get(0).(*sql.Tx)
	return tx, args.Error(1)
}

func (m *StorageMock) CommitTransaction(tx *sql.Tx) error {
	args := m.Called(tx)
	return args.Error(0)
}

func (m *StorageMock) RollbackTransaction(tx *sql.Tx) error {
	args := m.Called(tx)
	return args.Error(0)
}

func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User, tx *sql.Tx) (string, error) {
	args := m.Called(ctx, usr, tx)
	return args.String(0), args.Error(1)
}

func (m *StorageMock) GetUserByID(ctx context.Context, userID string, tx *sql.Tx) (*user.User, error) {
	args := m.Called(ctx, userID, tx)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	args := m.Called(ctx, username)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error) {
	args := m.Called(ctx, userIDs)
	users, _ := args.Get(0).(map[string]*user.User)
	return users, args.Error(1)
}

func (m *StorageMock) ListUsers(ctx context.Context) ([]*user.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]*user.User)
	return users, args.Error(1)
}

func (m *StorageMock) InsertBlog(ctx context.Context, blog *models.Blog, tx *sql.Tx) (string, error) {
	args := m.Called(ctx, blog, tx)
	return args.String(0), args.Error(1)
}

func (m *StorageMock) GetBlogByID(ctx context.Context, blogID string) (*models.Blog, error) {
	args := m.Called(ctx, blogID)
	blog, _ := args.Get(0).(*models.Blog)
	return blog, args.Error(1)
}

func (m *StorageMock) ListBlogs(ctx context.Context) ([]*models.Blog, error) {
	args := m.Called(ctx)
	blogs, _ := args.Get(0).([]*models.Blog)
	return blogs, args.Error(1)
}

func (m *StorageMock) UpdateBlog(ctx context.Context, blogID string, update models.BlogUpdate) (bool, error) {
	args := m.Called(ctx, blogID, update)
	return args.Bool(0), args.Error(1)
}

func (m *StorageMock) DeleteBlog(ctx context.Context, blogID string, tx *sql.Tx) (bool, error) {
	args := m.Called(ctx, blogID, tx)
	return args.Bool(0), args.Error(1)
}

func (m *StorageMock) AppendUserBlog(ctx context.Context, userID, blogID string, tx *sql.Tx) error {
	args := m.Called(ctx, userID, blogID, tx)
	return args.Error(0)
}

func (m *StorageMock) RemoveUserBlogs(ctx context.Context, userBlogs map[string][]string) error {
	args := m.Called(ctx, userBlogs)
	return args.Error(0)
}

func (m *StorageMock) CountUsers(ctx context.Context) (int64, error) {
	if m.OnCountUsers != nil {
		return m.OnCountUsers(ctx)
	}
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StorageMock) CountBlogs(ctx context.Context) (int64, error) {
	if m.OnCountBlogs != nil {
		return m.OnCountBlogs(ctx)
	}
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
