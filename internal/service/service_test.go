package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/bloglist/internal/auth"
	"github.com/patric-chuzhbe/bloglist/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bloglist/internal/mockstorage"
	"github.com/patric-chuzhbe/bloglist/internal/models"
	"github.com/patric-chuzhbe/bloglist/internal/user"
)

var testSigningKey = []byte("service-test-signing-key")

type countingRecorder struct {
	mu      sync.Mutex
	created int
	deleted int
}

func (r *countingRecorder) BlogCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *countingRecorder) BlogDeleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted++
}

type collectingPruner struct {
	jobs []*models.PruneJob
}

func (p *collectingPruner) EnqueueJob(job *models.PruneJob) {
	p.jobs = append(p.jobs, job)
}

func strPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}

func newTestService(t *testing.T, options ...Option) (*Service, *memorystorage.MemoryStorage) {
	t.Helper()

	db, err := memorystorage.New()
	require.NoError(t, err)

	return New(db, auth.New(db, "", testSigningKey, time.Hour), options...), db
}

func registerUser(t *testing.T, s *Service, username string) auth.Identity {
	t.Helper()

	view, err := s.RegisterUser(context.Background(), models.RegisterUserRequest{
		Username: username,
		Name:     gofakeit.Name(),
		Password: "sekret",
	})
	require.NoError(t, err)

	return auth.Identity{UserID: view.ID, Username: view.Username}
}

func TestCreateBlog(t *testing.T) {
	ctx := context.Background()
	recorder := &countingRecorder{}
	s, db := newTestService(t, WithRecorder(recorder))
	owner := registerUser(t, s, "mluukkai")

	t.Run("likes default to zero and owner comes from identity", func(t *testing.T) {
		view, err := s.CreateBlog(ctx, owner, models.CreateBlogRequest{
			Title: strPtr("Type wars"),
			URL:   strPtr("http://blog.cleancoder.com/"),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, view.Likes)
		require.NotNil(t, view.User)
		assert.Equal(t, owner.UserID, view.User.ID)
		assert.Equal(t, "mluukkai", view.User.Username)

		usr, err := db.GetUserByID(ctx, owner.UserID, nil)
		require.NoError(t, err)
		assert.Contains(t, usr.BlogIDs, view.ID)
		assert.Equal(t, 1, recorder.created)
	})

	tests := []struct {
		name    string
		request models.CreateBlogRequest
		message string
	}{
		{
			name:    "missing title",
			request: models.CreateBlogRequest{URL: strPtr("http://example.com")},
			message: "title missing",
		},
		{
			name:    "empty title",
			request: models.CreateBlogRequest{Title: strPtr(""), URL: strPtr("http://example.com")},
			message: "title missing",
		},
		{
			name:    "missing url",
			request: models.CreateBlogRequest{Title: strPtr("t")},
			message: "url missing",
		},
		{
			name:    "negative likes",
			request: models.CreateBlogRequest{Title: strPtr("t"), URL: strPtr("u"), Likes: intPtr(-1)},
			message: "likes must be a non-negative integer",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			before, err := db.CountBlogs(ctx)
			require.NoError(t, err)

			_, err = s.CreateBlog(ctx, owner, test.request)
			require.ErrorIs(t, err, ErrValidation)
			assert.EqualError(t, err, test.message)

			after, err := db.CountBlogs(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after, "nothing should be persisted")
		})
	}

	t.Run("anonymous requester", func(t *testing.T) {
		_, err := s.CreateBlog(ctx, auth.Identity{}, models.CreateBlogRequest{Title: strPtr("t"), URL: strPtr("u")})
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("requester that no longer exists", func(t *testing.T) {
		_, err := s.CreateBlog(ctx, auth.Identity{UserID: "ghost"}, models.CreateBlogRequest{Title: strPtr("t"), URL: strPtr("u")})
		assert.ErrorIs(t, err, ErrAuthentication)
	})
}

func TestConcurrentCreatesKeepEveryBlogInOwnerSet(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)
	owner := registerUser(t, s, "concurrent")

	const writers = 30
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateBlog(ctx, owner, models.CreateBlogRequest{
				Title: strPtr(gofakeit.Sentence(3)),
				URL:   strPtr(gofakeit.URL()),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	usr, err := db.GetUserByID(ctx, owner.UserID, nil)
	require.NoError(t, err)
	assert.Len(t, usr.BlogIDs, writers)
}

func TestDeleteBlog(t *testing.T) {
	ctx := context.Background()
	recorder := &countingRecorder{}
	pruner := &collectingPruner{}
	s, db := newTestService(t, WithRecorder(recorder), WithPruner(pruner))
	owner := registerUser(t, s, "owner")
	stranger := registerUser(t, s, "stranger")

	blog, err := s.CreateBlog(ctx, owner, models.CreateBlogRequest{Title: strPtr("First class tests"), URL: strPtr("u")})
	require.NoError(t, err)

	t.Run("anonymous", func(t *testing.T) {
		_, err := s.DeleteBlog(ctx, auth.Identity{}, blog.ID)
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("not the owner", func(t *testing.T) {
		_, err := s.DeleteBlog(ctx, stranger, blog.ID)
		require.ErrorIs(t, err, ErrAuthorization)
		assert.EqualError(t, err, "Deleting blog forbidden")

		_, err = db.GetBlogByID(ctx, blog.ID)
		assert.NoError(t, err, "the blog should still exist")
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.DeleteBlog(ctx, owner, "unknown")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrAuthorization)
	})

	t.Run("owner", func(t *testing.T) {
		response, err := s.DeleteBlog(ctx, owner, blog.ID)
		require.NoError(t, err)
		assert.Equal(t, "blog 'First class tests' deleted", response.Message)

		_, err = db.GetBlogByID(ctx, blog.ID)
		assert.ErrorIs(t, err, models.ErrRecordNotFound)

		usr, err := db.GetUserByID(ctx, owner.UserID, nil)
		require.NoError(t, err)
		assert.Contains(t, usr.BlogIDs, blog.ID, "the owner's blog set is not pruned by delete")

		require.Len(t, pruner.jobs, 1)
		assert.Equal(t, &models.PruneJob{UserID: owner.UserID, BlogID: blog.ID}, pruner.jobs[0])
		assert.Equal(t, 1, recorder.deleted)
	})

	t.Run("second delete", func(t *testing.T) {
		_, err := s.DeleteBlog(ctx, owner, blog.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateBlog(t *testing.T) {
	ctx := context.Background()

	t.Run("permissive", func(t *testing.T) {
		s, db := newTestService(t)
		owner := registerUser(t, s, "owner")
		blog, err := s.CreateBlog(ctx, owner, models.CreateBlogRequest{Title: strPtr("t"), URL: strPtr("u"), Author: strPtr("a")})
		require.NoError(t, err)

		err = s.UpdateBlog(ctx, auth.Identity{}, blog.ID, models.UpdateBlogRequest{Likes: intPtr(99)})
		require.NoError(t, err)

		stored, err := db.GetBlogByID(ctx, blog.ID)
		require.NoError(t, err)
		assert.Equal(t, 99, stored.Likes)
		assert.Equal(t, "t", stored.Title)
		assert.Equal(t, "a", stored.Author)
		assert.Equal(t, owner.UserID, stored.OwnerID)

		err = s.UpdateBlog(ctx, auth.Identity{}, "unknown", models.UpdateBlogRequest{Likes: intPtr(1)})
		assert.NoError(t, err, "unknown id is a no-op")

		err = s.UpdateBlog(ctx, auth.Identity{}, blog.ID, models.UpdateBlogRequest{Likes: intPtr(-5)})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("strict", func(t *testing.T) {
		s, db := newTestService(t, WithUpdateMode(models.UpdateModeStrict))
		owner := registerUser(t, s, "owner")
		stranger := registerUser(t, s, "stranger")
		blog, err := s.CreateBlog(ctx, owner, models.CreateBlogRequest{Title: strPtr("t"), URL: strPtr("u")})
		require.NoError(t, err)

		err = s.UpdateBlog(ctx, auth.Identity{}, blog.ID, models.UpdateBlogRequest{Likes: intPtr(1)})
		assert.ErrorIs(t, err, ErrAuthentication)

		err = s.UpdateBlog(ctx, stranger, blog.ID, models.UpdateBlogRequest{Likes: intPtr(1)})
		require.ErrorIs(t, err, ErrAuthorization)
		assert.EqualError(t, err, "Updating blog forbidden")

		err = s.UpdateBlog(ctx, owner, "unknown", models.UpdateBlogRequest{Likes: intPtr(1)})
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.UpdateBlog(ctx, owner, blog.ID, models.UpdateBlogRequest{Title: strPtr("new title")})
		require.NoError(t, err)
		stored, err := db.GetBlogByID(ctx, blog.ID)
		require.NoError(t, err)
		assert.Equal(t, "new title", stored.Title)
		assert.Equal(t, 0, stored.Likes)
	})
}

func TestUsersAndLogin(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	identity := registerUser(t, s, "mluukkai")

	_, err := s.RegisterUser(ctx, models.RegisterUserRequest{Username: "MLUUKKAI", Password: "sekret"})
	require.ErrorIs(t, err, ErrConflict)
	assert.EqualError(t, err, "username must be unique")

	_, err = s.RegisterUser(ctx, models.RegisterUserRequest{Username: "ab", Password: "sekret"})
	require.ErrorIs(t, err, ErrValidation)
	assert.EqualError(t, err, "username must be at least 3 characters long")

	_, err = s.RegisterUser(ctx, models.RegisterUserRequest{Username: "abc", Password: "pw"})
	require.ErrorIs(t, err, ErrValidation)
	assert.EqualError(t, err, "password must be at least 3 characters long")

	blog, err := s.CreateBlog(ctx, identity, models.CreateBlogRequest{Title: strPtr("t"), URL: strPtr("u")})
	require.NoError(t, err)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Len(t, users[0].Blogs, 1)
	assert.Equal(t, blog.ID, users[0].Blogs[0].ID)

	response, err := s.Login(ctx, models.LoginRequest{Username: "mluukkai", Password: "sekret"})
	require.NoError(t, err)
	assert.NotEmpty(t, response.Token)
	assert.Equal(t, "mluukkai", response.Username)

	_, err = s.Login(ctx, models.LoginRequest{Username: "mluukkai", Password: "wrong"})
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = s.Login(ctx, models.LoginRequest{Username: "nobody", Password: "sekret"})
	assert.ErrorIs(t, err, ErrAuthentication)

	stats, err := s.GetInternalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.InternalStatsResponse{Blogs: 1, Users: 1}, stats)
}

func TestCreateConsistencyModes(t *testing.T) {
	ctx := context.Background()
	owner := &user.User{ID: "owner-id", Username: "owner"}
	identity := auth.Identity{UserID: owner.ID}
	request := models.CreateBlogRequest{Title: strPtr("t"), URL: strPtr("u")}
	appendErr := errors.New("append failed")

	t.Run("none leaves the orphan", func(t *testing.T) {
		db := &mockstorage.StorageMock{}
		db.On("GetUserByID", mock.Anything, owner.ID, mock.Anything).Return(owner, nil)
		db.On("InsertBlog", mock.Anything, mock.Anything, mock.Anything).Return("blog-id", nil)
		db.On("AppendUserBlog", mock.Anything, owner.ID, "blog-id", mock.Anything).Return(appendErr)

		_, err := New(db, nil).CreateBlog(ctx, identity, request)
		assert.ErrorIs(t, err, appendErr)
		db.AssertNotCalled(t, "DeleteBlog", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("compensate removes the inserted blog", func(t *testing.T) {
		db := &mockstorage.StorageMock{}
		db.On("GetUserByID", mock.Anything, owner.ID, mock.Anything).Return(owner, nil)
		db.On("InsertBlog", mock.Anything, mock.Anything, mock.Anything).Return("blog-id", nil)
		db.On("AppendUserBlog", mock.Anything, owner.ID, "blog-id", mock.Anything).Return(appendErr)
		db.On("DeleteBlog", mock.Anything, "blog-id", mock.Anything).Return(true, nil).Once()

		_, err := New(db, nil, WithCreateConsistency(models.CreateConsistencyCompensate)).CreateBlog(ctx, identity, request)
		assert.ErrorIs(t, err, appendErr)
		db.AssertExpectations(t)
	})

	t.Run("transaction rolls back on failure", func(t *testing.T) {
		db := &mockstorage.StorageMock{}
		db.On("GetUserByID", mock.Anything, owner.ID, mock.Anything).Return(owner, nil)
		db.On("BeginTransaction").Return(nil, nil)
		db.On("InsertBlog", mock.Anything, mock.Anything, mock.Anything).Return("blog-id", nil)
		db.On("AppendUserBlog", mock.Anything, owner.ID, "blog-id", mock.Anything).Return(appendErr)
		db.On("RollbackTransaction", mock.Anything).Return(nil).Once()

		_, err := New(db, nil, WithCreateConsistency(models.CreateConsistencyTransaction)).CreateBlog(ctx, identity, request)
		assert.ErrorIs(t, err, appendErr)
		db.AssertExpectations(t)
		db.AssertNotCalled(t, "CommitTransaction", mock.Anything)
	})

	t.Run("transaction commits on success", func(t *testing.T) {
		db := &mockstorage.StorageMock{}
		db.On("GetUserByID", mock.Anything, owner.ID, mock.Anything).Return(owner, nil)
		db.On("BeginTransaction").Return(nil, nil)
		db.On("InsertBlog", mock.Anything, mock.Anything, mock.Anything).Return("blog-id", nil)
		db.On("AppendUserBlog", mock.Anything, owner.ID, "blog-id", mock.Anything).Return(nil)
		db.On("CommitTransaction", mock.Anything).Return(nil).Once()

		view, err := New(db, nil, WithCreateConsistency(models.CreateConsistencyTransaction)).CreateBlog(ctx, identity, request)
		require.NoError(t, err)
		assert.Equal(t, "blog-id", view.ID)
		db.AssertExpectations(t)
		db.AssertNotCalled(t, "RollbackTransaction", mock.Anything)
	})
}

func TestStoreFailuresAreNotClientErrors(t *testing.T) {
	db := &mockstorage.StorageMock{}
	db.On("ListBlogs", mock.Anything).Return(nil, errors.New("connection refused"))
	db.OnCountBlogs = func(ctx context.Context) (int64, error) {
		return 0, errors.New("connection refused")
	}

	s := New(db, nil)

	_, err := s.ListBlogs(context.Background())
	require.Error(t, err)
	assert.False(t, IsClientError(err))

	_, err = s.GetInternalStats(context.Background())
	require.Error(t, err)
	assert.False(t, IsClientError(err))
}
