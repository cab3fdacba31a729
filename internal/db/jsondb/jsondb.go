// Package jsondb is a file-backed storage backend. The whole dataset lives
// in memory behind a mutex and is written to the JSON file on Close.
package jsondb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/bloglist/internal/models"
	"github.com/patric-chuzhbe/bloglist/internal/user"
)

type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

// CacheStruct is the persisted document. BlogOrder keeps blogs in insertion
// order for listing.
type CacheStruct struct {
	Users     map[string]*user.User
	Blogs     map[string]*models.Blog
	BlogOrder []string
	UserOrder []string
}

// NewCache returns an empty dataset.
func NewCache() CacheStruct {
	return CacheStruct{
		Users:     map[string]*user.User{},
		Blogs:     map[string]*models.Blog{},
		BlogOrder: []string{},
		UserOrder: []string{},
	}
}

func (db *JSONDB) CommitTransaction(transaction *sql.Tx) error {
	return nil
}

func (db *JSONDB) RollbackTransaction(transaction *sql.Tx) error {
	return nil
}

// BeginTransaction returns a nil transaction: every write is applied
// immediately under the store mutex.
func (db *JSONDB) BeginTransaction() (*sql.Tx, error) {
	return nil, nil
}

func initDBFile(fileName string) error {
	return writeToJSONFile(fileName, NewCache())
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	file, err := os.OpenFile(fileName, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	if _, err = file.Write(jsonData); err != nil {
		return fmt.Errorf("error writing to file: %w", err)
	}

	return nil
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cache)
}

// New opens fileName, creating an empty dataset file if it does not exist.
func New(fileName string) (*JSONDB, error) {
	db := &JSONDB{
		fileName: fileName,
		Cache:    NewCache(),
	}

	err := parseJSONFile(db.fileName, &db.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := initDBFile(fileName); err != nil {
			return nil, err
		}
	}
	db.Cache.fillNilMaps()

	return db, nil
}

// NewInMemory returns a store that is never written to disk.
func NewInMemory() *JSONDB {
	return &JSONDB{Cache: NewCache()}
}

func (c *CacheStruct) fillNilMaps() {
	if c.Users == nil {
		c.Users = map[string]*user.User{}
	}
	if c.Blogs == nil {
		c.Blogs = map[string]*models.Blog{}
	}
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close writes the dataset to the backing file, if there is one.
func (db *JSONDB) Close() error {
	if db.fileName == "" {
		return nil
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	return writeToJSONFile(db.fileName, db.Cache)
}

func (db *JSONDB) CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.Cache.Users {
		if strings.EqualFold(existing.Username, usr.Username) {
			return "", models.ErrDuplicateUsername
		}
	}

	stored := *usr
	stored.ID = uuid.New().String()
	stored.BlogIDs = []string{}
	db.Cache.Users[stored.ID] = &stored
	db.Cache.UserOrder = append(db.Cache.UserOrder, stored.ID)

	return stored.ID, nil
}

func (db *JSONDB) GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	usr, ok := db.Cache.Users[userID]
	if !ok {
		return nil, models.ErrRecordNotFound
	}

	return copyUser(usr), nil
}

func (db *JSONDB) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, usr := range db.Cache.Users {
		if strings.EqualFold(usr.Username, username) {
			return copyUser(usr), nil
		}
	}

	return nil, models.ErrRecordNotFound
}

// GetUsersByIDs returns the known users among userIDs keyed by id.
func (db *JSONDB) GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make(map[string]*user.User, len(userIDs))
	for _, id := range userIDs {
		if usr, ok := db.Cache.Users[id]; ok {
			result[id] = copyUser(usr)
		}
	}

	return result, nil
}

func (db *JSONDB) ListUsers(ctx context.Context) ([]*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make([]*user.User, 0, len(db.Cache.UserOrder))
	for _, id := range db.Cache.UserOrder {
		if usr, ok := db.Cache.Users[id]; ok {
			result = append(result, copyUser(usr))
		}
	}

	return result, nil
}

func (db *JSONDB) InsertBlog(ctx context.Context, blog *models.Blog, transaction *sql.Tx) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored := *blog
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	db.Cache.Blogs[stored.ID] = &stored
	db.Cache.BlogOrder = append(db.Cache.BlogOrder, stored.ID)

	return stored.ID, nil
}

func (db *JSONDB) GetBlogByID(ctx context.Context, blogID string) (*models.Blog, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	blog, ok := db.Cache.Blogs[blogID]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	result := *blog

	return &result, nil
}

func (db *JSONDB) ListBlogs(ctx context.Context) ([]*models.Blog, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make([]*models.Blog, 0, len(db.Cache.BlogOrder))
	for _, id := range db.Cache.BlogOrder {
		if blog, ok := db.Cache.Blogs[id]; ok {
			b := *blog
			result = append(result, &b)
		}
	}

	return result, nil
}

// UpdateBlog applies the non-nil fields of update and reports whether the
// blog exists.
func (db *JSONDB) UpdateBlog(ctx context.Context, blogID string, update models.BlogUpdate) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	blog, ok := db.Cache.Blogs[blogID]
	if !ok {
		return false, nil
	}
	if update.Title != nil {
		blog.Title = *update.Title
	}
	if update.Author != nil {
		blog.Author = *update.Author
	}
	if update.URL != nil {
		blog.URL = *update.URL
	}
	if update.Likes != nil {
		blog.Likes = *update.Likes
	}

	return true, nil
}

// DeleteBlog removes the blog record and reports whether it existed. Owner
// blog sets are left untouched.
func (db *JSONDB) DeleteBlog(ctx context.Context, blogID string, transaction *sql.Tx) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.Cache.Blogs[blogID]; !ok {
		return false, nil
	}
	delete(db.Cache.Blogs, blogID)
	db.Cache.BlogOrder = funk.Filter(db.Cache.BlogOrder, func(id string) bool {
		return id != blogID
	}).([]string)

	return true, nil
}

// AppendUserBlog adds blogID to the blog set of userID. The append happens
// under the store mutex so concurrent appends for one user are never lost.
func (db *JSONDB) AppendUserBlog(ctx context.Context, userID, blogID string, transaction *sql.Tx) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	usr, ok := db.Cache.Users[userID]
	if !ok {
		return models.ErrRecordNotFound
	}
	if !funk.ContainsString(usr.BlogIDs, blogID) {
		usr.BlogIDs = append(usr.BlogIDs, blogID)
	}

	return nil
}

// RemoveUserBlogs drops the given blog ids from each user's blog set.
func (db *JSONDB) RemoveUserBlogs(ctx context.Context, userBlogs map[string][]string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for userID, blogIDs := range userBlogs {
		usr, ok := db.Cache.Users[userID]
		if !ok {
			continue
		}
		usr.BlogIDs = funk.Filter(usr.BlogIDs, func(id string) bool {
			return !funk.ContainsString(blogIDs, id)
		}).([]string)
	}

	return nil
}

func (db *JSONDB) CountBlogs(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Blogs)), nil
}

func (db *JSONDB) CountUsers(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Users)), nil
}

func copyUser(usr *user.User) *user.User {
	result := *usr
	result.BlogIDs = append([]string{}, usr.BlogIDs...)

	return &result
}
