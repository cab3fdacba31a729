// Package models holds the request, response and record types shared by the
// storage backends, the service layer and both transports.
package models

import "errors"

// Blog is the stored blog record. OwnerID is written once, at creation,
// from the authenticated requester and never from client input.
type Blog struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Author  string `json:"author,omitempty"`
	URL     string `json:"url"`
	Likes   int    `json:"likes"`
	OwnerID string `json:"user"`
}

// OwnerSummary is the lightweight owner projection attached to listed blogs.
type OwnerSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// BlogView is a blog with its owner resolved.
type BlogView struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Author string        `json:"author,omitempty"`
	URL    string        `json:"url"`
	Likes  int           `json:"likes"`
	User   *OwnerSummary `json:"user,omitempty"`
}

// BlogSummary is a blog as listed under its owner.
type BlogSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	URL    string `json:"url"`
	Likes  int    `json:"likes"`
}

// CreateBlogRequest is the create payload. Nil members were absent from the
// request body. There is deliberately no owner member.
type CreateBlogRequest struct {
	Title  *string `json:"title" validate:"required,min=1"`
	Author *string `json:"author"`
	URL    *string `json:"url" validate:"required,min=1"`
	Likes  *int    `json:"likes" validate:"omitempty,gte=0"`
}

// UpdateBlogRequest is the update payload. Nil members leave the stored
// value unchanged.
type UpdateBlogRequest struct {
	Title  *string `json:"title" validate:"omitempty,min=1"`
	Author *string `json:"author"`
	URL    *string `json:"url" validate:"omitempty,min=1"`
	Likes  *int    `json:"likes" validate:"omitempty,gte=0"`
}

// BlogUpdate is the set of fields a storage backend writes on update.
type BlogUpdate struct {
	Title  *string
	Author *string
	URL    *string
	Likes  *int
}

// DeleteBlogResponse is returned after a successful delete.
type DeleteBlogResponse struct {
	Message string `json:"message"`
}

// RegisterUserRequest is the user registration payload.
type RegisterUserRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Name     string `json:"name"`
	Password string `json:"password" validate:"required,min=3"`
}

// UserView is a user with the blogs referenced by its blog set.
type UserView struct {
	ID       string        `json:"id"`
	Username string        `json:"username"`
	Name     string        `json:"name"`
	Blogs    []BlogSummary `json:"blogs"`
}

// LoginRequest carries the credentials exchanged for a token.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InternalStatsResponse is served to trusted subnets only.
type InternalStatsResponse struct {
	Blogs int64 `json:"blogs"`
	Users int64 `json:"users"`
}

// PruneJob asks the dangling reference pruner to drop BlogID from the blog
// set of UserID.
type PruneJob struct {
	UserID string
	BlogID string
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

// UpdateMode selects how blog updates are authorized.
type UpdateMode string

const (
	// UpdateModePermissive applies updates without authentication.
	UpdateModePermissive UpdateMode = "permissive"
	// UpdateModeStrict requires the requester to own the blog.
	UpdateModeStrict UpdateMode = "strict"
)

// CreateConsistency selects how the two writes of blog creation are
// coordinated.
type CreateConsistency string

const (
	CreateConsistencyNone        CreateConsistency = "none"
	CreateConsistencyTransaction CreateConsistency = "transaction"
	CreateConsistencyCompensate  CreateConsistency = "compensate"
)

var (
	// ErrRecordNotFound is returned by storage backends for unknown ids.
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateUsername is returned when a username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")
)
