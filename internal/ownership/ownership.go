// Package ownership decides whether an authenticated identity may mutate a
// blog. Ownership is direct identifier equality between the requester and
// the user recorded on the blog at creation time; there are no roles.
//
// Callers resolve the blog first: a missing blog is a not-found condition
// and must never reach this package.
package ownership

import (
	"errors"

	"github.com/patric-chuzhbe/bloglist/internal/auth"
	"github.com/patric-chuzhbe/bloglist/internal/models"
)

// ErrNotOwner is returned by Authorize when the identity does not own the blog.
var ErrNotOwner = errors.New("requester is not the blog owner")

// IsOwner reports whether identity owns blog. An empty user id never owns
// anything, including a blog whose owner id is empty.
func IsOwner(identity auth.Identity, blog *models.Blog) bool {
	return identity.UserID != "" && identity.UserID == blog.OwnerID
}

// CanDelete reports whether identity may delete blog.
func CanDelete(identity auth.Identity, blog *models.Blog) bool {
	return IsOwner(identity, blog)
}

// CanUpdate reports whether identity may update blog when updates are
// ownership-checked.
func CanUpdate(identity auth.Identity, blog *models.Blog) bool {
	return IsOwner(identity, blog)
}

// Authorize is CanDelete in error form.
func Authorize(identity auth.Identity, blog *models.Blog) error {
	if !CanDelete(identity, blog) {
		return ErrNotOwner
	}

	return nil
}
