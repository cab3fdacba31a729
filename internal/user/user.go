// Package user defines the user record used for authentication and blog
// ownership.
package user

// User represents a registered user.
type User struct {
	// ID is the unique identifier of the user, meaning a UUID.
	ID string `json:"id"`

	// Username is unique across all users.
	Username string `json:"username"`

	Name string `json:"name"`

	// PasswordHash is the bcrypt hash of the password. It never leaves the
	// service layer.
	PasswordHash string `json:"password_hash"`

	// BlogIDs lists the blogs attributed to the user, in creation order.
	// Entries may reference blogs that were deleted since.
	BlogIDs []string `json:"blogs"`
}
