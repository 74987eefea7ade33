package user

import "context"

// Repository defines user persistence.
type Repository interface {
	// Upsert creates the user if missing and updates the username
	// otherwise.
	Upsert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)

	// IncrementStats applies the delta atomically, creating the user
	// record if it does not exist yet.
	IncrementStats(ctx context.Context, id int64, delta StatDelta) error
}
