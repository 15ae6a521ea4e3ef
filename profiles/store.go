package profiles

import "context"

// Profile is the public record kept for every invited user.
type Profile struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

// Store upserts profiles using email as the conflict key.
type Store interface {
	Upsert(ctx context.Context, p Profile) error
}

// Factory hands out a store at call time.
type Factory func() (Store, error)

// StaticFactory returns a factory that always yields s.
func StaticFactory(s Store) Factory {
	return func() (Store, error) {
		return s, nil
	}
}
