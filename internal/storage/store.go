package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateCode = errors.New("movie code already exists")
	ErrInvalidField  = errors.New("invalid movie field")
	ErrInvalidMovie  = errors.New("invalid movie")
)

// MovieStore holds the catalog. Lookups return (nil, nil) when nothing matches.
type MovieStore interface {
	GetMovie(ctx context.Context, code string) (*Movie, error)
	AddMovie(ctx context.Context, m *Movie) error
	UpdateMovieField(ctx context.Context, code string, field MovieField, value *string) (bool, error)
	DeleteMovie(ctx context.Context, code string) (bool, error)
	// ListMovies returns movies newest first; limit <= 0 means all.
	ListMovies(ctx context.Context, limit int) ([]Movie, error)
	RandomMovies(ctx context.Context, limit int) ([]Movie, error)
	// Children returns the episodes of a series, oldest first.
	Children(ctx context.Context, parentCode string) ([]Movie, error)
	IncrementViews(ctx context.Context, code string) error
	MovieStats(ctx context.Context) (MovieStats, error)
	// ImportMovies inserts movies whose code is not present yet and reports how
	// many were inserted.
	ImportMovies(ctx context.Context, movies []Movie) (int64, error)
}

type UserStore interface {
	UpsertUser(ctx context.Context, id int64, username, displayName string) error
	GetUser(ctx context.Context, id int64) (*User, error)
	// IsPremium reports current premium status. An expired flag found here is
	// cleared before returning false.
	IsPremium(ctx context.Context, id int64) (bool, error)
	SetPremium(ctx context.Context, id int64, until time.Time) error
	RemovePremium(ctx context.Context, id int64) (bool, error)
	// ExpirePremium clears every premium flag that expired before now.
	ExpirePremium(ctx context.Context, now time.Time) (int64, error)
	AllUserIDs(ctx context.Context) ([]int64, error)
	UserStats(ctx context.Context) (UserStats, error)
}

type ChannelStore interface {
	// AddChannel reports false when the identifier is already registered.
	AddChannel(ctx context.Context, identifier, inviteLink string) (bool, error)
	RemoveChannel(ctx context.Context, id int64) (bool, error)
	Channels(ctx context.Context) ([]GatingChannel, error)
}

// fieldValue checks an edit and returns the value to store.
func fieldValue(code string, field MovieField, value *string) (*string, error) {
	if _, ok := ParseMovieField(string(field)); !ok {
		return nil, fmt.Errorf("%q: %w", field, ErrInvalidField)
	}
	switch field {
	case FieldParent:
		if value == nil {
			return nil, nil
		}
		parent := NormalizeParent(*value)
		if parent != nil && *parent == NormalizeCode(code) {
			return nil, fmt.Errorf("%s cannot be its own parent: %w", *parent, ErrInvalidField)
		}
		return parent, nil
	case FieldKind:
		if value == nil {
			return nil, fmt.Errorf("%q cannot be cleared: %w", field, ErrInvalidField)
		}
		k, ok := ParseContentKind(*value)
		if !ok {
			return nil, fmt.Errorf("unknown type %q: %w", *value, ErrInvalidField)
		}
		s := string(k)
		return &s, nil
	default:
		if value == nil {
			return nil, fmt.Errorf("%q cannot be cleared: %w", field, ErrInvalidField)
		}
		return value, nil
	}
}

type Store interface {
	MovieStore
	UserStore
	ChannelStore
	Close() error
}
