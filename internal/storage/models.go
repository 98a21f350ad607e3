package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ContentKind is the closed set of payloads a movie record can carry.
type ContentKind string

const (
	KindVideo    ContentKind = "video"
	KindPhoto    ContentKind = "photo"
	KindDocument ContentKind = "document"
	KindText     ContentKind = "text"
)

var ContentKinds = []ContentKind{KindVideo, KindPhoto, KindDocument, KindText}

// ParseContentKind accepts exactly one of the known kinds, case-insensitively.
func ParseContentKind(s string) (ContentKind, bool) {
	k := ContentKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ContentKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// KindOf maps a stored kind to a known one. Rows written by older versions may
// carry anything, and those have always been sent as documents.
func KindOf(s string) ContentKind {
	if k, ok := ParseContentKind(s); ok {
		return k
	}
	return KindDocument
}

type Movie struct {
	Code        string      `gorm:"column:code;primaryKey" bson:"code" json:"code" validate:"required,codebytes"`
	Name        string      `gorm:"column:name;default:''" bson:"name" json:"name" validate:"required"`
	Kind        ContentKind `gorm:"column:type" bson:"type" json:"type" validate:"required,oneof=video photo document text"`
	FileRef     string      `gorm:"column:file_id" bson:"file_id" json:"file_id" validate:"required"`
	Description string      `gorm:"column:desc" bson:"desc" json:"desc"`
	ParentCode  *string     `gorm:"column:parent_code;index" bson:"parent_code,omitempty" json:"parent_code,omitempty"`
	Views       int64       `gorm:"column:views;default:0" bson:"views" json:"views"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime" bson:"created_at" json:"-"`
}

func (Movie) TableName() string { return "movies" }

// Title is what lists and captions show: the name, or the description when a
// legacy row has no name.
func (m *Movie) Title() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Description
}

type User struct {
	ID           int64      `gorm:"column:user_id;primaryKey;autoIncrement:false" bson:"user_id"`
	Username     string     `gorm:"column:username" bson:"username,omitempty"`
	DisplayName  string     `gorm:"column:first_name" bson:"first_name,omitempty"`
	IsPremium    bool       `gorm:"column:is_premium" bson:"is_premium"`
	PremiumUntil *time.Time `gorm:"column:premium_until" bson:"premium_until,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime" bson:"created_at"`
}

func (User) TableName() string { return "users" }

// PremiumAt reports whether the premium flag is set and not yet expired at now.
// A flag without an expiry never expires.
func (u *User) PremiumAt(now time.Time) bool {
	if u == nil || !u.IsPremium {
		return false
	}
	return u.PremiumUntil == nil || !now.After(*u.PremiumUntil)
}

// PremiumExpired reports a set flag whose expiry has passed.
func (u *User) PremiumExpired(now time.Time) bool {
	return u != nil && u.IsPremium && u.PremiumUntil != nil && now.After(*u.PremiumUntil)
}

type GatingChannel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement" bson:"id"`
	Identifier string    `gorm:"column:channel_id;uniqueIndex" bson:"channel_id"`
	InviteLink string    `gorm:"column:channel_link" bson:"channel_link"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" bson:"created_at"`
}

func (GatingChannel) TableName() string { return "force_channels" }

// MovieField names a column an admin may edit.
type MovieField string

const (
	FieldName   MovieField = "name"
	FieldDesc   MovieField = "desc"
	FieldFileID MovieField = "file_id"
	FieldKind   MovieField = "type"
	FieldParent MovieField = "parent_code"
)

func ParseMovieField(s string) (MovieField, bool) {
	switch f := MovieField(s); f {
	case FieldName, FieldDesc, FieldFileID, FieldKind, FieldParent:
		return f, true
	}
	return "", false
}

type MovieStats struct {
	Total  int64
	ByKind map[ContentKind]int64
}

type UserStats struct {
	Total   int64
	Premium int64
}

// NormalizeCode trims and upper-cases a code so every lookup is case-insensitive.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeParent turns admin input for a parent code into a stored value.
// "-", "none", "null" and empty input all mean no parent.
func NormalizeParent(s string) *string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "-", "none", "null":
		return nil
	}
	code := NormalizeCode(s)
	return &code
}

// MaxCodeBytes keeps "delmovie:"+code, the longest callback built from a
// code, within Telegram's 64 byte callback_data limit.
const MaxCodeBytes = 64 - len("delmovie:")

// ValidCode reports whether a normalized code can be stored.
func ValidCode(code string) bool {
	return code != "" && len(code) <= MaxCodeBytes
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("codebytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxCodeBytes
	})
	return v
}

// Validate checks a movie before it is stored.
func (m *Movie) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMovie, err)
	}
	if m.ParentCode != nil && *m.ParentCode == m.Code {
		return fmt.Errorf("%s is its own parent: %w", m.Code, ErrInvalidMovie)
	}
	return nil
}
