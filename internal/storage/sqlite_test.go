package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	return openTestSQLite(t, filepath.Join(t.TempDir(), "bot.db"))
}

func openTestSQLite(t *testing.T, path string) *SQLite {
	t.Helper()
	s, err := OpenSQLite(SQLiteOptions{
		Path:        path,
		BusyTimeout: time.Second,
		MaxRetries:  3,
		RetryDelay:  time.Millisecond,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestSQLiteMovieLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	err := s.AddMovie(ctx, &Movie{Code: " a1 ", Name: "Dune", Kind: KindVideo, FileRef: "F1", Description: "sci-fi"})
	require.NoError(t, err)

	m, err := s.GetMovie(ctx, "A1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "A1", m.Code)
	assert.Equal(t, "Dune", m.Name)
	assert.Equal(t, KindVideo, m.Kind)
	assert.Nil(t, m.ParentCode)

	m, err = s.GetMovie(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, m, "lookup is case-insensitive")

	err = s.AddMovie(ctx, &Movie{Code: "A1", Name: "Other", Kind: KindVideo, FileRef: "F2"})
	assert.ErrorIs(t, err, ErrDuplicateCode)

	ok, err := s.DeleteMovie(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteMovie(ctx, "A1")
	require.NoError(t, err)
	assert.False(t, ok)

	m, err = s.GetMovie(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSQLiteAddMovieRejectsInvalid(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	tests := []struct {
		name string
		m    Movie
	}{
		{"bad kind", Movie{Code: "X", Name: "X", Kind: "gif", FileRef: "F"}},
		{"long code", Movie{Code: strings.Repeat("x", MaxCodeBytes+1), Name: "X", Kind: KindVideo, FileRef: "F"}},
		{"multibyte code", Movie{Code: strings.Repeat("ж", 30), Name: "X", Kind: KindVideo, FileRef: "F"}},
		{"own parent", Movie{Code: "X", Name: "X", Kind: KindVideo, FileRef: "F", ParentCode: strPtr("X")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.m
			assert.ErrorIs(t, s.AddMovie(ctx, &m), ErrInvalidMovie)
		})
	}
	m := Movie{Code: strings.Repeat("x", MaxCodeBytes), Name: "X", Kind: KindVideo, FileRef: "F"}
	assert.NoError(t, s.AddMovie(ctx, &m))
}

func TestSQLiteUpdateMovieField(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.AddMovie(ctx, &Movie{Code: "S1", Name: "Show", Kind: KindVideo, FileRef: "F", ParentCode: strPtr("P")}))

	tests := []struct {
		name    string
		field   MovieField
		value   *string
		found   bool
		wantErr error
	}{
		{"name", FieldName, strPtr("New name"), true, nil},
		{"kind", FieldKind, strPtr("Photo"), true, nil},
		{"bad kind", FieldKind, strPtr("gif"), false, ErrInvalidField},
		{"bad field", MovieField("views"), strPtr("9"), false, ErrInvalidField},
		{"own parent", FieldParent, strPtr("s1"), false, ErrInvalidField},
		{"clear parent", FieldParent, strPtr("-"), true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := s.UpdateMovieField(ctx, "s1", tt.field, tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
		})
	}

	m, err := s.GetMovie(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "New name", m.Name)
	assert.Equal(t, KindPhoto, m.Kind)
	assert.Nil(t, m.ParentCode)

	found, err := s.UpdateMovieField(ctx, "NOPE", FieldName, strPtr("x"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteChildrenOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	for _, code := range []string{"E1", "E2", "E3"} {
		require.NoError(t, s.AddMovie(ctx, &Movie{Code: code, Name: code, Kind: KindVideo, FileRef: "F", ParentCode: strPtr("SER")}))
	}
	require.NoError(t, s.AddMovie(ctx, &Movie{Code: "SOLO", Name: "Solo", Kind: KindVideo, FileRef: "F"}))

	kids, err := s.Children(ctx, "ser")
	require.NoError(t, err)
	require.Len(t, kids, 3)
	assert.Equal(t, []string{"E1", "E2", "E3"}, []string{kids[0].Code, kids[1].Code, kids[2].Code})

	all, err := s.ListMovies(ctx, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "SOLO", all[0].Code)

	rnd, err := s.RandomMovies(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rnd, 4)
}

func TestSQLiteViewsAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.AddMovie(ctx, &Movie{Code: "V", Name: "v", Kind: KindVideo, FileRef: "F"}))
	require.NoError(t, s.AddMovie(ctx, &Movie{Code: "P", Name: "p", Kind: KindPhoto, FileRef: "F"}))
	require.NoError(t, s.AddMovie(ctx, &Movie{Code: "T", Name: "t", Kind: KindText, FileRef: "hello"}))

	require.NoError(t, s.IncrementViews(ctx, "v"))
	require.NoError(t, s.IncrementViews(ctx, "V"))
	m, err := s.GetMovie(ctx, "V")
	require.NoError(t, err)
	assert.EqualValues(t, 2, m.Views)

	st, err := s.MovieStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.Total)
	assert.EqualValues(t, 1, st.ByKind[KindPhoto])
	assert.EqualValues(t, 1, st.ByKind[KindText])
	assert.EqualValues(t, 0, st.ByKind[KindDocument])
}

func TestSQLitePremium(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.UpsertUser(ctx, 1, "alice", "Alice"))
	require.NoError(t, s.UpsertUser(ctx, 2, "", "Bob"))
	require.NoError(t, s.UpsertUser(ctx, 1, "alice2", "Alice"))

	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice2", u.Username)

	require.NoError(t, s.SetPremium(ctx, 1, now.Add(time.Hour)))
	ok, err := s.IsPremium(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.SetPremium(ctx, 2, now.Add(-time.Hour)))
	ok, err = s.IsPremium(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	u, err = s.GetUser(ctx, 2)
	require.NoError(t, err)
	assert.False(t, u.IsPremium, "expired flag is cleared on read")
	assert.Nil(t, u.PremiumUntil)

	st, err := s.UserStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, UserStats{Total: 2, Premium: 1}, st)

	n, err := s.ExpirePremium(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = s.ExpirePremium(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	ok, err = s.RemovePremium(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := s.AllUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestSQLiteChannels(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	ok, err := s.AddChannel(ctx, "@one", "https://t.me/one")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.AddChannel(ctx, "@one", "https://t.me/other")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.AddChannel(ctx, "-100123", "https://t.me/+abc")
	require.NoError(t, err)
	assert.True(t, ok)

	chs, err := s.Channels(ctx)
	require.NoError(t, err)
	require.Len(t, chs, 2)
	assert.Equal(t, "@one", chs[0].Identifier)

	ok, err = s.RemoveChannel(ctx, chs[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RemoveChannel(ctx, chs[0].ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteMigratesOldChannelTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE force_channels (channel_id TEXT UNIQUE, channel_link TEXT, created_at DATETIME)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO force_channels VALUES ('@legacy', 'https://t.me/legacy', CURRENT_TIMESTAMP)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE movies (code TEXT PRIMARY KEY, type TEXT, file_id TEXT, desc TEXT, created_at TEXT DEFAULT CURRENT_TIMESTAMP)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO movies (code, type, file_id, desc) VALUES ('OLD', 'video', 'F', 'legacy row')`).Error)
	sqlDB, _ := db.DB()
	require.NoError(t, sqlDB.Close())

	s := openTestSQLite(t, path)
	ctx := context.Background()

	chs, err := s.Channels(ctx)
	require.NoError(t, err)
	require.Len(t, chs, 1)
	assert.NotZero(t, chs[0].ID)
	assert.Equal(t, "@legacy", chs[0].Identifier)

	m, err := s.GetMovie(ctx, "old")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "legacy row", m.Title())
	assert.EqualValues(t, 0, m.Views)
}

func TestImportLegacyJSON(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.AddMovie(ctx, &Movie{Code: "A1", Name: "Kept", Kind: KindVideo, FileRef: "F"}))

	path := filepath.Join(t.TempDir(), "movies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"a1": {"name": "Overwritten", "type": "video", "file_id": "X"},
		"b2": {"name": "Second", "file_id": "Y", "views": 7},
		"c3": {"name": "Ep", "type": "document", "file_id": "Z", "parent_code": "b2"}
	}`), 0o600))

	n, err := ImportLegacyJSON(ctx, s, path, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	m, err := s.GetMovie(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Kept", m.Name)

	m, err = s.GetMovie(ctx, "B2")
	require.NoError(t, err)
	assert.Equal(t, KindVideo, m.Kind)
	assert.EqualValues(t, 7, m.Views)

	kids, err := s.Children(ctx, "B2")
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, "C3", kids[0].Code)

	n, err = ImportLegacyJSON(ctx, s, filepath.Join(t.TempDir(), "missing.json"), hclog.NewNullLogger())
	require.NoError(t, err)
	assert.Zero(t, n)
}
