package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type SQLiteOptions struct {
	Path        string
	BusyTimeout time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// SQLite is the single-file store. Every operation goes through withRetry so a
// writer holding the lock only delays other callers.
type SQLite struct {
	db      *gorm.DB
	retries int
	delay   time.Duration
	log     hclog.Logger
	now     func() time.Time
}

func OpenSQLite(opts SQLiteOptions, log hclog.Logger) (*SQLite, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=%d",
		opts.Path, opts.BusyTimeout.Milliseconds())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", opts.Path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxIdleTime(time.Minute)

	s := &SQLite{db: db, retries: opts.MaxRetries, delay: opts.RetryDelay, log: log, now: time.Now}
	if s.delay <= 0 {
		s.delay = 50 * time.Millisecond
	}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	if err := s.migrateChannelIDs(); err != nil {
		return err
	}
	// AutoMigrate only adds what is missing, which is how databases created by
	// older releases pick up name, parent_code, views and the premium columns.
	return s.db.AutoMigrate(&Movie{}, &User{}, &GatingChannel{})
}

// migrateChannelIDs rebuilds a force_channels table that predates the id column.
func (s *SQLite) migrateChannelIDs() error {
	m := s.db.Migrator()
	if !m.HasTable(&GatingChannel{}) || m.HasColumn(&GatingChannel{}, "id") {
		return nil
	}
	s.log.Info("rebuilding force_channels with id column")
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Migrator().RenameTable("force_channels", "force_channels_old"); err != nil {
			return err
		}
		if err := tx.Migrator().CreateTable(&GatingChannel{}); err != nil {
			return err
		}
		if err := tx.Exec(`INSERT INTO force_channels (channel_id, channel_link, created_at)
			SELECT channel_id, channel_link, created_at FROM force_channels_old`).Error; err != nil {
			return err
		}
		return tx.Migrator().DropTable("force_channels_old")
	})
}

func (s *SQLite) do(ctx context.Context, op func(db *gorm.DB) error) error {
	return withRetry(ctx, s.retries, s.delay, s.log, func() error {
		return op(s.db.WithContext(ctx))
	})
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLite) GetMovie(ctx context.Context, code string) (*Movie, error) {
	var m Movie
	err := s.do(ctx, func(db *gorm.DB) error {
		return db.Where("code = ?", NormalizeCode(code)).Take(&m).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Kind = KindOf(string(m.Kind))
	return &m, nil
}

func (s *SQLite) AddMovie(ctx context.Context, m *Movie) error {
	m.Code = NormalizeCode(m.Code)
	if err := m.Validate(); err != nil {
		return err
	}
	err := s.do(ctx, func(db *gorm.DB) error {
		return db.Create(m).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) || (err != nil && isConstraint(err)) {
		return fmt.Errorf("%s: %w", m.Code, ErrDuplicateCode)
	}
	return err
}

func (s *SQLite) UpdateMovieField(ctx context.Context, code string, field MovieField, value *string) (bool, error) {
	value, err := fieldValue(code, field, value)
	if err != nil {
		return false, err
	}
	var affected int64
	err = s.do(ctx, func(db *gorm.DB) error {
		res := db.Model(&Movie{}).Where("code = ?", NormalizeCode(code)).Update(string(field), value)
		affected = res.RowsAffected
		return res.Error
	})
	return affected > 0, err
}

func (s *SQLite) DeleteMovie(ctx context.Context, code string) (bool, error) {
	var affected int64
	err := s.do(ctx, func(db *gorm.DB) error {
		res := db.Where("code = ?", NormalizeCode(code)).Delete(&Movie{})
		affected = res.RowsAffected
		return res.Error
	})
	return affected > 0, err
}

func (s *SQLite) ListMovies(ctx context.Context, limit int) ([]Movie, error) {
	var out []Movie
	err := s.do(ctx, func(db *gorm.DB) error {
		q := db.Order("created_at DESC").Order("rowid DESC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(&out).Error
	})
	return normalizeKinds(out), err
}

func (s *SQLite) RandomMovies(ctx context.Context, limit int) ([]Movie, error) {
	var out []Movie
	err := s.do(ctx, func(db *gorm.DB) error {
		return db.Order("RANDOM()").Limit(limit).Find(&out).Error
	})
	return normalizeKinds(out), err
}

func (s *SQLite) Children(ctx context.Context, parentCode string) ([]Movie, error) {
	var out []Movie
	err := s.do(ctx, func(db *gorm.DB) error {
		return db.Where("parent_code = ?", NormalizeCode(parentCode)).
			Order("created_at ASC").Order("rowid ASC").
			Find(&out).Error
	})
	return normalizeKinds(out), err
}

func (s *SQLite) IncrementViews(ctx context.Context, code string) error {
	return s.do(ctx, func(db *gorm.DB) error {
		return db.Model(&Movie{}).Where("code = ?", NormalizeCode(code)).
			UpdateColumn("views", gorm.Expr("COALESCE(views, 0) + 1")).Error
	})
}

func (s *SQLite) MovieStats(ctx context.Context) (MovieStats, error) {
	var rows []struct {
		Kind string
		Cnt  int64
	}
	err := s.do(ctx, func(db *gorm.DB) error {
		return db.Model(&Movie{}).Select("type AS kind, COUNT(*) AS cnt").Group("type").Scan(&rows).Error
	})
	if err != nil {
		return MovieStats{}, err
	}
	stats := MovieStats{ByKind: map[ContentKind]int64{}}
	for _, r := range rows {
		stats.Total += r.Cnt
		stats.ByKind[KindOf(r.Kind)] += r.Cnt
	}
	return stats, nil
}

func (s *SQLite) ImportMovies(ctx context.Context, movies []Movie) (int64, error) {
	if len(movies) == 0 {
		return 0, nil
	}
	var affected int64
	err := s.do(ctx, func(db *gorm.DB) error {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&movies)
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

func (s *SQLite) UpsertUser(ctx context.Context, id int64, username, displayName string) error {
	u := User{ID: id, Username: username, DisplayName: displayName}
	return s.do(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "first_name"}),
		}).Create(&u).Error
	})
}

func (s *SQLite) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.do(ctx, func(db *gorm.DB) error {
		return db.Where("user_id = ?", id).Take(&u).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLite) IsPremium(ctx context.Context, id int64) (bool, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil || u == nil {
		return false, err
	}
	now := s.now()
	if u.PremiumExpired(now) {
		if _, err := s.RemovePremium(ctx, id); err != nil {
			return false, err
		}
		s.log.Info("premium expired", "user_id", id)
		return false, nil
	}
	return u.PremiumAt(now), nil
}

func (s *SQLite) SetPremium(ctx context.Context, id int64, until time.Time) error {
	until = until.UTC()
	u := User{ID: id, IsPremium: true, PremiumUntil: &until}
	return s.do(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_premium", "premium_until"}),
		}).Create(&u).Error
	})
}

func (s *SQLite) RemovePremium(ctx context.Context, id int64) (bool, error) {
	var affected int64
	err := s.do(ctx, func(db *gorm.DB) error {
		res := db.Model(&User{}).Where("user_id = ?", id).
			Updates(map[string]any{"is_premium": false, "premium_until": nil})
		affected = res.RowsAffected
		return res.Error
	})
	return affected > 0, err
}

func (s *SQLite) ExpirePremium(ctx context.Context, now time.Time) (int64, error) {
	var candidates []User
	err := s.do(ctx, func(db *gorm.DB) error {
		return db.Where("is_premium = ? AND premium_until IS NOT NULL", true).Find(&candidates).Error
	})
	if err != nil {
		return 0, err
	}
	var expired []int64
	for i := range candidates {
		if candidates[i].PremiumExpired(now) {
			expired = append(expired, candidates[i].ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	var affected int64
	err = s.do(ctx, func(db *gorm.DB) error {
		res := db.Model(&User{}).Where("user_id IN ?", expired).
			Updates(map[string]any{"is_premium": false, "premium_until": nil})
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

func (s *SQLite) AllUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.do(ctx, func(db *gorm.DB) error {
		return db.Model(&User{}).Order("user_id").Pluck("user_id", &ids).Error
	})
	return ids, err
}

func (s *SQLite) UserStats(ctx context.Context) (UserStats, error) {
	var st UserStats
	err := s.do(ctx, func(db *gorm.DB) error {
		if err := db.Model(&User{}).Count(&st.Total).Error; err != nil {
			return err
		}
		return db.Model(&User{}).Where("is_premium = ?", true).Count(&st.Premium).Error
	})
	return st, err
}

func (s *SQLite) AddChannel(ctx context.Context, identifier, inviteLink string) (bool, error) {
	ch := GatingChannel{Identifier: identifier, InviteLink: inviteLink}
	var affected int64
	err := s.do(ctx, func(db *gorm.DB) error {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&ch)
		affected = res.RowsAffected
		return res.Error
	})
	return affected > 0, err
}

func (s *SQLite) RemoveChannel(ctx context.Context, id int64) (bool, error) {
	var affected int64
	err := s.do(ctx, func(db *gorm.DB) error {
		res := db.Where("id = ?", id).Delete(&GatingChannel{})
		affected = res.RowsAffected
		return res.Error
	})
	return affected > 0, err
}

func (s *SQLite) Channels(ctx context.Context) ([]GatingChannel, error) {
	var out []GatingChannel
	err := s.do(ctx, func(db *gorm.DB) error {
		return db.Order("created_at ASC").Order("id ASC").Find(&out).Error
	})
	return out, err
}

func normalizeKinds(ms []Movie) []Movie {
	for i := range ms {
		ms[i].Kind = KindOf(string(ms[i].Kind))
	}
	return ms
}
