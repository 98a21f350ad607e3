package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo keeps the same data as SQLite in four collections. Channel ids come
// from a counter document so callback data stays numeric.
type Mongo struct {
	client   *mongo.Client
	movies   *mongo.Collection
	users    *mongo.Collection
	channels *mongo.Collection
	counters *mongo.Collection
	log      hclog.Logger
	now      func() time.Time
}

func NewMongo(ctx context.Context, uri, database string, log hclog.Logger) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("MONGODB_URI is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	m := newMongo(client.Database(database), log)
	m.client = client
	m.ensureIndexes(ctx)
	return m, nil
}

func newMongo(db *mongo.Database, log hclog.Logger) *Mongo {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Mongo{
		movies:   db.Collection("movies"),
		users:    db.Collection("users"),
		channels: db.Collection("force_channels"),
		counters: db.Collection("counters"),
		log:      log,
		now:      time.Now,
	}
}

func (m *Mongo) ensureIndexes(ctx context.Context) {
	idx := []struct {
		col   *mongo.Collection
		model mongo.IndexModel
	}{
		{m.movies, mongo.IndexModel{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{m.movies, mongo.IndexModel{Keys: bson.D{{Key: "parent_code", Value: 1}, {Key: "created_at", Value: 1}}}},
		{m.users, mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{m.channels, mongo.IndexModel{Keys: bson.D{{Key: "channel_id", Value: 1}}, Options: options.Index().SetUnique(true)}},
	}
	for _, i := range idx {
		if _, err := i.col.Indexes().CreateOne(ctx, i.model); err != nil {
			m.log.Warn("create index failed", "collection", i.col.Name(), "error", err)
		}
	}
}

func (m *Mongo) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *Mongo) GetMovie(ctx context.Context, code string) (*Movie, error) {
	var mv Movie
	err := m.movies.FindOne(ctx, bson.M{"code": NormalizeCode(code)}).Decode(&mv)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	mv.Kind = KindOf(string(mv.Kind))
	return &mv, nil
}

func (m *Mongo) AddMovie(ctx context.Context, mv *Movie) error {
	mv.Code = NormalizeCode(mv.Code)
	if err := mv.Validate(); err != nil {
		return err
	}
	if mv.CreatedAt.IsZero() {
		mv.CreatedAt = m.now().UTC()
	}
	_, err := m.movies.InsertOne(ctx, mv)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", mv.Code, ErrDuplicateCode)
	}
	return err
}

func (m *Mongo) UpdateMovieField(ctx context.Context, code string, field MovieField, value *string) (bool, error) {
	value, err := fieldValue(code, field, value)
	if err != nil {
		return false, err
	}
	var update bson.M
	if value == nil {
		update = bson.M{"$unset": bson.M{string(field): ""}}
	} else {
		update = bson.M{"$set": bson.M{string(field): *value}}
	}
	res, err := m.movies.UpdateOne(ctx, bson.M{"code": NormalizeCode(code)}, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (m *Mongo) DeleteMovie(ctx context.Context, code string) (bool, error) {
	res, err := m.movies.DeleteOne(ctx, bson.M{"code": NormalizeCode(code)})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (m *Mongo) ListMovies(ctx context.Context, limit int) ([]Movie, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := m.movies.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	return decodeMovies(ctx, cur, m.log)
}

func (m *Mongo) RandomMovies(ctx context.Context, limit int) ([]Movie, error) {
	cur, err := m.movies.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$sample", Value: bson.M{"size": limit}}},
	})
	if err != nil {
		return nil, err
	}
	return decodeMovies(ctx, cur, m.log)
}

func (m *Mongo) Children(ctx context.Context, parentCode string) ([]Movie, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := m.movies.Find(ctx, bson.M{"parent_code": NormalizeCode(parentCode)}, opts)
	if err != nil {
		return nil, err
	}
	return decodeMovies(ctx, cur, m.log)
}

func (m *Mongo) IncrementViews(ctx context.Context, code string) error {
	_, err := m.movies.UpdateOne(ctx, bson.M{"code": NormalizeCode(code)}, bson.M{"$inc": bson.M{"views": 1}})
	return err
}

func (m *Mongo) MovieStats(ctx context.Context) (MovieStats, error) {
	cur, err := m.movies.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$type", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return MovieStats{}, err
	}
	defer cur.Close(ctx)
	stats := MovieStats{ByKind: map[ContentKind]int64{}}
	for cur.Next(ctx) {
		var row struct {
			Kind  string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return MovieStats{}, err
		}
		stats.Total += row.Count
		stats.ByKind[KindOf(row.Kind)] += row.Count
	}
	return stats, cur.Err()
}

func (m *Mongo) ImportMovies(ctx context.Context, movies []Movie) (int64, error) {
	var inserted int64
	for i := range movies {
		mv := movies[i]
		mv.Code = NormalizeCode(mv.Code)
		if mv.CreatedAt.IsZero() {
			mv.CreatedAt = m.now().UTC()
		}
		res, err := m.movies.UpdateOne(ctx,
			bson.M{"code": mv.Code},
			bson.M{"$setOnInsert": mv},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return inserted, err
		}
		inserted += res.UpsertedCount
	}
	return inserted, nil
}

func (m *Mongo) UpsertUser(ctx context.Context, id int64, username, displayName string) error {
	_, err := m.users.UpdateOne(ctx,
		bson.M{"user_id": id},
		bson.M{
			"$set":         bson.M{"username": username, "first_name": displayName},
			"$setOnInsert": bson.M{"user_id": id, "is_premium": false, "created_at": m.now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *Mongo) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := m.users.FindOne(ctx, bson.M{"user_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (m *Mongo) IsPremium(ctx context.Context, id int64) (bool, error) {
	u, err := m.GetUser(ctx, id)
	if err != nil || u == nil {
		return false, err
	}
	now := m.now()
	if u.PremiumExpired(now) {
		if _, err := m.RemovePremium(ctx, id); err != nil {
			return false, err
		}
		m.log.Info("premium expired", "user_id", id)
		return false, nil
	}
	return u.PremiumAt(now), nil
}

func (m *Mongo) SetPremium(ctx context.Context, id int64, until time.Time) error {
	_, err := m.users.UpdateOne(ctx,
		bson.M{"user_id": id},
		bson.M{
			"$set":         bson.M{"is_premium": true, "premium_until": until.UTC()},
			"$setOnInsert": bson.M{"user_id": id, "created_at": m.now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *Mongo) RemovePremium(ctx context.Context, id int64) (bool, error) {
	res, err := m.users.UpdateOne(ctx,
		bson.M{"user_id": id},
		bson.M{"$set": bson.M{"is_premium": false}, "$unset": bson.M{"premium_until": ""}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (m *Mongo) ExpirePremium(ctx context.Context, now time.Time) (int64, error) {
	res, err := m.users.UpdateMany(ctx,
		bson.M{"is_premium": true, "premium_until": bson.M{"$lt": now.UTC()}},
		bson.M{"$set": bson.M{"is_premium": false}, "$unset": bson.M{"premium_until": ""}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (m *Mongo) AllUserIDs(ctx context.Context) ([]int64, error) {
	opts := options.Find().SetProjection(bson.M{"user_id": 1}).SetSort(bson.D{{Key: "user_id", Value: 1}})
	cur, err := m.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var ids []int64
	for cur.Next(ctx) {
		var row struct {
			ID int64 `bson:"user_id"`
		}
		if err := cur.Decode(&row); err != nil {
			continue
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}

func (m *Mongo) UserStats(ctx context.Context) (UserStats, error) {
	total, err := m.users.CountDocuments(ctx, bson.M{})
	if err != nil {
		return UserStats{}, err
	}
	premium, err := m.users.CountDocuments(ctx, bson.M{"is_premium": true})
	if err != nil {
		return UserStats{}, err
	}
	return UserStats{Total: total, Premium: premium}, nil
}

func (m *Mongo) AddChannel(ctx context.Context, identifier, inviteLink string) (bool, error) {
	n, err := m.channels.CountDocuments(ctx, bson.M{"channel_id": identifier})
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	id, err := m.nextID(ctx, "force_channels")
	if err != nil {
		return false, err
	}
	_, err = m.channels.InsertOne(ctx, GatingChannel{
		ID:         id,
		Identifier: identifier,
		InviteLink: inviteLink,
		CreatedAt:  m.now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	return err == nil, err
}

func (m *Mongo) nextID(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	return doc.Seq, err
}

func (m *Mongo) RemoveChannel(ctx context.Context, id int64) (bool, error) {
	res, err := m.channels.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (m *Mongo) Channels(ctx context.Context) ([]GatingChannel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}})
	cur, err := m.channels.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []GatingChannel
	for cur.Next(ctx) {
		var ch GatingChannel
		if err := cur.Decode(&ch); err != nil {
			m.log.Warn("skip undecodable channel", "error", err)
			continue
		}
		out = append(out, ch)
	}
	return out, cur.Err()
}

func decodeMovies(ctx context.Context, cur *mongo.Cursor, log hclog.Logger) ([]Movie, error) {
	defer cur.Close(ctx)
	var out []Movie
	for cur.Next(ctx) {
		var mv Movie
		if err := cur.Decode(&mv); err != nil {
			log.Warn("skip undecodable movie", "error", err)
			continue
		}
		mv.Kind = KindOf(string(mv.Kind))
		out = append(out, mv)
	}
	return out, cur.Err()
}
