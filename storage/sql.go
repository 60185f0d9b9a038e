package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ewintr.nl/vidl/model"
	"github.com/google/uuid"
)

type dialect struct {
	name        string
	numbered    bool
	isDuplicate func(error) bool
}

// rebind rewrites ? placeholders to $n for drivers that need numbered ones.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 1
	for _, r := range query {
		if r == '?' {
			b.WriteString("$" + strconv.Itoa(n))
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQL implements Store on top of database/sql. Postgres and SQLite share it
// and differ only in dialect and migrations.
type SQL struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQL(db *sql.DB, d dialect, migrations []string) (*SQL, error) {
	if err := migrate(db, d, migrations); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", d.name, err)
	}
	return &SQL{db: db, dialect: d, now: time.Now}, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQL) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQL) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQL) AddChannel(ctx context.Context, externalID string, service model.Service, md model.ChannelMetadata) (model.Channel, error) {
	ch := model.Channel{
		ID:          uuid.New(),
		ExternalID:  externalID,
		Service:     service,
		Title:       md.Title,
		Thumbnail:   md.Thumbnail,
		Description: md.Description,
	}
	if _, err := s.exec(ctx, `INSERT INTO channel
(id, external_id, service, title, thumbnail, description)
VALUES (?, ?, ?, ?, ?, ?)`,
		ch.ID.String(), ch.ExternalID, string(ch.Service), ch.Title, ch.Thumbnail, ch.Description); err != nil {
		if s.dialect.isDuplicate(err) {
			return model.Channel{}, fmt.Errorf("%s:%s: %w", service, externalID, ErrChannelExists)
		}
		return model.Channel{}, err
	}

	return ch, nil
}

const channelColumns = `id, external_id, service, title, thumbnail, description, last_update`

func scanChannel(row interface{ Scan(...any) error }) (model.Channel, error) {
	var (
		ch         model.Channel
		service    string
		lastUpdate sql.NullInt64
	)
	if err := row.Scan(&ch.ID, &ch.ExternalID, &service, &ch.Title, &ch.Thumbnail, &ch.Description, &lastUpdate); err != nil {
		return model.Channel{}, err
	}
	ch.Service = model.Service(service)
	if lastUpdate.Valid {
		t := fromMillis(lastUpdate.Int64)
		ch.LastUpdate = &t
	}
	return ch, nil
}

func (s *SQL) Channel(ctx context.Context, id uuid.UUID) (model.Channel, error) {
	ch, err := scanChannel(s.queryRow(ctx, `SELECT `+channelColumns+` FROM channel WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Channel{}, fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	return ch, err
}

func (s *SQL) ListChannels(ctx context.Context) ([]model.Channel, error) {
	rows, err := s.query(ctx, `SELECT `+channelColumns+` FROM channel ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []model.Channel{}
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}

	return channels, rows.Err()
}

func (s *SQL) ChannelLastUpdate(ctx context.Context, id uuid.UUID) (*time.Time, error) {
	ch, err := s.Channel(ctx, id)
	if err != nil {
		return nil, err
	}
	return ch.LastUpdate, nil
}

// SetChannelLastUpdate never moves last_update backwards. An older t is
// silently ignored.
func (s *SQL) SetChannelLastUpdate(ctx context.Context, id uuid.UUID, t time.Time) error {
	ms := toMillis(t)
	res, err := s.exec(ctx, `UPDATE channel SET last_update = ?
WHERE id = ? AND (last_update IS NULL OR last_update < ?)`, ms, id.String(), ms)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := s.Channel(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQL) UpdateChannelMetadata(ctx context.Context, id uuid.UUID, md model.ChannelMetadata) error {
	res, err := s.exec(ctx, `UPDATE channel SET title = ?, thumbnail = ?, description = ? WHERE id = ?`,
		md.Title, md.Thumbnail, md.Description, id.String())
	if err != nil {
		return err
	}
	return expectOne(res, "channel", id)
}

const videoColumns = `id, channel_id, external_id, url, title, title_alt, description, description_alt, thumbnail, published_at, duration, status, date_added`

func scanVideo(row interface{ Scan(...any) error }) (model.Video, error) {
	var (
		v                    model.Video
		status               string
		published, dateAdded int64
	)
	if err := row.Scan(&v.ID, &v.ChannelID, &v.VideoRecord.ID, &v.URL, &v.Title, &v.TitleAlt, &v.Description, &v.DescriptionAlt,
		&v.ThumbnailURL, &published, &v.Duration, &status, &dateAdded); err != nil {
		return model.Video{}, err
	}
	v.Status = model.VideoStatus(status)
	v.PublishedAt = fromMillis(published)
	v.DateAdded = fromMillis(dateAdded)
	return v, nil
}

func (s *SQL) Video(ctx context.Context, id uuid.UUID) (model.Video, error) {
	v, err := scanVideo(s.queryRow(ctx, `SELECT `+videoColumns+` FROM video WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return v, err
}

// InsertVideo stores rec with status new. A URL that is already known yields
// ErrDuplicateURL and leaves the existing row untouched.
func (s *SQL) InsertVideo(ctx context.Context, channelID uuid.UUID, rec model.VideoRecord) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.exec(ctx, `INSERT INTO video
(id, channel_id, external_id, url, title, title_alt, description, description_alt, thumbnail, published_at, duration, status, date_added)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), channelID.String(), rec.ID, rec.URL, rec.Title, rec.TitleAlt, rec.Description, rec.DescriptionAlt,
		rec.ThumbnailURL, toMillis(rec.PublishedAt), rec.Duration, string(model.StatusNew), toMillis(s.now()))
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return uuid.Nil, fmt.Errorf("%s: %w", rec.URL, ErrDuplicateURL)
		}
		return uuid.Nil, err
	}

	return id, nil
}

func (s *SQL) RecentVideoURLs(ctx context.Context, channelID uuid.UUID, limit int) (map[string]struct{}, error) {
	rows, err := s.query(ctx, `SELECT url FROM video WHERE channel_id = ?
ORDER BY published_at DESC LIMIT ?`, channelID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := make(map[string]struct{}, limit)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls[url] = struct{}{}
	}

	return urls, rows.Err()
}

// SetVideoStatus moves a video along the lifecycle from whatever status it
// holds now. Writing the current status again is a no-op.
func (s *SQL) SetVideoStatus(ctx context.Context, id uuid.UUID, status model.VideoStatus) error {
	v, err := s.Video(ctx, id)
	if err != nil {
		return err
	}
	if v.Status == status {
		return nil
	}
	return s.SetVideoStatusFrom(ctx, id, v.Status, status)
}

// SetVideoStatusFrom moves a video from one status to another, but only if
// the row still holds from. Otherwise it returns ErrConflict, so of two
// workers that both saw the same status only one can win.
func (s *SQL) SetVideoStatusFrom(ctx context.Context, id uuid.UUID, from, to model.VideoStatus) error {
	if err := model.Transition(from, to); err != nil {
		return fmt.Errorf("video %s: %w", id, err)
	}

	res, err := s.exec(ctx, `UPDATE video SET status = ? WHERE id = ? AND status = ?`,
		string(to), id.String(), string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Video(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("video %s: %w", id, ErrConflict)
	}

	return nil
}

func (s *SQL) VideosByStatus(ctx context.Context, statuses ...model.VideoStatus) ([]model.Video, error) {
	return s.ListVideos(ctx, VideoFilter{Statuses: statuses})
}

// ListVideos returns the matching videos, newest first. The title match is
// case insensitive.
func (s *SQL) ListVideos(ctx context.Context, filter VideoFilter) ([]model.Video, error) {
	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = model.AllStatuses
	}
	args := make([]any, 0, len(statuses)+4)
	marks := make([]string, len(statuses))
	for i, st := range statuses {
		args = append(args, string(st))
		marks[i] = "?"
	}

	query := `SELECT ` + videoColumns + ` FROM video
WHERE status IN (` + strings.Join(marks, ", ") + `)`
	if filter.ChannelID != uuid.Nil {
		query += ` AND channel_id = ?`
		args = append(args, filter.ChannelID.String())
	}
	if filter.TitleContains != "" {
		query += ` AND LOWER(title) LIKE ? ESCAPE '\'`
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(filter.TitleContains))+"%")
	}
	query += ` ORDER BY published_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 && !s.dialect.numbered {
			// sqlite only takes OFFSET after a LIMIT
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := []model.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}

	return videos, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// DeleteChannel removes the channel. Its videos go with it.
func (s *SQL) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	res, err := s.exec(ctx, `DELETE FROM channel WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return expectOne(res, "channel", id)
}

func expectOne(res sql.Result, what string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
