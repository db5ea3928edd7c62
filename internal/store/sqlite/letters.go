package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
	"github.com/armyletters/letters-server/internal/id"
	"github.com/armyletters/letters-server/internal/sse"
	"github.com/armyletters/letters-server/internal/store"
)

// letterColumns is the ordered list of columns selected in letter queries.
// Must match the scan order in scanLetter.
const letterColumns = `id, name, member, message, country, ts, color_class, likes,
	track_id, track_name, track_artist, track_album_cover, track_cover_blur_hash`

// scanLetter scans a sql.Row (or sql.Rows via its Scan method) into a domain.Letter.
func scanLetter(scanner interface{ Scan(dest ...any) error }) (*domain.Letter, error) {
	var l domain.Letter
	var (
		member   string
		country  sql.NullString
		ts       int64
		trackID  sql.NullString
		name     sql.NullString
		artist   sql.NullString
		cover    sql.NullString
		blurHash sql.NullString
	)

	err := scanner.Scan(
		&l.ID, &l.Name, &member, &l.Message, &country, &ts, &l.ColorClass, &l.Likes,
		&trackID, &name, &artist, &cover, &blurHash,
	)
	if err != nil {
		return nil, err
	}

	l.Member = domain.Member(member)
	l.Country = country.String
	l.Timestamp = time.Unix(0, ts).UTC()
	l.LikedBy = []string{}
	if trackID.Valid {
		l.Track = &domain.TrackSnapshot{
			ID:            trackID.String,
			Name:          name.String,
			Artist:        artist.String,
			AlbumCover:    cover.String,
			CoverBlurHash: blurHash.String,
		}
	}
	return &l, nil
}

func trackArgs(t *domain.TrackSnapshot) []any {
	if t == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{t.ID, nullString(t.Name), nullString(t.Artist), nullString(t.AlbumCover), nullString(t.CoverBlurHash)}
}

// insertLetter writes the letter row and its like set.
func insertLetter(ctx context.Context, tx *sql.Tx, l *domain.Letter) error {
	args := []any{l.ID, l.Name, string(l.Member), l.Message, nullString(l.Country), l.Timestamp.UnixNano(), l.ColorClass, len(l.LikedBy)}
	args = append(args, trackArgs(l.Track)...)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO letters (`+letterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return err
	}

	for i, identityID := range l.LikedBy {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO letter_likes (letter_id, identity_id, liked_at) VALUES (?, ?, ?)`,
			l.ID, identityID, l.Timestamp.UnixNano()+int64(i))
		if err != nil {
			return fmt.Errorf("insert like: %w", err)
		}
	}
	return nil
}

// CreateLetter validates d and persists it as a new letter.
func (s *Store) CreateLetter(ctx context.Context, d domain.Draft) (*domain.Letter, error) {
	if err := s.validator.Validate(d); err != nil {
		return nil, err
	}

	letterID, err := id.Generate(id.PrefixLetter)
	if err != nil {
		return nil, domainerrors.Write("create letter", err)
	}
	letter := store.NewLetter(letterID, d, s.now())

	if err := s.ImportLetter(ctx, letter); err != nil {
		return nil, domainerrors.Write("create letter", err)
	}

	s.logger.Info("letter created", "id", letter.ID, "member", letter.Member)
	s.afterWrite(ctx, letter, true)
	return letter.Clone(), nil
}

// ImportLetter inserts a complete letter as is, keeping its id and timestamp.
// Live subscribers are not notified.
func (s *Store) ImportLetter(ctx context.Context, l *domain.Letter) error {
	l.Normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertLetter(ctx, tx, l); err != nil {
		return err
	}
	return tx.Commit()
}

// Create implements the feed adapter contract: it returns only the new id.
func (s *Store) Create(ctx context.Context, d domain.Draft) (string, error) {
	letter, err := s.CreateLetter(ctx, d)
	if err != nil {
		return "", err
	}
	return letter.ID, nil
}

// GetLetter retrieves a letter by id with its like set.
func (s *Store) GetLetter(ctx context.Context, letterID string) (*domain.Letter, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+letterColumns+` FROM letters WHERE id = ?`, letterID)
	letter, err := scanLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrLetterNotFound
	}
	if err != nil {
		return nil, domainerrors.Read("get letter", err)
	}

	if err := s.loadLikes(ctx, s.db, []*domain.Letter{letter}); err != nil {
		return nil, domainerrors.Read("get letter likes", err)
	}
	return letter, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// loadLikes fills LikedBy for letters in like order and resets Likes to match.
func (s *Store) loadLikes(ctx context.Context, q querier, letters []*domain.Letter) error {
	if len(letters) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Letter, len(letters))
	args := make([]any, len(letters))
	for i, l := range letters {
		byID[l.ID] = l
		args[i] = l.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(letters)), ",")

	rows, err := q.QueryContext(ctx, `
		SELECT letter_id, identity_id FROM letter_likes
		WHERE letter_id IN (`+placeholders+`)
		ORDER BY liked_at, rowid`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var letterID, identityID string
		if err := rows.Scan(&letterID, &identityID); err != nil {
			return err
		}
		if l, ok := byID[letterID]; ok {
			l.LikedBy = append(l.LikedBy, identityID)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, l := range letters {
		l.Likes = len(l.LikedBy)
	}
	return nil
}

// cursorKey renders a keyset position: {scope}:{likes}:{ts}:{id}.
func cursorKey(scope string, l *domain.Letter) string {
	return fmt.Sprintf("%s:%d:%d:%s", scope, l.Likes, l.Timestamp.UnixNano(), l.ID)
}

type position struct {
	likes int
	ts    int64
	id    string
}

func parsePosition(key, prefix string) (position, error) {
	parts := strings.SplitN(strings.TrimPrefix(key, prefix), ":", 3)
	if len(parts) != 3 {
		return position{}, store.ErrInvalidCursor
	}
	likes, err := strconv.Atoi(parts[0])
	if err != nil {
		return position{}, store.ErrInvalidCursor.WithCause(err)
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return position{}, store.ErrInvalidCursor.WithCause(err)
	}
	return position{likes: likes, ts: ts, id: parts[2]}, nil
}

func scopeOf(f domain.Filter) string {
	if f.IsAll() {
		return "all"
	}
	return string(f.Member)
}

// QueryPage returns one page of letters for q using keyset pagination.
func (s *Store) QueryPage(ctx context.Context, q domain.Query, cursor string, limit int) (*domain.Page, error) {
	if q.Sort == "" {
		q.Sort = domain.SortNewest
	}
	limit = store.ClampLimit(limit, s.pageSize)
	scope := scopeOf(q.Filter)
	prefix := scope + ":"

	key, err := store.CursorKey(cursor, q, prefix)
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if !q.Filter.IsAll() {
		where = append(where, "member = ?")
		args = append(args, string(q.Filter.Member))
	}

	var order string
	switch q.Sort {
	case domain.SortOldest:
		order = "ts ASC, id ASC"
	case domain.SortMostLiked:
		order = "likes DESC, ts DESC, id DESC"
	default:
		order = "ts DESC, id DESC"
	}

	if key != "" {
		pos, err := parsePosition(key, prefix)
		if err != nil {
			return nil, err
		}
		switch q.Sort {
		case domain.SortOldest:
			where = append(where, "(ts > ? OR (ts = ? AND id > ?))")
			args = append(args, pos.ts, pos.ts, pos.id)
		case domain.SortMostLiked:
			where = append(where, "(likes < ? OR (likes = ? AND (ts < ? OR (ts = ? AND id < ?))))")
			args = append(args, pos.likes, pos.likes, pos.ts, pos.ts, pos.id)
		default:
			where = append(where, "(ts < ? OR (ts = ? AND id < ?))")
			args = append(args, pos.ts, pos.ts, pos.id)
		}
	}

	query := `SELECT ` + letterColumns + ` FROM letters`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + order + " LIMIT ?"
	args = append(args, limit+1) // one extra row tells us whether another page exists

	letters, err := s.queryLetters(ctx, query, args...)
	if err != nil {
		return nil, domainerrors.Read("query letters", err)
	}

	page := &domain.Page{Items: letters}
	if len(letters) > limit {
		page.Items = letters[:limit]
		page.HasMore = true
		page.NextCursor = store.EncodeCursor(q.Sort, cursorKey(scope, page.Items[limit-1]))
	}
	return page, nil
}

func (s *Store) queryLetters(ctx context.Context, query string, args ...any) ([]*domain.Letter, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	letters := []*domain.Letter{}
	for rows.Next() {
		l, err := scanLetter(rows)
		if err != nil {
			return nil, err
		}
		letters = append(letters, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The stored counter decides the order; the like set is reloaded for the body.
	counts := make([]int, len(letters))
	for i, l := range letters {
		counts[i] = l.Likes
	}
	if err := s.loadLikes(ctx, s.db, letters); err != nil {
		return nil, err
	}
	for i, l := range letters {
		if l.Likes != counts[i] {
			s.logger.Warn("like counter out of sync", "id", l.ID, "counter", counts[i], "set", l.Likes)
		}
	}
	return letters, nil
}

// ToggleLike flips identityID's like on a letter. The stored set decides the
// outcome, so repeating a toggle whose effect is already present is a no-op.
func (s *Store) ToggleLike(ctx context.Context, letterID, identityID string, currentlyLiked bool) (*domain.Letter, error) {
	return s.SetLike(ctx, letterID, identityID, !currentlyLiked)
}

// SetLike adds or removes identityID from the like set and updates the
// counter in one transaction.
func (s *Store) SetLike(ctx context.Context, letterID, identityID string, liked bool) (*domain.Letter, error) {
	if strings.TrimSpace(identityID) == "" {
		return nil, domainerrors.Validation("identity_id is required")
	}

	changed, err := s.setLike(ctx, letterID, identityID, liked)
	switch {
	case errors.Is(err, store.ErrLetterNotFound):
		return nil, err
	case err != nil:
		return nil, domainerrors.Write("toggle like", err)
	}

	letter, err := s.GetLetter(ctx, letterID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.afterWrite(ctx, letter, false)
	}
	return letter, nil
}

func (s *Store) setLike(ctx context.Context, letterID, identityID string, liked bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM letters WHERE id = ?`, letterID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, store.ErrLetterNotFound
	}
	if err != nil {
		return false, err
	}

	var res sql.Result
	if liked {
		res, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO letter_likes (letter_id, identity_id, liked_at) VALUES (?, ?, ?)`,
			letterID, identityID, s.now().UnixNano())
	} else {
		res, err = tx.ExecContext(ctx,
			`DELETE FROM letter_likes WHERE letter_id = ? AND identity_id = ?`, letterID, identityID)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE letters SET likes = (SELECT COUNT(*) FROM letter_likes WHERE letter_id = ?)
		WHERE id = ?`, letterID, letterID)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// ListAllLetters returns every stored letter, newest first.
func (s *Store) ListAllLetters(ctx context.Context) ([]*domain.Letter, error) {
	letters, err := s.queryLetters(ctx, `SELECT `+letterColumns+` FROM letters ORDER BY ts DESC, id DESC`)
	if err != nil {
		return nil, domainerrors.Read("list letters", err)
	}
	return letters, nil
}

// CountLetters returns the number of stored letters.
func (s *Store) CountLetters(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM letters`).Scan(&n); err != nil {
		return 0, domainerrors.Read("count letters", err)
	}
	return n, nil
}

// Backfill repairs counters that drifted from the like set and invalid colours.
func (s *Store) Backfill(ctx context.Context) (*store.BackfillResult, error) {
	result := &store.BackfillResult{}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM letters`).Scan(&result.Scanned); err != nil {
		return nil, domainerrors.Read("backfill", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id FROM letters l
		WHERE l.likes != (SELECT COUNT(*) FROM letter_likes k WHERE k.letter_id = l.id)
		   OR l.color_class NOT IN ('card-1', 'card-2', 'card-3', 'card-4', 'card-5', 'card-6')`)
	if err != nil {
		return nil, domainerrors.Read("backfill", err)
	}
	var ids []string
	for rows.Next() {
		var letterID string
		if err := rows.Scan(&letterID); err != nil {
			rows.Close()
			return nil, domainerrors.Read("backfill", err)
		}
		ids = append(ids, letterID)
	}
	rows.Close()

	for _, letterID := range ids {
		_, err := s.db.ExecContext(ctx, `
			UPDATE letters SET
				likes = (SELECT COUNT(*) FROM letter_likes WHERE letter_id = ?),
				color_class = CASE WHEN color_class IN ('card-1', 'card-2', 'card-3', 'card-4', 'card-5', 'card-6')
					THEN color_class ELSE 'card-1' END
			WHERE id = ?`, letterID, letterID)
		if err != nil {
			return result, domainerrors.Write("backfill letter "+letterID, err)
		}
		result.Repaired++

		if letter, err := s.GetLetter(ctx, letterID); err == nil {
			s.afterWrite(ctx, letter, false)
		}
	}

	s.logger.Info("letter backfill complete", "scanned", result.Scanned, "repaired", result.Repaired)
	return result, nil
}

// Subscribe registers a live subscription for q. See store.Hub.Subscribe.
func (s *Store) Subscribe(ctx context.Context, q domain.Query, onChange func([]*domain.Letter)) (func(), error) {
	return s.hub.Subscribe(ctx, q, onChange)
}

// afterWrite fans a committed change out to live subscriptions, SSE clients
// and the search index.
func (s *Store) afterWrite(ctx context.Context, letter *domain.Letter, created bool) {
	s.hub.Notify(letter)

	if created {
		s.emitter.Emit(sse.NewLetterCreatedEvent(letter.Clone()))
	} else {
		s.emitter.Emit(sse.NewLetterUpdatedEvent(letter.Clone()))
	}

	indexed := letter.Clone()
	go func() {
		if err := s.searchIndexer.IndexLetter(context.WithoutCancel(ctx), indexed); err != nil {
			s.logger.Warn("failed to index letter", "id", indexed.ID, "error", err)
		}
	}()
}
