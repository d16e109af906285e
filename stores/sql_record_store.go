package stores

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oarkflow/squealx"

	ability "github.com/SamuelT19/networks-admin"
)

// Channel is a broadcast channel owned by a user.
type Channel struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *Channel) Type() ability.SubjectType { return ability.SubjectChannel }

func (c *Channel) Attribute(name string) (any, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "name":
		return c.Name, true
	case "isActive":
		return c.IsActive, true
	case "userId":
		return c.UserID, true
	}
	return nil, false
}

// Program is a scheduled broadcast belonging to a channel.
type Program struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Duration  int64     `json:"duration"`
	IsActive  bool      `json:"isActive"`
	AirDate   time.Time `json:"airDate"`
	ChannelID int64     `json:"channelId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p *Program) Type() ability.SubjectType { return ability.SubjectProgram }

func (p *Program) Attribute(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "title":
		return p.Title, true
	case "duration":
		return p.Duration, true
	case "isActive":
		return p.IsActive, true
	case "channelId":
		return p.ChannelID, true
	}
	return nil, false
}

// SQLRecordStore serves channel and program records through ability filters:
// list, count, update and delete operations never run unscoped, the caller's
// compiled filter is rendered straight into the WHERE clause.
type SQLRecordStore struct {
	db *squealx.DB
}

func NewSQLRecordStore(db *squealx.DB) *SQLRecordStore {
	return &SQLRecordStore{db: db}
}

func (s *SQLRecordStore) CreateChannel(ctx context.Context, c *Channel) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	q := `INSERT INTO channels(name, is_active, user_id, created_at)
	      VALUES(:name, :is_active, :user_id, :created_at)`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"name":       c.Name,
		"is_active":  boolToInt(c.IsActive),
		"user_id":    c.UserID,
		"created_at": c.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *SQLRecordStore) ListChannels(ctx context.Context, f ability.Filter) ([]*Channel, error) {
	where, args, err := RenderFilter(f, "f")
	if err != nil {
		return nil, err
	}
	q := `SELECT id, name, is_active, user_id, created_at FROM channels WHERE ` + where + ` ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]*Channel, 0)
	for r.Next() {
		c, err := scanChannel(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLRecordStore) CountChannels(ctx context.Context, f ability.Filter) (int64, error) {
	where, args, err := RenderFilter(f, "f")
	if err != nil {
		return 0, err
	}
	return s.count(ctx, `SELECT COUNT(*) FROM channels WHERE `+where, args)
}

// UpdateChannel writes the permitted columns of one channel, scoped by the
// caller's filter. A zero rows-affected result means the record either does
// not exist or sits outside the caller's scope; both read as denial.
func (s *SQLRecordStore) UpdateChannel(ctx context.Context, f ability.Filter, id int64, values map[string]any) error {
	return s.scopedUpdate(ctx, "channels", f, id, values)
}

func (s *SQLRecordStore) DeleteChannel(ctx context.Context, f ability.Filter, id int64) error {
	return s.scopedDelete(ctx, "channels", f, id)
}

func (s *SQLRecordStore) CreateProgram(ctx context.Context, p *Program) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	q := `INSERT INTO programs(title, duration, is_active, air_date, channel_id, created_at)
	      VALUES(:title, :duration, :is_active, :air_date, :channel_id, :created_at)`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"title":      p.Title,
		"duration":   p.Duration,
		"is_active":  boolToInt(p.IsActive),
		"air_date":   p.AirDate.Format(time.RFC3339),
		"channel_id": p.ChannelID,
		"created_at": p.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (s *SQLRecordStore) ListPrograms(ctx context.Context, f ability.Filter) ([]*Program, error) {
	where, args, err := RenderFilter(f, "f")
	if err != nil {
		return nil, err
	}
	q := `SELECT id, title, duration, is_active, air_date, channel_id, created_at FROM programs WHERE ` + where + ` ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]*Program, 0)
	for r.Next() {
		p, err := scanProgram(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLRecordStore) CountPrograms(ctx context.Context, f ability.Filter) (int64, error) {
	where, args, err := RenderFilter(f, "f")
	if err != nil {
		return 0, err
	}
	return s.count(ctx, `SELECT COUNT(*) FROM programs WHERE `+where, args)
}

func (s *SQLRecordStore) UpdateProgram(ctx context.Context, f ability.Filter, id int64, values map[string]any) error {
	return s.scopedUpdate(ctx, "programs", f, id, values)
}

func (s *SQLRecordStore) DeleteProgram(ctx context.Context, f ability.Filter, id int64) error {
	return s.scopedDelete(ctx, "programs", f, id)
}

func (s *SQLRecordStore) count(ctx context.Context, q string, args map[string]any) (int64, error) {
	r, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	var n int64
	if r.Next() {
		err = r.Scan(&n)
	}
	return n, err
}

func (s *SQLRecordStore) scopedUpdate(ctx context.Context, table string, f ability.Filter, id int64, values map[string]any) error {
	if len(values) == 0 {
		return ability.ErrPermissionDenied
	}
	where, args, err := RenderFilter(f, "f")
	if err != nil {
		return err
	}
	sets := make([]string, 0, len(values))
	for k, v := range values {
		col, err := columnFor(k)
		if err != nil {
			return err
		}
		param := "set_" + col
		if b, ok := v.(bool); ok {
			v = boolToInt(b)
		}
		sets = append(sets, fmt.Sprintf("%s = :%s", col, param))
		args[param] = v
	}
	args["target_id"] = id

	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = :target_id AND (%s)", table, strings.Join(sets, ", "), where)
	res, err := s.db.NamedExecContext(ctx, q, args)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ability.ErrPermissionDenied
	}
	return nil
}

func (s *SQLRecordStore) scopedDelete(ctx context.Context, table string, f ability.Filter, id int64) error {
	where, args, err := RenderFilter(f, "f")
	if err != nil {
		return err
	}
	args["target_id"] = id
	q := fmt.Sprintf("DELETE FROM %s WHERE id = :target_id AND (%s)", table, where)
	res, err := s.db.NamedExecContext(ctx, q, args)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ability.ErrPermissionDenied
	}
	return nil
}

func scanChannel(r rowScanner) (*Channel, error) {
	var (
		c        Channel
		isActive int64
		created  any
	)
	if err := r.Scan(&c.ID, &c.Name, &isActive, &c.UserID, &created); err != nil {
		return nil, err
	}
	c.IsActive = intToBool(isActive)
	c.CreatedAt = scanTime(created)
	return &c, nil
}

func scanProgram(r rowScanner) (*Program, error) {
	var (
		p        Program
		isActive int64
		airDate  any
		created  any
	)
	if err := r.Scan(&p.ID, &p.Title, &p.Duration, &isActive, &airDate, &p.ChannelID, &created); err != nil {
		return nil, err
	}
	p.IsActive = intToBool(isActive)
	p.AirDate = scanTime(airDate)
	p.CreatedAt = scanTime(created)
	return &p, nil
}
