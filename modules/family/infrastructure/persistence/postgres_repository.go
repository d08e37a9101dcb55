package persistence

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/familytree/modules/family/domain/aggregates/member"
	"github.com/iota-uz/familytree/pkg/composables"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const familyMembersTable = "family_members"

const selectMemberSQL = `SELECT id, name, dob, phone, occupation, address, image, spouse_id, children
FROM family_members`

const insertMemberSQL = `INSERT INTO family_members
(id, name, dob, phone, occupation, address, image, spouse_id, children)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const addChildSQL = `UPDATE family_members
SET children = CASE WHEN $2::uuid = ANY(children) THEN children ELSE array_append(children, $2::uuid) END,
    updated_at = now()
WHERE id = $1`

type PostgresOptions struct {
	ConnString string
	// Database is reported by Inspect.
	Database string
	// Migrate applies the embedded schema on connect.
	Migrate bool
	Logger  *logrus.Entry
}

type PostgresRepository struct {
	pool *pgxpool.Pool
	opts PostgresOptions
}

func ConnectPostgres(ctx context.Context, opts PostgresOptions) (*PostgresRepository, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, gerrors.Wrap(err, "postgres connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, gerrors.Wrap(err, "postgres ping")
	}
	r := &PostgresRepository{pool: pool, opts: opts}
	if opts.Migrate {
		if err := r.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return r, nil
}

// Migrate applies pending migrations from the embedded schema.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(r.pool)
	defer func() { _ = db.Close() }()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return gerrors.Wrap(err, "goose provider")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return gerrors.Wrap(err, "apply migrations")
	}
	for _, res := range results {
		r.opts.Logger.WithFields(logrus.Fields{
			"version":  res.Source.Version,
			"duration": res.Duration,
		}).Info("applied migration")
	}
	return nil
}

func (r *PostgresRepository) FindOne(ctx context.Context, f member.Filter) (member.Member, error) {
	sql, args := buildFindQuery(f)
	m, err := scanMember(r.conn(ctx).QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return member.Member{}, member.ErrNotFound
		}
		return member.Member{}, gerrors.Wrap(err, "find member")
	}
	return m, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, m member.Member) (member.ID, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	id := m.ID()
	if id.IsZero() {
		id = member.ID(uuid.NewString())
	}
	pgID, err := pgUUID(id)
	if err != nil {
		return "", err
	}
	spouse, err := pgUUIDOrNull(m.Spouse())
	if err != nil {
		return "", err
	}
	children, err := pgUUIDs(m.Children())
	if err != nil {
		return "", err
	}
	if _, err := r.conn(ctx).Exec(ctx, insertMemberSQL,
		pgID,
		m.Name(),
		pgDate(m.DateOfBirth()),
		m.Phone(),
		pgText(m.Occupation()),
		pgText(m.Address()),
		pgText(m.Image()),
		spouse,
		children,
	); err != nil {
		return "", gerrors.Wrap(err, "insert member")
	}
	return id, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id member.ID, p member.Patch) error {
	if p.IsEmpty() {
		return nil
	}
	sql, args, err := buildUpdate(id, p)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return gerrors.Wrapf(err, "update member %s", id)
	}
	if tag.RowsAffected() == 0 {
		return member.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) AddChild(ctx context.Context, parent, child member.ID) error {
	parentID, err := pgUUID(parent)
	if err != nil {
		return err
	}
	childID, err := pgUUID(child)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, addChildSQL, parentID, childID)
	if err != nil {
		return gerrors.Wrapf(err, "add child %s to %s", child, parent)
	}
	if tag.RowsAffected() == 0 {
		return member.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return composables.InTx(composables.WithPool(ctx, r.pool), fn)
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return gerrors.Wrap(err, "postgres ping")
	}
	return nil
}

func (r *PostgresRepository) Inspect(ctx context.Context) (Status, error) {
	st := Status{
		Backend:        BackendPostgres,
		Database:       r.opts.Database,
		Collection:     familyMembersTable,
		DatabaseExists: true,
	}
	if err := r.pool.QueryRow(ctx,
		`SELECT to_regclass($1) IS NOT NULL`, familyMembersTable,
	).Scan(&st.CollectionExists); err != nil {
		return st, gerrors.Wrap(err, "lookup table")
	}
	if !st.CollectionExists {
		return st, nil
	}
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM family_members`).Scan(&st.Members); err != nil {
		return st, gerrors.Wrap(err, "count members")
	}
	return st, nil
}

func (r *PostgresRepository) Close(context.Context) error {
	r.pool.Close()
	return nil
}

// conn returns the transaction carried by ctx, or the pool.
func (r *PostgresRepository) conn(ctx context.Context) composables.Tx {
	if tx, err := composables.UseTx(ctx); err == nil {
		return tx
	}
	return r.pool
}

func buildFindQuery(f member.Filter) (string, []any) {
	where := []string{"name = $1"}
	args := []any{member.NormalizeName(f.Name)}
	if f.DateOfBirth != nil {
		args = append(args, pgDate(f.DateOfBirth))
		where = append(where, fmt.Sprintf("dob = $%d", len(args)))
	} else {
		where = append(where, "dob IS NULL")
	}
	if f.Bare {
		where = append(where,
			"phone = ''",
			"occupation IS NULL",
			"address IS NULL",
			"image IS NULL",
			"spouse_id IS NULL",
			"cardinality(children) = 0",
		)
	}
	sql := selectMemberSQL + "\nWHERE " + strings.Join(where, " AND ") + "\nORDER BY created_at, id\nLIMIT 1"
	return sql, args
}

func buildUpdate(id member.ID, p member.Patch) (string, []any, error) {
	pgID, err := pgUUID(id)
	if err != nil {
		return "", nil, err
	}
	args := []any{pgID}
	var sets []string
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Address.Set {
		add("address", pgText(p.Address.Value))
	}
	if p.Phone.Set {
		phone := ""
		if p.Phone.Value != nil {
			phone = strings.TrimSpace(*p.Phone.Value)
		}
		add("phone", phone)
	}
	if p.Occupation.Set {
		add("occupation", pgText(p.Occupation.Value))
	}
	if p.Image.Set {
		add("image", pgText(p.Image.Value))
	}
	if p.Spouse.Set {
		spouse, err := pgUUIDOrNull(p.Spouse.Value)
		if err != nil {
			return "", nil, err
		}
		add("spouse_id", spouse)
	}
	if p.Children.Set {
		var ids []member.ID
		if p.Children.Value != nil {
			ids = *p.Children.Value
		}
		children, err := pgUUIDs(ids)
		if err != nil {
			return "", nil, err
		}
		add("children", children)
	}
	sets = append(sets, "updated_at = now()")

	sql := "UPDATE family_members SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	return sql, args, nil
}

func scanMember(row pgx.Row) (member.Member, error) {
	var (
		id                         pgtype.UUID
		name, phone                string
		dob                        pgtype.Date
		occupation, address, image pgtype.Text
		spouse                     pgtype.UUID
		children                   []pgtype.UUID
	)
	if err := row.Scan(&id, &name, &dob, &phone, &occupation, &address, &image, &spouse, &children); err != nil {
		return member.Member{}, err
	}

	opts := []member.Option{
		member.WithID(memberID(id)),
		member.WithPhone(phone),
		member.WithOccupation(textPtr(occupation)),
		member.WithAddress(textPtr(address)),
		member.WithImage(textPtr(image)),
	}
	if dob.Valid {
		t := dob.Time
		opts = append(opts, member.WithDateOfBirth(&t))
	}
	if spouse.Valid {
		s := memberID(spouse)
		opts = append(opts, member.WithSpouse(&s))
	}
	ids := make([]member.ID, 0, len(children))
	for _, c := range children {
		if c.Valid {
			ids = append(ids, memberID(c))
		}
	}
	opts = append(opts, member.WithChildren(ids))
	return member.New(name, opts...), nil
}

func memberID(u pgtype.UUID) member.ID {
	return member.ID(uuid.UUID(u.Bytes).String())
}

func pgUUID(id member.ID) (pgtype.UUID, error) {
	u, err := uuid.Parse(id.String())
	if err != nil {
		return pgtype.UUID{}, gerrors.Wrapf(member.ErrInvalidID, "%q", id)
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}

func pgUUIDOrNull(id *member.ID) (pgtype.UUID, error) {
	if id == nil || id.IsZero() {
		return pgtype.UUID{}, nil
	}
	return pgUUID(*id)
}

func pgUUIDs(ids []member.ID) ([]pgtype.UUID, error) {
	out := make([]pgtype.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := pgUUID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func pgDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: member.DateOnlyUTC(*t), Valid: true}
}

func pgText(v *string) pgtype.Text {
	if v == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *v, Valid: true}
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
