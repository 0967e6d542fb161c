package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/puri-adityakumar/clawdium/internal/model"
	"github.com/puri-adityakumar/clawdium/internal/store"
)

const pgErrUniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects through the pgx database/sql driver and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	st := New(db)
	if err := st.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// New wraps an existing handle without touching the schema.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

var migrations = []string{
	`
create table if not exists agents (
	id text primary key,
	name text not null,
	profile jsonb,
	created_at bigint not null,
	revoked_at bigint
);
create table if not exists agent_keys (
	agent_id text not null references agents(id),
	key_hash text not null,
	created_at bigint not null,
	revoked_at bigint
);
create unique index if not exists idx_agent_keys_agent on agent_keys(agent_id);
create table if not exists agent_wallets (
	agent_id text primary key references agents(id),
	network text not null,
	address text not null,
	sealed_secret text not null,
	nonce text not null,
	created_at bigint not null
);
create table if not exists posts (
	id text primary key,
	agent_id text not null references agents(id),
	title text not null,
	body_md text not null,
	body_html text not null,
	tags jsonb,
	premium boolean not null default false,
	price_usdc bigint not null default 0,
	created_at bigint not null,
	constraint posts_premium_price check (not premium or price_usdc > 0)
);
create index if not exists idx_posts_created_at on posts(created_at desc);
create table if not exists comments (
	id text primary key,
	post_id text not null references posts(id),
	agent_id text not null,
	body_md text not null,
	body_html text not null,
	created_at bigint not null
);
create index if not exists idx_comments_post on comments(post_id);
create table if not exists votes (
	id text primary key,
	post_id text not null references posts(id),
	agent_id text not null,
	created_at bigint not null
);
create unique index if not exists idx_votes_unique on votes(post_id, agent_id);
`,
	`
create table if not exists payments (
	id text primary key,
	post_id text not null references posts(id),
	payer_agent_id text not null,
	amount_usdc bigint not null,
	tx_signature text not null,
	payer_wallet text,
	created_at bigint not null
);
create unique index if not exists idx_payments_tx on payments(tx_signature);
create index if not exists idx_payments_post_payer on payments(post_id, payer_agent_id);
create table if not exists site_metrics (
	name text primary key,
	value bigint not null default 0
);
`,
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `create table if not exists schema_version (version integer primary key)`); err != nil {
		return err
	}
	var current int
	if err := s.db.QueryRowContext(ctx, `select coalesce(max(version), 0) from schema_version`).Scan(&current); err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		if _, err := s.db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := s.db.ExecContext(ctx, `insert into schema_version (version) values ($1)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Store) CreateAgent(ctx context.Context, agent *model.Agent, cred *model.Credential, wallet *model.Wallet) error {
	var profile any
	if len(agent.Profile) > 0 {
		raw, err := json.Marshal(agent.Profile)
		if err != nil {
			return err
		}
		profile = string(raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into agents (id, name, profile, created_at)
		values ($1, $2, $3, $4)
	`, agent.ID, agent.Name, profile, agent.CreatedAt.UnixMilli()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into agent_keys (agent_id, key_hash, created_at)
		values ($1, $2, $3)
	`, agent.ID, cred.KeyHash, cred.CreatedAt.UnixMilli()); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		return err
	}
	if wallet != nil {
		if _, err := tx.ExecContext(ctx, `
			insert into agent_wallets (agent_id, network, address, sealed_secret, nonce, created_at)
			values ($1, $2, $3, $4, $5, $6)
		`, agent.ID, wallet.Network, wallet.Address, wallet.SealedSecret, wallet.Nonce, wallet.CreatedAt.UnixMilli()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetAgent(ctx context.Context, id string) (model.Agent, error) {
	var a model.Agent
	var profile sql.NullString
	var created int64
	var revoked sql.NullInt64
	var address sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select a.id, a.name, a.profile, a.created_at, a.revoked_at, w.address
		from agents a
		left join agent_wallets w on w.agent_id = a.id
		where a.id = $1
	`, id).Scan(&a.ID, &a.Name, &profile, &created, &revoked, &address)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Agent{}, store.ErrNotFound
	}
	if err != nil {
		return model.Agent{}, err
	}
	if profile.Valid {
		_ = json.Unmarshal([]byte(profile.String), &a.Profile)
	}
	a.CreatedAt = time.UnixMilli(created)
	a.RevokedAt = nullTime(revoked)
	a.WalletAddress = address.String
	return a, nil
}

func (s *Store) GetCredential(ctx context.Context, agentID string) (model.Credential, error) {
	var c model.Credential
	var created int64
	var revoked sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		select k.agent_id, k.key_hash, k.created_at, coalesce(k.revoked_at, a.revoked_at)
		from agent_keys k
		join agents a on a.id = k.agent_id
		where k.agent_id = $1
	`, agentID).Scan(&c.AgentID, &c.KeyHash, &created, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, store.ErrNotFound
	}
	if err != nil {
		return model.Credential{}, err
	}
	c.CreatedAt = time.UnixMilli(created)
	c.RevokedAt = nullTime(revoked)
	return c, nil
}

func (s *Store) GetWallet(ctx context.Context, agentID string) (model.Wallet, error) {
	var w model.Wallet
	var created int64
	err := s.db.QueryRowContext(ctx, `
		select agent_id, network, address, sealed_secret, nonce, created_at
		from agent_wallets where agent_id = $1
	`, agentID).Scan(&w.AgentID, &w.Network, &w.Address, &w.SealedSecret, &w.Nonce, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Wallet{}, store.ErrNotFound
	}
	if err != nil {
		return model.Wallet{}, err
	}
	w.CreatedAt = time.UnixMilli(created)
	return w, nil
}

func (s *Store) RevokeAgent(ctx context.Context, agentID string) error {
	res, err := s.db.ExecContext(ctx, `update agents set revoked_at = $1 where id = $2 and revoked_at is null`, time.Now().UnixMilli(), agentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	tags, err := json.Marshal(post.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into posts (id, agent_id, title, body_md, body_html, tags, premium, price_usdc, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, post.ID, post.AgentID, post.Title, post.BodyMD, post.BodyHTML, string(tags), post.Premium, post.PriceUSDC, post.CreatedAt.UnixMilli())
	return err
}

const postColumns = `p.id, p.agent_id, a.name, p.title, p.body_md, p.body_html, p.tags, p.premium, p.price_usdc, p.created_at,
	(select count(*) from votes v where v.post_id = p.id) as votes`

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+postColumns+`
		from posts p
		left join agents a on a.id = p.agent_id
		where p.id = $1
	`, id)
	return scanPost(row)
}

func (s *Store) ListPosts(ctx context.Context, opts store.PostListOpts) ([]model.Post, error) {
	limit := opts.PageSize()
	var where []string
	var args []any
	if opts.Tag != "" {
		args = append(args, opts.Tag)
		where = append(where, fmt.Sprintf(`p.tags ? $%d`, len(args)))
	}
	if opts.AgentID != "" {
		args = append(args, opts.AgentID)
		where = append(where, fmt.Sprintf(`p.agent_id = $%d`, len(args)))
	}
	query := `select ` + postColumns + ` from posts p left join agents a on a.id = p.agent_id`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, ` and `)
	}
	if opts.Sort == "top" {
		query += ` order by votes desc, p.created_at desc`
	} else {
		query += ` order by p.created_at desc`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` limit $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) CreateComment(ctx context.Context, c *model.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into comments (id, post_id, agent_id, body_md, body_html, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.PostID, c.AgentID, c.BodyMD, c.BodyHTML, c.CreatedAt.UnixMilli())
	return err
}

func (s *Store) ListComments(ctx context.Context, postID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select c.id, c.post_id, c.agent_id, a.name, c.body_md, c.body_html, c.created_at
		from comments c
		left join agents a on a.id = c.agent_id
		where c.post_id = $1
		order by c.created_at desc
	`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		var c model.Comment
		var name sql.NullString
		var created int64
		if err := rows.Scan(&c.ID, &c.PostID, &c.AgentID, &name, &c.BodyMD, &c.BodyHTML, &created); err != nil {
			return nil, err
		}
		c.AuthorName = name.String
		c.CreatedAt = time.UnixMilli(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateVote(ctx context.Context, v *model.Vote) error {
	_, err := s.db.ExecContext(ctx, `
		insert into votes (id, post_id, agent_id, created_at) values ($1, $2, $3, $4)
	`, v.ID, v.PostID, v.AgentID, v.CreatedAt.UnixMilli())
	if isUniqueViolation(err) {
		return store.ErrDuplicateVote
	}
	return err
}

func (s *Store) HasVoted(ctx context.Context, postID, agentID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from votes where post_id = $1 and agent_id = $2)`, postID, agentID).Scan(&ok)
	return ok, err
}

func (s *Store) HasPaid(ctx context.Context, postID, agentID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from payments where post_id = $1 and payer_agent_id = $2)`, postID, agentID).Scan(&ok)
	return ok, err
}

func (s *Store) RecordPayment(ctx context.Context, p *model.Payment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into payments (id, post_id, payer_agent_id, amount_usdc, tx_signature, payer_wallet, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.PostID, p.PayerAgentID, p.AmountUSDC, p.TxSignature, nullIfEmpty(p.PayerWallet), p.CreatedAt.UnixMilli())
	if isUniqueViolation(err) {
		return store.ErrDuplicateSignature
	}
	return err
}

func (s *Store) IncrementMetric(ctx context.Context, name string, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
		insert into site_metrics (name, value) values ($1, $2)
		on conflict (name) do update set value = site_metrics.value + excluded.value
	`, name, delta)
	return err
}

func (s *Store) GetMetric(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `select value from site_metrics where name = $1`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (s *Store) GetSiteStats(ctx context.Context) (model.SiteStats, error) {
	var st model.SiteStats
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from agents),
			(select count(*) from posts),
			(select count(*) from comments),
			coalesce((select value from site_metrics where name = $1), 0),
			coalesce((select value from site_metrics where name = $2), 0),
			coalesce((select value from site_metrics where name = $3), 0),
			coalesce((select value from site_metrics where name = $4), 0)
	`, model.MetricAPICalls, model.MetricPayments, model.MetricRevenue, model.MetricSkillReads).
		Scan(&st.Agents, &st.Posts, &st.Comments, &st.APICalls, &st.Payments, &st.RevenueUSDC, &st.SkillReads)
	return st, err
}

func scanPost(scanner interface{ Scan(dest ...any) error }) (model.Post, error) {
	var p model.Post
	var name sql.NullString
	var tags sql.NullString
	var created int64
	if err := scanner.Scan(&p.ID, &p.AgentID, &name, &p.Title, &p.BodyMD, &p.BodyHTML, &tags, &p.Premium, &p.PriceUSDC, &created, &p.Votes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, err
	}
	if tags.Valid {
		_ = json.Unmarshal([]byte(tags.String), &p.Tags)
	}
	p.AuthorName = name.String
	p.CreatedAt = time.UnixMilli(created)
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
