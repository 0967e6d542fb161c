package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/puri-adityakumar/clawdium/internal/model"
	"github.com/puri-adityakumar/clawdium/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; concurrent payment records then
	// resolve through the unique index instead of SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	profile TEXT,
	created_at INTEGER NOT NULL,
	revoked_at INTEGER
);

CREATE TABLE IF NOT EXISTS agent_keys (
	agent_id TEXT NOT NULL,
	key_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	revoked_at INTEGER,
	FOREIGN KEY(agent_id) REFERENCES agents(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_agent_keys_agent ON agent_keys(agent_id);

CREATE TABLE IF NOT EXISTS agent_wallets (
	agent_id TEXT PRIMARY KEY,
	network TEXT NOT NULL,
	address TEXT NOT NULL,
	sealed_secret TEXT NOT NULL,
	nonce TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(agent_id) REFERENCES agents(id)
);

CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	title TEXT NOT NULL,
	body_md TEXT NOT NULL,
	body_html TEXT NOT NULL,
	tags TEXT,
	premium INTEGER NOT NULL DEFAULT 0,
	price_usdc INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(agent_id) REFERENCES agents(id),
	CHECK (premium = 0 OR price_usdc > 0)
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_posts_agent ON posts(agent_id);

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	body_md TEXT NOT NULL,
	body_html TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(post_id) REFERENCES posts(id)
);
CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id);

CREATE TABLE IF NOT EXISTS votes (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(post_id) REFERENCES posts(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_unique ON votes(post_id, agent_id);
`,
	`
CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	payer_agent_id TEXT NOT NULL,
	amount_usdc INTEGER NOT NULL,
	tx_signature TEXT NOT NULL,
	payer_wallet TEXT,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(post_id) REFERENCES posts(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_tx ON payments(tx_signature);
CREATE INDEX IF NOT EXISTS idx_payments_post_payer ON payments(post_id, payer_agent_id);

CREATE TABLE IF NOT EXISTS site_metrics (
	name TEXT PRIMARY KEY,
	value INTEGER NOT NULL DEFAULT 0
);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Store) CreateAgent(ctx context.Context, agent *model.Agent, cred *model.Credential, wallet *model.Wallet) (err error) {
	profile, err := marshalProfile(agent.Profile)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
INSERT INTO agents (id, name, profile, created_at, revoked_at)
VALUES (?, ?, ?, ?, NULL)
`, agent.ID, agent.Name, profile, agent.CreatedAt.UnixMilli()); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
INSERT INTO agent_keys (agent_id, key_hash, created_at, revoked_at)
VALUES (?, ?, ?, NULL)
`, agent.ID, cred.KeyHash, cred.CreatedAt.UnixMilli()); err != nil {
		if isUniqueViolation(err) {
			err = store.ErrDuplicateKey
		}
		return err
	}
	if wallet != nil {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO agent_wallets (agent_id, network, address, sealed_secret, nonce, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, agent.ID, wallet.Network, wallet.Address, wallet.SealedSecret, wallet.Nonce, wallet.CreatedAt.UnixMilli()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetAgent(ctx context.Context, id string) (model.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT a.id, a.name, a.profile, a.created_at, a.revoked_at, w.address
FROM agents a
LEFT JOIN agent_wallets w ON w.agent_id = a.id
WHERE a.id = ?
`, id)
	var a model.Agent
	var profile sql.NullString
	var created int64
	var revoked sql.NullInt64
	var address sql.NullString
	if err := row.Scan(&a.ID, &a.Name, &profile, &created, &revoked, &address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Agent{}, store.ErrNotFound
		}
		return model.Agent{}, err
	}
	if profile.Valid && profile.String != "" {
		_ = json.Unmarshal([]byte(profile.String), &a.Profile)
	}
	a.CreatedAt = time.UnixMilli(created)
	a.RevokedAt = nullTime(revoked)
	a.WalletAddress = address.String
	return a, nil
}

// GetCredential joins the agent row so revocation of either side is visible.
func (s *Store) GetCredential(ctx context.Context, agentID string) (model.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT k.agent_id, k.key_hash, k.created_at, COALESCE(k.revoked_at, a.revoked_at)
FROM agent_keys k
JOIN agents a ON a.id = k.agent_id
WHERE k.agent_id = ?
`, agentID)
	var c model.Credential
	var created int64
	var revoked sql.NullInt64
	if err := row.Scan(&c.AgentID, &c.KeyHash, &created, &revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Credential{}, store.ErrNotFound
		}
		return model.Credential{}, err
	}
	c.CreatedAt = time.UnixMilli(created)
	c.RevokedAt = nullTime(revoked)
	return c, nil
}

func (s *Store) GetWallet(ctx context.Context, agentID string) (model.Wallet, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT agent_id, network, address, sealed_secret, nonce, created_at
FROM agent_wallets
WHERE agent_id = ?
`, agentID)
	var w model.Wallet
	var created int64
	if err := row.Scan(&w.AgentID, &w.Network, &w.Address, &w.SealedSecret, &w.Nonce, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Wallet{}, store.ErrNotFound
		}
		return model.Wallet{}, err
	}
	w.CreatedAt = time.UnixMilli(created)
	return w, nil
}

func (s *Store) RevokeAgent(ctx context.Context, agentID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, time.Now().UnixMilli(), agentID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
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
INSERT INTO posts (id, agent_id, title, body_md, body_html, tags, premium, price_usdc, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, post.ID, post.AgentID, post.Title, post.BodyMD, post.BodyHTML, string(tags), boolToInt(post.Premium), post.PriceUSDC, post.CreatedAt.UnixMilli())
	return err
}

const postColumns = `p.id, p.agent_id, a.name, p.title, p.body_md, p.body_html, p.tags, p.premium, p.price_usdc, p.created_at,
	(SELECT COUNT(*) FROM votes v WHERE v.post_id = p.id) AS votes`

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+postColumns+`
FROM posts p
LEFT JOIN agents a ON a.id = p.agent_id
WHERE p.id = ?
`, id)
	return scanPost(row)
}

func (s *Store) ListPosts(ctx context.Context, opts store.PostListOpts) ([]model.Post, error) {
	limit := opts.PageSize()
	var where []string
	var args []any
	if opts.Tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(p.tags) WHERE json_each.value = ?)`)
		args = append(args, opts.Tag)
	}
	if opts.AgentID != "" {
		where = append(where, `p.agent_id = ?`)
		args = append(args, opts.AgentID)
	}
	query := `SELECT ` + postColumns + `
FROM posts p
LEFT JOIN agents a ON a.id = p.agent_id`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	if opts.Sort == "top" {
		query += "\nORDER BY votes DESC, p.created_at DESC"
	} else {
		query += "\nORDER BY p.created_at DESC"
	}
	query += "\nLIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *Store) CreateComment(ctx context.Context, comment *model.Comment) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO comments (id, post_id, agent_id, body_md, body_html, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, comment.ID, comment.PostID, comment.AgentID, comment.BodyMD, comment.BodyHTML, comment.CreatedAt.UnixMilli())
	return err
}

func (s *Store) ListComments(ctx context.Context, postID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.post_id, c.agent_id, a.name, c.body_md, c.body_html, c.created_at
FROM comments c
LEFT JOIN agents a ON a.id = c.agent_id
WHERE c.post_id = ?
ORDER BY c.created_at DESC
`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var name sql.NullString
		var created int64
		if err := rows.Scan(&c.ID, &c.PostID, &c.AgentID, &name, &c.BodyMD, &c.BodyHTML, &created); err != nil {
			return nil, err
		}
		c.AuthorName = name.String
		c.CreatedAt = time.UnixMilli(created)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) CreateVote(ctx context.Context, vote *model.Vote) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO votes (id, post_id, agent_id, created_at)
VALUES (?, ?, ?, ?)
`, vote.ID, vote.PostID, vote.AgentID, vote.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateVote
		}
		return err
	}
	return nil
}

func (s *Store) HasVoted(ctx context.Context, postID, agentID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
SELECT EXISTS(SELECT 1 FROM votes WHERE post_id = ? AND agent_id = ?)
`, postID, agentID).Scan(&exists)
	return exists == 1, err
}

func (s *Store) HasPaid(ctx context.Context, postID, agentID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
SELECT EXISTS(SELECT 1 FROM payments WHERE post_id = ? AND payer_agent_id = ?)
`, postID, agentID).Scan(&exists)
	return exists == 1, err
}

func (s *Store) RecordPayment(ctx context.Context, payment *model.Payment) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO payments (id, post_id, payer_agent_id, amount_usdc, tx_signature, payer_wallet, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, payment.ID, payment.PostID, payment.PayerAgentID, payment.AmountUSDC, payment.TxSignature, nullIfEmpty(payment.PayerWallet), payment.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateSignature
		}
		return err
	}
	return nil
}

func (s *Store) IncrementMetric(ctx context.Context, name string, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO site_metrics (name, value) VALUES (?, ?)
ON CONFLICT(name) DO UPDATE SET value = value + excluded.value
`, name, delta)
	return err
}

func (s *Store) GetMetric(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM site_metrics WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (s *Store) GetSiteStats(ctx context.Context) (model.SiteStats, error) {
	var stats model.SiteStats
	row := s.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM agents),
	(SELECT COUNT(*) FROM posts),
	(SELECT COUNT(*) FROM comments),
	COALESCE((SELECT value FROM site_metrics WHERE name = ?), 0),
	COALESCE((SELECT value FROM site_metrics WHERE name = ?), 0),
	COALESCE((SELECT value FROM site_metrics WHERE name = ?), 0),
	COALESCE((SELECT value FROM site_metrics WHERE name = ?), 0)
`, model.MetricAPICalls, model.MetricPayments, model.MetricRevenue, model.MetricSkillReads)
	err := row.Scan(&stats.Agents, &stats.Posts, &stats.Comments, &stats.APICalls, &stats.Payments, &stats.RevenueUSDC, &stats.SkillReads)
	return stats, err
}

func scanPost(scanner interface{ Scan(dest ...any) error }) (model.Post, error) {
	var p model.Post
	var name sql.NullString
	var tagsRaw sql.NullString
	var premium int
	var created int64
	if err := scanner.Scan(&p.ID, &p.AgentID, &name, &p.Title, &p.BodyMD, &p.BodyHTML, &tagsRaw, &premium, &p.PriceUSDC, &created, &p.Votes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, store.ErrNotFound
		}
		return model.Post{}, err
	}
	if tagsRaw.Valid && tagsRaw.String != "" {
		_ = json.Unmarshal([]byte(tagsRaw.String), &p.Tags)
	}
	p.AuthorName = name.String
	p.Premium = premium == 1
	p.CreatedAt = time.UnixMilli(created)
	return p, nil
}

func marshalProfile(profile map[string]any) (any, error) {
	if len(profile) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
