package postgres

import (
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/events"
	"Fedipub/internal/core/result"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type postgresAccountRepo struct {
	db      *sql.DB
	emitter events.Emitter
	logger  *slog.Logger
}

// NewAccountRepository creates a new PostgreSQL account repository. Events
// are delivered through emitter after each commit.
func NewAccountRepository(db *sql.DB, emitter events.Emitter, logger *slog.Logger) accounts.Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &postgresAccountRepo{db: db, emitter: emitter, logger: logger}
}

const accountColumns = `
	a.id, a.uuid, a.username, a.name, a.bio, a.avatar_url, a.banner_image_url, a.url,
	a.custom_fields, a.ap_id, a.ap_inbox_url, a.ap_shared_inbox_url, a.ap_outbox_url,
	a.ap_following_url, a.ap_followers_url, a.ap_liked_url, a.ap_public_key, a.ap_private_key,
	a.created_at`

// Save inserts a draft account or updates a persisted one, then applies its
// pending follow, block and domain block changes, all in one transaction.
func (r *postgresAccountRepo) Save(ctx context.Context, account *accounts.Account) error {
	if account.HasID() && !account.IsDirty() {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction for account %s: %w", account.ApID(), err)
	}
	defer rollback(tx, r.logger, "ap_id", account.ApID())

	var pending []events.Event
	id := account.ID()
	var outcome InsertOutcome
	if !account.HasID() {
		newID, inserted, err := r.insert(ctx, tx, account)
		if err != nil {
			return err
		}
		id, outcome = newID, inserted
		if outcome == Created {
			pending = append(pending, events.AccountCreated{AccountID: id})
		}
	} else if account.IsProfileDirty() {
		if err := r.updateProfile(ctx, tx, account); err != nil {
			return err
		}
		pending = append(pending, events.AccountUpdated{AccountID: id})
	}

	relationEvents, err := r.applyRelations(ctx, tx, id, account)
	if err != nil {
		return err
	}
	pending = append(pending, relationEvents...)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account %s: %w", account.ApID(), err)
	}

	if outcome == AlreadyExists {
		stored, err := r.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to reload account %s after insert conflict: %w", account.ApID(), err)
		}
		if err := account.Adopt(stored); err != nil {
			return err
		}
	} else if err := account.AssignID(id); err != nil {
		return err
	}
	account.ClearDirtyFlags()

	return emitAll(ctx, r.emitter, pending)
}

func (r *postgresAccountRepo) insert(ctx context.Context, tx *sql.Tx, account *accounts.Account) (int64, InsertOutcome, error) {
	fields, err := json.Marshal(nonNilFields(account.CustomFields()))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to encode custom fields: %w", err)
	}
	publicKey, privateKey := keyColumns(account.Keys())
	ep := account.Endpoints()

	query := `
		INSERT INTO accounts (
			uuid, username, name, bio, avatar_url, banner_image_url, url,
			custom_fields, domain, ap_id, ap_inbox_url, ap_shared_inbox_url, ap_outbox_url,
			ap_following_url, ap_followers_url, ap_liked_url, ap_public_key, ap_private_key,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19
		)
		ON CONFLICT (ap_id) DO NOTHING
		RETURNING id`

	id, outcome, err := insertOrGet(ctx, tx, query, []any{
		account.UUID(), account.Username(), account.Name(), account.Bio(), account.AvatarURL(), account.BannerImageURL(), account.URL(),
		string(fields), account.Domain(), account.ApID(), ep.Inbox, ep.SharedInbox, ep.Outbox,
		ep.Following, ep.Followers, ep.Liked, publicKey, privateKey,
		account.CreatedAt(),
	}, `SELECT id FROM accounts WHERE ap_id = $1`, account.ApID())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to insert account %s: %w", account.ApID(), err)
	}
	return id, outcome, nil
}

func (r *postgresAccountRepo) updateProfile(ctx context.Context, tx *sql.Tx, account *accounts.Account) error {
	fields, err := json.Marshal(nonNilFields(account.CustomFields()))
	if err != nil {
		return fmt.Errorf("failed to encode custom fields: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET username = $2, name = $3, bio = $4, avatar_url = $5, banner_image_url = $6,
			custom_fields = $7, updated_at = NOW()
		WHERE id = $1`,
		account.ID(), account.Username(), account.Name(), account.Bio(), account.AvatarURL(),
		account.BannerImageURL(), string(fields))
	if err != nil {
		return fmt.Errorf("failed to update account %d: %w", account.ID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected for account %d: %w", account.ID(), err)
	}
	if n == 0 {
		return accounts.ErrAccountNotFound
	}
	return nil
}

// applyRelations writes the follow, block and domain block diffs. Events are
// produced only for rows that were actually inserted or deleted, in the order
// the changes were recorded on the account.
func (r *postgresAccountRepo) applyRelations(ctx context.Context, tx *sql.Tx, id int64, account *accounts.Account) ([]events.Event, error) {
	var pending []events.Event

	follows := account.FollowChanges()
	if len(follows.Removed) > 0 {
		removed, err := queryColumn[int64](ctx, tx,
			`DELETE FROM follows WHERE follower_id = $1 AND following_id = ANY($2) RETURNING following_id`,
			id, pq.Array(follows.Removed))
		if err != nil {
			return nil, fmt.Errorf("failed to delete follows: %w", err)
		}
		for _, target := range inRecordedOrder(follows.Removed, removed) {
			pending = append(pending, events.AccountUnfollowed{AccountID: target, FollowerID: id})
		}
	}
	if len(follows.Added) > 0 {
		added, err := queryColumn[int64](ctx, tx, `
			INSERT INTO follows (follower_id, following_id)
			SELECT $1, unnest($2::bigint[])
			ON CONFLICT DO NOTHING
			RETURNING following_id`,
			id, pq.Array(follows.Added))
		if err != nil {
			return nil, fmt.Errorf("failed to insert follows: %w", err)
		}
		for _, target := range inRecordedOrder(follows.Added, added) {
			pending = append(pending, events.AccountFollowed{AccountID: target, FollowerID: id})
		}
	}

	blocks := account.BlockChanges()
	if len(blocks.Removed) > 0 {
		removed, err := queryColumn[int64](ctx, tx,
			`DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = ANY($2) RETURNING blocked_id`,
			id, pq.Array(blocks.Removed))
		if err != nil {
			return nil, fmt.Errorf("failed to delete blocks: %w", err)
		}
		for _, target := range inRecordedOrder(blocks.Removed, removed) {
			pending = append(pending, events.AccountUnblocked{AccountID: target, BlockerID: id})
		}
	}
	if len(blocks.Added) > 0 {
		added, err := queryColumn[int64](ctx, tx, `
			INSERT INTO blocks (blocker_id, blocked_id)
			SELECT $1, unnest($2::bigint[])
			ON CONFLICT DO NOTHING
			RETURNING blocked_id`,
			id, pq.Array(blocks.Added))
		if err != nil {
			return nil, fmt.Errorf("failed to insert blocks: %w", err)
		}
		added = inRecordedOrder(blocks.Added, added)
		for _, target := range added {
			pending = append(pending, events.AccountBlocked{AccountID: target, BlockerID: id})
		}
		if len(added) > 0 {
			unfollows, err := r.dropFollowsBetween(ctx, tx, id, added)
			if err != nil {
				return nil, err
			}
			pending = append(pending, unfollows...)
		}
	}

	domains := account.DomainBlockChanges()
	if len(domains.Removed) > 0 {
		removed, err := queryColumn[string](ctx, tx,
			`DELETE FROM domain_blocks WHERE blocker_id = $1 AND domain = ANY($2) RETURNING domain`,
			id, pq.Array(domains.Removed))
		if err != nil {
			return nil, fmt.Errorf("failed to delete domain blocks: %w", err)
		}
		for _, d := range inRecordedOrder(domains.Removed, removed) {
			pending = append(pending, events.DomainUnblocked{Domain: d, BlockerID: id})
		}
	}
	if len(domains.Added) > 0 {
		added, err := queryColumn[string](ctx, tx, `
			INSERT INTO domain_blocks (blocker_id, domain)
			SELECT $1, unnest($2::text[])
			ON CONFLICT DO NOTHING
			RETURNING domain`,
			id, pq.Array(domains.Added))
		if err != nil {
			return nil, fmt.Errorf("failed to insert domain blocks: %w", err)
		}
		for _, d := range inRecordedOrder(domains.Added, added) {
			pending = append(pending, events.DomainBlocked{Domain: d, BlockerID: id})
		}
	}

	return pending, nil
}

// dropFollowsBetween removes follows in both directions between the blocker
// and each newly blocked account.
func (r *postgresAccountRepo) dropFollowsBetween(ctx context.Context, tx *sql.Tx, blockerID int64, blocked []int64) ([]events.Event, error) {
	rows, err := tx.QueryContext(ctx, `
		DELETE FROM follows
		WHERE (follower_id = $1 AND following_id = ANY($2))
		   OR (following_id = $1 AND follower_id = ANY($2))
		RETURNING follower_id, following_id`,
		blockerID, pq.Array(blocked))
	if err != nil {
		return nil, fmt.Errorf("failed to drop follows for blocks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pending []events.Event
	for rows.Next() {
		var follower, following int64
		if err := rows.Scan(&follower, &following); err != nil {
			return nil, fmt.Errorf("failed to scan dropped follow: %w", err)
		}
		pending = append(pending, events.AccountUnfollowed{AccountID: following, FollowerID: follower})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dropped follows: %w", err)
	}
	return pending, nil
}

// GetByID retrieves an account by its database id.
func (r *postgresAccountRepo) GetByID(ctx context.Context, id int64) (*accounts.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`, id)
	return r.load(ctx, row)
}

// GetByApID retrieves an account by its federation identifier.
func (r *postgresAccountRepo) GetByApID(ctx context.Context, apID string) (*accounts.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE a.ap_id = $1`, apID)
	return r.load(ctx, row)
}

func (r *postgresAccountRepo) load(ctx context.Context, row *sql.Row) (*accounts.Account, error) {
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accounts.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if account.UUID() == uuid.Nil {
		if err := r.backfillUUID(ctx, account); err != nil {
			return nil, err
		}
	}
	return account, nil
}

// backfillUUID gives rows created before accounts carried a UUID a stable
// one. A concurrent reader may win; its value is adopted.
func (r *postgresAccountRepo) backfillUUID(ctx context.Context, account *accounts.Account) error {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`UPDATE accounts SET uuid = $2 WHERE id = $1 AND uuid IS NULL RETURNING uuid`,
		account.ID(), uuid.New()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		err = r.db.QueryRowContext(ctx, `SELECT uuid FROM accounts WHERE id = $1`, account.ID()).Scan(&id)
	}
	if err != nil {
		return fmt.Errorf("failed to backfill uuid for account %d: %w", account.ID(), err)
	}
	account.AssignUUID(id)
	return nil
}

// GetBySite resolves the internal account published for a site host.
func (r *postgresAccountRepo) GetBySite(ctx context.Context, host string) (result.Result[*accounts.Account, accounts.SiteLookupError], error) {
	var siteID int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM sites WHERE host = $1`, strings.ToLower(host)).Scan(&siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return result.Error[*accounts.Account](accounts.SiteNotFound), nil
	}
	if err != nil {
		return result.Result[*accounts.Account, accounts.SiteLookupError]{}, fmt.Errorf("failed to get site %s: %w", host, err)
	}

	ids, err := queryColumn[int64](ctx, r.db,
		`SELECT account_id FROM users WHERE site_id = $1 ORDER BY account_id LIMIT 2`, siteID)
	if err != nil {
		return result.Result[*accounts.Account, accounts.SiteLookupError]{}, fmt.Errorf("failed to get accounts for site %s: %w", host, err)
	}
	switch len(ids) {
	case 0:
		return result.Error[*accounts.Account](accounts.SiteAccountNotFound), nil
	case 1:
	default:
		r.logger.Error("site has more than one account", "host", host, "site_id", siteID)
		return result.Error[*accounts.Account](accounts.MultipleAccountsForSite), nil
	}

	account, err := r.GetByID(ctx, ids[0])
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return result.Error[*accounts.Account](accounts.SiteAccountNotFound), nil
	}
	if err != nil {
		return result.Result[*accounts.Account, accounts.SiteLookupError]{}, err
	}
	return result.Ok[*accounts.Account, accounts.SiteLookupError](account), nil
}

// IsBlocking reports whether blocker has blocked target or target's domain.
func (r *postgresAccountRepo) IsBlocking(ctx context.Context, blockerID, targetID int64) (bool, error) {
	var blocking bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocks WHERE blocker_id = $1 AND blocked_id = $2
		) OR EXISTS (
			SELECT 1 FROM domain_blocks d
			JOIN accounts a ON a.domain = d.domain
			WHERE d.blocker_id = $1 AND a.id = $2
		)`, blockerID, targetID).Scan(&blocking)
	if err != nil {
		return false, fmt.Errorf("failed to check block %d -> %d: %w", blockerID, targetID, err)
	}
	return blocking, nil
}

// CreateSite registers host and links it to an internal account. Repeating
// the call for the same pair is a no-op.
func (r *postgresAccountRepo) CreateSite(ctx context.Context, host string, account *accounts.Account) error {
	if !account.HasID() {
		return accounts.ErrNotPersisted
	}
	if !account.IsInternal() {
		return &accounts.InvalidAccountError{Field: "account", Reason: "sites can only be linked to internal accounts"}
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return &accounts.InvalidAccountError{Field: "host", Reason: "must not be empty"}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction for site %s: %w", host, err)
	}
	defer rollback(tx, r.logger, "host", host)

	siteID, _, err := insertOrGet(ctx, tx,
		`INSERT INTO sites (host) VALUES ($1) ON CONFLICT (host) DO NOTHING RETURNING id`, []any{host},
		`SELECT id FROM sites WHERE host = $1`, host)
	if err != nil {
		return fmt.Errorf("failed to create site %s: %w", host, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (account_id, site_id) VALUES ($1, $2) ON CONFLICT (account_id) DO NOTHING`,
		account.ID(), siteID); err != nil {
		return fmt.Errorf("failed to link account %d to site %s: %w", account.ID(), host, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit site %s: %w", host, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*accounts.Account, error) {
	var (
		data      accounts.Data
		id        uuid.NullUUID
		fields    []byte
		pub, priv sql.NullString
	)
	err := row.Scan(
		&data.ID, &id, &data.Username, &data.Name, &data.Bio, &data.AvatarURL, &data.BannerImageURL, &data.URL,
		&fields, &data.ApID, &data.Endpoints.Inbox, &data.Endpoints.SharedInbox, &data.Endpoints.Outbox,
		&data.Endpoints.Following, &data.Endpoints.Followers, &data.Endpoints.Liked, &pub, &priv,
		&data.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if id.Valid {
		data.UUID = id.UUID
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &data.CustomFields); err != nil {
			return nil, fmt.Errorf("failed to decode custom fields of account %d: %w", data.ID, err)
		}
	}
	if pub.Valid || priv.Valid {
		data.Keys = &accounts.KeyPair{PublicKey: pub.String, PrivateKey: priv.String}
	}
	data.IsInternal = priv.Valid && priv.String != ""

	return accounts.Rehydrate(data)
}

func keyColumns(keys *accounts.KeyPair) (sql.NullString, sql.NullString) {
	if keys == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: keys.PublicKey, Valid: keys.PublicKey != ""},
		sql.NullString{String: keys.PrivateKey, Valid: keys.PrivateKey != ""}
}

func nonNilFields(fields []accounts.CustomField) []accounts.CustomField {
	if fields == nil {
		return []accounts.CustomField{}
	}
	return fields
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryColumn collects a single-column result set.
func queryColumn[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []T
	for rows.Next() {
		var v T
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// inRecordedOrder keeps the recorded keys the database reported as affected,
// preserving the order they were recorded in.
func inRecordedOrder[K comparable](recorded, affected []K) []K {
	out := make([]K, 0, len(affected))
	for _, k := range recorded {
		if slices.Contains(affected, k) {
			out = append(out, k)
		}
	}
	return out
}
