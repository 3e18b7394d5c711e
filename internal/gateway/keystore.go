package gateway

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"comms-platform/pkg/logger"
)

var ErrInvalidKey = errors.New("gateway: invalid access key")

// tenantColumns are the column conventions deployments use for the tenant
// id on tool_access_keys, tried in order.
var tenantColumns = []string{"company_id", "organization_id"}

// KeyStore authenticates bearer tokens against provisioned access keys.
// Tokens are never stored; lookup is by SHA-256 hex of the presented token.
type KeyStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewKeyStore(db *sql.DB) *KeyStore {
	return &KeyStore{db: db, clock: time.Now}
}

// HashToken returns the stored form of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Authenticate resolves a bearer token to its access key. Only active,
// unexpired keys authenticate; everything else is ErrInvalidKey, with no
// distinction leaked to the caller.
func (s *KeyStore) Authenticate(ctx context.Context, token string) (AccessKey, error) {
	if token == "" {
		return AccessKey{}, ErrInvalidKey
	}
	hash := HashToken(token)

	for _, col := range tenantColumns {
		key, err := s.lookup(ctx, col, hash)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || schemaVariantMissing(err) {
				continue
			}
			return AccessKey{}, err
		}

		if !key.Active {
			return AccessKey{}, ErrInvalidKey
		}
		if key.ExpiresAt != nil && !key.ExpiresAt.After(s.clock()) {
			return AccessKey{}, ErrInvalidKey
		}

		s.touchLastUsed(ctx, key.ID)
		return key, nil
	}
	return AccessKey{}, ErrInvalidKey
}

func (s *KeyStore) lookup(ctx context.Context, tenantColumn, hash string) (AccessKey, error) {
	q := fmt.Sprintf(`
SELECT id, %s, COALESCE(user_type, ''), COALESCE(user_id, ''),
       COALESCE(contact_id, ''), COALESCE(project_id, ''),
       COALESCE(enabled_tools, '[]'), active, expires_at
FROM tool_access_keys
WHERE token_hash = $1
`, tenantColumn)

	key := AccessKey{TenantColumn: tenantColumn}
	var enabled []byte
	err := s.db.QueryRowContext(ctx, q, hash).Scan(
		&key.ID, &key.TenantID, &key.UserType, &key.UserID,
		&key.ContactID, &key.ProjectID, &enabled, &key.Active, &key.ExpiresAt,
	)
	if err != nil {
		return AccessKey{}, err
	}
	if err := json.Unmarshal(enabled, &key.EnabledTools); err != nil {
		return AccessKey{}, fmt.Errorf("decode enabled_tools for key %s: %w", key.ID, err)
	}
	return key, nil
}

// touchLastUsed records key usage without holding up the request.
func (s *KeyStore) touchLastUsed(ctx context.Context, id string) {
	bg := context.WithoutCancel(ctx)
	go func() {
		const q = `UPDATE tool_access_keys SET last_used_at = $2 WHERE id = $1`
		if _, err := s.db.ExecContext(bg, q, id, s.clock().UTC()); err != nil {
			logger.From(bg).Warn("last_used_at update failed", "key_id", id, "err", err)
		}
	}()
}

// schemaVariantMissing reports the "this deployment uses the other column
// convention" errors: undefined table (42P01) or undefined column (42703).
func schemaVariantMissing(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "42P01" || pgErr.Code == "42703"
}
