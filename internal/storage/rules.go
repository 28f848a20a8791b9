package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/model"
)

// identityKeyFor is the identity key of a rule matching only the merchant
// signature field; used when seeding.
func identityKeyFor(pattern string) string {
	return model.NormalizePattern(pattern) + "|" + model.FieldMerchantSignature
}

// LoadGlobalRules returns every global rule row.
func (s *SQLiteStorage) LoadGlobalRules(ctx context.Context) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE scope = 'global' ORDER BY id`)
}

// LoadUserRules returns every rule row owned by userID.
func (s *SQLiteStorage) LoadUserRules(ctx context.Context, userID string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE scope = 'user' AND owner_user_id = ? ORDER BY id`, userID)
}

// InsertRule validates and appends a new rule row. Rules are never updated in
// place; superseding happens by inserting a higher version under the same
// identity key. Inserting a (owner, identity key, version) that already
// exists fails with a version conflict.
func (s *SQLiteStorage) InsertRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	if rule.Match.Type == model.MatchRegex {
		if _, err := regexp.Compile(rule.Match.Pattern); err != nil {
			return fmt.Errorf("invalid regex pattern %q: %w", rule.Match.Pattern, err)
		}
	}
	if err := s.validateCategoryActive(ctx, rule.Action.Category); err != nil {
		return err
	}

	fields, err := json.Marshal(rule.Match.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}
	var flags []byte
	if len(rule.Match.Flags) > 0 {
		if flags, err = json.Marshal(rule.Match.Flags); err != nil {
			return fmt.Errorf("failed to encode flags: %w", err)
		}
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rules
			(scope, owner_user_id, provenance, match_type, pattern, fields, flags, label, category,
			 priority, version, confidence, active, identity_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Scope,
		rule.OwnerUserID,
		rule.Provenance,
		rule.Match.Type,
		rule.Match.Pattern,
		string(fields),
		nullableString(string(flags)),
		nullableString(rule.Action.Label),
		rule.Action.Category,
		rule.Priority,
		rule.Version,
		rule.Confidence,
		rule.Active,
		rule.IdentityKey(),
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rule %s version %d: %w", rule.IdentityKey(), rule.Version, common.ErrVersionConflict)
		}
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule id: %w", err)
	}
	rule.ID = id
	return nil
}

// validateCategoryActive rejects rules whose category is not an active
// taxonomy entry.
func (s *SQLiteStorage) validateCategoryActive(ctx context.Context, category string) error {
	var active bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_active FROM categories WHERE name = ?`, category).Scan(&active)
	if err == sql.ErrNoRows {
		return fmt.Errorf("category %q: %w", category, common.ErrUnknownCategory)
	}
	if err != nil {
		return fmt.Errorf("failed to check category: %w", err)
	}
	if !active {
		return fmt.Errorf("category %q is inactive: %w", category, common.ErrUnknownCategory)
	}
	return nil
}

const ruleColumns = `id, scope, owner_user_id, provenance, match_type, pattern, fields, flags, label, category,
	priority, version, confidence, active, created_at, updated_at`

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		var (
			rule   model.Rule
			fields string
			flags  sql.NullString
			label  sql.NullString
		)
		if err := rows.Scan(
			&rule.ID,
			&rule.Scope,
			&rule.OwnerUserID,
			&rule.Provenance,
			&rule.Match.Type,
			&rule.Match.Pattern,
			&fields,
			&flags,
			&label,
			&rule.Action.Category,
			&rule.Priority,
			&rule.Version,
			&rule.Confidence,
			&rule.Active,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		if err := json.Unmarshal([]byte(fields), &rule.Match.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields for rule %d: %w", rule.ID, err)
		}
		if flags.Valid && flags.String != "" {
			if err := json.Unmarshal([]byte(flags.String), &rule.Match.Flags); err != nil {
				return nil, fmt.Errorf("failed to decode flags for rule %d: %w", rule.ID, err)
			}
		}
		rule.Action.Label = label.String
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
