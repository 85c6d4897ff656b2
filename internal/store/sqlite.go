package store

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-magnet/internal/model"
)

//go:embed migrations/sqlite.sql
var sqliteMigration string

// SQLiteStore implements LeadStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteCompanyMatch locates the company row identifying the same company
// as a key, following model.CompanyKey.Same. Bind with sqliteMatchArgs.
const sqliteCompanyMatch = `person_id = '' AND (
		company_id = ?
		OR ((? IS NULL OR company_id IS NULL) AND (
			domain_key = ?
			OR ((? IS NULL OR domain_key IS NULL) AND name_key = ?))))
	ORDER BY CASE WHEN company_id = ? THEN 0 WHEN domain_key = ? THEN 1 ELSE 2 END, created_at
	LIMIT 1`

func sqliteMatchArgs(k model.CompanyKey) []any {
	id, domain, name := matchArgs(k)
	return []any{id, id, domain, domain, name, id, domain}
}

// GetCompany returns the stored row of the company identified by key, or nil
// when none exists. Rows are matched by id, then domain, then name.
func (s *SQLiteStore) GetCompany(ctx context.Context, key model.CompanyKey) (*model.Company, error) {
	k, err := companyKey(key)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get company")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM lead_magnet_candidates WHERE `+sqliteCompanyMatch, sqliteMatchArgs(key)...)
	c, err := scanCompany(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", k)
	}
	return c, nil
}

// UpsertCompany writes the company identity and origin and clears the
// qualified flag and keyword check until a new verdict is written. The row
// of the same company is reused even when it was stored under a less
// specific key; the stored wholesale verdict and scraped content are kept.
func (s *SQLiteStore) UpsertCompany(ctx context.Context, c *model.Company) (string, error) {
	k, err := companyKey(c.Key())
	if err != nil {
		return "", eris.Wrap(err, "sqlite: upsert company")
	}

	var rowID, storedKey string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, company_key FROM lead_magnet_candidates WHERE `+sqliteCompanyMatch, sqliteMatchArgs(c.Key())...,
	).Scan(&rowID, &storedKey)
	switch {
	case isNoRows(err):
		return s.insertCompany(ctx, k, c)
	case err != nil:
		return "", eris.Wrapf(err, "sqlite: find company %s", k)
	}

	if err := s.updateCompany(ctx, rowID, storedKey, preferredKey(storedKey, k), c); err != nil {
		return "", err
	}
	return rowID, nil
}

func (s *SQLiteStore) insertCompany(ctx context.Context, k string, c *model.Company) (string, error) {
	now := time.Now().UTC()
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO lead_magnet_candidates (
			id, company_key, person_id, company_id, company_name, company_description,
			company_domain, company_website, company_industry, company_size, company_location,
			company_linkedin_url, domain_key, name_key, is_qualified, search_criteria, run_id,
			slack_user_id, slack_channel_id, slack_trigger_id, raw_prospeo_data, created_at, updated_at
		) VALUES (?, ?, '', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_key) WHERE person_id = '' DO UPDATE SET
			company_id = excluded.company_id,
			company_name = excluded.company_name,
			company_description = excluded.company_description,
			company_domain = excluded.company_domain,
			company_website = excluded.company_website,
			company_industry = excluded.company_industry,
			company_size = excluded.company_size,
			company_location = excluded.company_location,
			company_linkedin_url = excluded.company_linkedin_url,
			domain_key = excluded.domain_key,
			name_key = excluded.name_key,
			keyword_check = NULL,
			is_qualified = 0,
			qualified_at = NULL,
			search_criteria = excluded.search_criteria,
			run_id = excluded.run_id,
			slack_user_id = excluded.slack_user_id,
			slack_channel_id = excluded.slack_channel_id,
			slack_trigger_id = excluded.slack_trigger_id,
			raw_prospeo_data = excluded.raw_prospeo_data,
			updated_at = excluded.updated_at
		RETURNING id`,
		uuid.New().String(), k, nullString(c.ID), c.Name, nullString(c.Description),
		nullString(c.Domain), nullString(c.Website), nullString(c.Industry), nullString(c.Size), nullString(c.Location),
		nullString(c.LinkedInURL), nullString(c.Key().DomainKey()), nullString(c.Key().NameKey()),
		nullString(c.SearchCriteria), nullString(c.Origin.RunID), nullString(c.Origin.SlackUserID),
		nullString(c.Origin.SlackChannelID), nullString(c.Origin.TriggerID), nullRaw(c.Raw), now, now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert company %s", k)
	}
	return id, nil
}

// updateCompany refreshes an existing company row. When the row moves to a
// more specific key its person rows move with it.
func (s *SQLiteStore) updateCompany(ctx context.Context, rowID, oldKey, newKey string, c *model.Company) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin company update")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		UPDATE lead_magnet_candidates SET
			company_key = ?,
			company_id = COALESCE(?, company_id),
			company_name = ?,
			company_description = ?,
			company_domain = COALESCE(?, company_domain),
			company_website = COALESCE(?, company_website),
			company_industry = ?,
			company_size = ?,
			company_location = ?,
			company_linkedin_url = ?,
			domain_key = COALESCE(?, domain_key),
			name_key = COALESCE(?, name_key),
			keyword_check = NULL,
			is_qualified = 0,
			qualified_at = NULL,
			search_criteria = ?,
			run_id = ?,
			slack_user_id = ?,
			slack_channel_id = ?,
			slack_trigger_id = ?,
			raw_prospeo_data = ?,
			updated_at = ?
		WHERE id = ?`,
		newKey, nullString(c.ID), c.Name, nullString(c.Description),
		nullString(c.Domain), nullString(c.Website), nullString(c.Industry), nullString(c.Size),
		nullString(c.Location), nullString(c.LinkedInURL),
		nullString(c.Key().DomainKey()), nullString(c.Key().NameKey()),
		nullString(c.SearchCriteria), nullString(c.Origin.RunID), nullString(c.Origin.SlackUserID),
		nullString(c.Origin.SlackChannelID), nullString(c.Origin.TriggerID), nullRaw(c.Raw), time.Now().UTC(),
		rowID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company %s", newKey)
	}

	if newKey != oldKey {
		if _, err := tx.ExecContext(ctx,
			`UPDATE lead_magnet_candidates SET company_key = ? WHERE company_key = ? AND person_id <> ''`,
			newKey, oldKey,
		); err != nil {
			return eris.Wrapf(err, "sqlite: rekey persons %s", oldKey)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit company update")
}

// storedKey returns the key the company's rows are stored under, or the
// key's own identity string when the company has no row yet.
func (s *SQLiteStore) storedKey(ctx context.Context, key model.CompanyKey) (string, error) {
	k, err := companyKey(key)
	if err != nil {
		return "", err
	}
	var stored string
	err = s.db.QueryRowContext(ctx,
		`SELECT company_key FROM lead_magnet_candidates WHERE `+sqliteCompanyMatch, sqliteMatchArgs(key)...,
	).Scan(&stored)
	if isNoRows(err) {
		return k, nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "find company %s", k)
	}
	return stored, nil
}

// UpdateCompanyVerdict writes classification results to a company row.
func (s *SQLiteStore) UpdateCompanyVerdict(ctx context.Context, id string, v model.CompanyVerdict) error {
	v = v.Normalize()
	categories, err := encodeList(v.ProductCategories)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode categories")
	}
	segments, err := encodeList(v.MarketSegments)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode segments")
	}
	now := time.Now().UTC()
	var qualifiedAt any
	if v.IsQualified() {
		qualifiedAt = now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE lead_magnet_candidates SET
			wholesale_check = ?, wholesale_response = ?, keyword_check = ?, keyword_response = ?,
			product_categories = ?, market_segments = ?, scraped_content = ?, scraped_at = ?,
			is_qualified = ?, qualified_at = ?, openrouter_response = ?, updated_at = ?
		WHERE id = ? AND person_id = ''`,
		nullBool(v.WholesaleCheck), nullString(v.WholesaleResponse), nullBool(v.KeywordCheck), nullString(v.KeywordResponse),
		categories, segments, nullString(v.ScrapedContent), nullTime(v.ScrapedAt),
		v.IsQualified(), qualifiedAt, nullString(classifierResponse(v)), now,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company verdict %s", id)
	}
	return checkRowsAffected(res, "company", id)
}

// ListWholesaleCompanies returns every company whose wholesale check passed.
func (s *SQLiteStore) ListWholesaleCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM lead_magnet_candidates
		WHERE person_id = '' AND wholesale_check = 1
		ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list wholesale companies")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate companies")
}

// SavePerson inserts or refreshes a person row. An email already stored is
// kept when the incoming person has none.
func (s *SQLiteStore) SavePerson(ctx context.Context, p *model.Person) (string, error) {
	if p.ID == "" {
		return "", eris.New("sqlite: save person: person has no id")
	}
	k, err := s.storedKey(ctx, p.CompanyKey())
	if err != nil {
		return "", eris.Wrap(err, "sqlite: save person")
	}
	now := time.Now().UTC()
	var qualifiedAt any
	if p.IsQualified {
		qualifiedAt = now
	}

	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO lead_magnet_candidates (
			id, company_key, person_id, person_name, person_email, person_title, person_linkedin_url,
			email_enriched, company_id, company_name, company_domain, is_qualified, qualified_at,
			openrouter_response, run_id, slack_user_id, slack_channel_id, slack_trigger_id,
			raw_prospeo_data, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_key, person_id) WHERE person_id <> '' DO UPDATE SET
			person_name = excluded.person_name,
			person_email = COALESCE(excluded.person_email, lead_magnet_candidates.person_email),
			person_title = excluded.person_title,
			person_linkedin_url = excluded.person_linkedin_url,
			is_qualified = excluded.is_qualified,
			qualified_at = excluded.qualified_at,
			openrouter_response = excluded.openrouter_response,
			run_id = excluded.run_id,
			slack_user_id = excluded.slack_user_id,
			slack_channel_id = excluded.slack_channel_id,
			slack_trigger_id = excluded.slack_trigger_id,
			raw_prospeo_data = excluded.raw_prospeo_data,
			updated_at = excluded.updated_at
		RETURNING id`,
		uuid.New().String(), k, p.ID, nullString(p.Name), nullString(p.Email), nullString(p.Title), nullString(p.LinkedInURL),
		p.EmailEnriched, nullString(p.CompanyID), p.CompanyName, nullString(p.CompanyDomain), p.IsQualified, qualifiedAt,
		nullString(p.QualificationResponse), nullString(p.Origin.RunID), nullString(p.Origin.SlackUserID),
		nullString(p.Origin.SlackChannelID), nullString(p.Origin.TriggerID), nullRaw(p.Raw), now, now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: save person %s", p.ID)
	}
	return id, nil
}

// UpdatePerson records the enrichment outcome for a person row.
func (s *SQLiteStore) UpdatePerson(ctx context.Context, id string, u model.PersonUpdate) error {
	now := time.Now().UTC()
	var qualifiedAt any
	if u.IsQualified {
		qualifiedAt = now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE lead_magnet_candidates SET
			person_email = ?, email_enriched = ?, is_qualified = ?, qualified_at = ?, updated_at = ?
		WHERE id = ? AND person_id <> ''`,
		nullString(u.Email), u.Email != "", u.IsQualified, qualifiedAt, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update person %s", id)
	}
	return checkRowsAffected(res, "person", id)
}

// ListQualifiedPersons returns the qualified persons with an email stored
// for a company.
func (s *SQLiteStore) ListQualifiedPersons(ctx context.Context, key model.CompanyKey) ([]model.Person, error) {
	k, err := s.storedKey(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list qualified persons")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+personColumns+` FROM lead_magnet_candidates
		WHERE company_key = ? AND person_id <> '' AND is_qualified = 1 AND COALESCE(person_email, '') <> ''
		ORDER BY created_at`, k)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list qualified persons %s", k)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan person")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate persons")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s not found: %s", entity, id)
	}
	return nil
}
