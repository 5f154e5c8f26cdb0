package index

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/mdref/internal/models"
)

// Stats summarizes the exported graph.
type Stats struct {
	Documents int `json:"documents"`
	Links     int `json:"links"`
	Resolved  int `json:"resolved"`
}

// ReplaceDocument inserts or replaces a document row and all of its
// outgoing links within a transaction.
func (db *DB) ReplaceDocument(doc models.DocumentMeta, links []models.Link) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, checksum, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, doc.Path, doc.Checksum, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, doc.Path); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO links (source, line, col, link_text, target) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.Exec(doc.Path, l.Line, l.Column, l.LinkText, l.Target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document and its outgoing links.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, path); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every exported document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns every exported link whose resolved target is target,
// ordered by source document and position.
func (db *DB) Backlinks(target string) ([]models.Link, error) {
	rows, err := db.conn.Query(`
		SELECT source, line, col, link_text, target
		FROM links WHERE target = ?
		ORDER BY source, line, col
	`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	out := []models.Link{}
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.Source, &l.Line, &l.Column, &l.LinkText, &l.Target); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Links returns every exported link ordered by source document and
// position.
func (db *DB) Links() ([]models.Link, error) {
	rows, err := db.conn.Query(`
		SELECT source, line, col, link_text, target
		FROM links
		ORDER BY source, line, col
	`)
	if err != nil {
		return nil, fmt.Errorf("index: links: %w", err)
	}
	defer rows.Close()

	out := []models.Link{}
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.Source, &l.Line, &l.Column, &l.LinkText, &l.Target); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateTargets stores a new resolved target for each link, matched by
// source and position, within a single transaction.
func (db *DB) UpdateTargets(links []models.Link) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`UPDATE links SET target = ? WHERE source = ? AND line = ? AND col = ?`)
	if err != nil {
		return fmt.Errorf("index: prepare target update: %w", err)
	}
	defer stmt.Close()
	for _, l := range links {
		if _, err := stmt.Exec(l.Target, l.Source, l.Line, l.Column); err != nil {
			return fmt.Errorf("index: update target: %w", err)
		}
	}
	return tx.Commit()
}

// Stats counts documents, links, and links with a resolved target.
func (db *DB) Stats() (Stats, error) {
	var s Stats
	err := db.conn.QueryRow(`
		SELECT
			(SELECT count(*) FROM documents),
			(SELECT count(*) FROM links),
			(SELECT count(*) FROM links WHERE target != '')
	`).Scan(&s.Documents, &s.Links, &s.Resolved)
	if err != nil {
		return Stats{}, fmt.Errorf("index: stats: %w", err)
	}
	return s, nil
}
