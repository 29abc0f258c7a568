package patterns

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeswarm/pkg/config"
)

// maxKeywords bounds how many task keywords feed the retrieval query.
const maxKeywords = 10

// StoreIfQualified persists a pattern when its average score clears the
// quality gate. Below-threshold averages are refused and return an empty
// pattern id without error, so callers can treat the gate as a skip.
// Task and code text are truncated to the storage caps.
func (s *Store) StoreIfQualified(pattern *CodePattern) (string, error) {
	if pattern.AvgScore < s.threshold {
		s.logger.Warn("pattern score %.1f below threshold %.1f, skipping storage", pattern.AvgScore, s.threshold)
		return "", nil
	}

	createdAt := pattern.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	id := pattern.ID
	if id == "" {
		id = newPatternID(s.db, createdAt)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO patterns (id, task, code, avg_score, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, truncate(pattern.Task, config.PatternTaskMaxChars),
		truncate(pattern.Code, config.PatternCodeMaxChars),
		pattern.AvgScore, pattern.UserID, createdAt.Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("failed to insert pattern %s: %w", id, err)
	}

	for i := range pattern.Outputs {
		out := &pattern.Outputs[i]
		_, err = tx.Exec(`
			INSERT INTO generated_by (pattern_id, agent, model, score, iterations)
			VALUES (?, ?, ?, ?, ?)
		`, id, out.Agent, out.Model, out.Score, out.Iterations)
		if err != nil {
			return "", fmt.Errorf("failed to link agent output %s: %w", out.Agent, err)
		}
	}

	for _, parentID := range pattern.BuildsOn {
		if parentID == id {
			continue
		}
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO builds_on (pattern_id, parent_id)
			VALUES (?, ?)
		`, id, parentID)
		if err != nil {
			return "", fmt.Errorf("failed to link parent pattern %s: %w", parentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit pattern %s: %w", id, err)
	}

	s.logger.Info("📦 Stored pattern %s (score: %.1f, builds on %d)", id, pattern.AvgScore, len(pattern.BuildsOn))
	return id, nil
}

// newPatternID derives a timestamp id, suffixed on the rare collision
// of two patterns stored within the same second.
func newPatternID(db *sql.DB, t time.Time) string {
	base := "pattern_" + t.UTC().Format("20060102_150405")
	id := base
	for n := 2; ; n++ {
		var exists int
		err := db.QueryRow("SELECT 1 FROM patterns WHERE id = ?", id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return id
		}
		if err != nil {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// Retrieve returns prior patterns whose task text matches keywords from
// the given task, at or above minScore, best and newest first. Zero
// limit and minScore fall back to the configured defaults.
func (s *Store) Retrieve(task string, limit int, minScore float64) ([]*CodePattern, error) {
	if limit <= 0 {
		limit = config.DefaultRetrievalLimit
	}
	if minScore <= 0 {
		minScore = config.DefaultPatternMinScore
	}

	keywords := extractKeywords(task)
	if len(keywords) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT p.id, p.task, p.code, p.avg_score, p.user_id, p.created_at
		FROM patterns p
		WHERE p.avg_score >= ?
		AND p.rowid IN (SELECT rowid FROM patterns_fts WHERE patterns_fts MATCH ?)
		ORDER BY p.avg_score DESC, p.created_at DESC
		LIMIT ?
	`, minScore, ftsQuery(keywords), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*CodePattern
	for rows.Next() {
		p := &CodePattern{}
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Task, &p.Code, &p.AvgScore, &p.UserID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pattern row iteration failed: %w", err)
	}

	for _, p := range results {
		if err := s.loadOutputs(p); err != nil {
			return nil, err
		}
		if err := s.loadParents(p); err != nil {
			return nil, err
		}
	}

	s.logger.Info("🔍 Retrieved %d similar patterns", len(results))
	return results, nil
}

func (s *Store) loadOutputs(p *CodePattern) error {
	rows, err := s.db.Query(`
		SELECT agent, model, score, iterations
		FROM generated_by WHERE pattern_id = ? ORDER BY agent
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to query agent outputs for %s: %w", p.ID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var out AgentOutput
		if err := rows.Scan(&out.Agent, &out.Model, &out.Score, &out.Iterations); err != nil {
			return fmt.Errorf("failed to scan agent output: %w", err)
		}
		p.Outputs = append(p.Outputs, out)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("agent output iteration failed: %w", err)
	}
	return nil
}

func (s *Store) loadParents(p *CodePattern) error {
	rows, err := s.db.Query(`
		SELECT parent_id FROM builds_on WHERE pattern_id = ? ORDER BY parent_id
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to query parents for %s: %w", p.ID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var parentID string
		if err := rows.Scan(&parentID); err != nil {
			return fmt.Errorf("failed to scan parent id: %w", err)
		}
		p.BuildsOn = append(p.BuildsOn, parentID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("parent iteration failed: %w", err)
	}
	return nil
}

// Get returns one pattern by id, or nil when absent.
func (s *Store) Get(id string) (*CodePattern, error) {
	p := &CodePattern{}
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, task, code, avg_score, user_id, created_at
		FROM patterns WHERE id = ?
	`, id).Scan(&p.ID, &p.Task, &p.Code, &p.AvgScore, &p.UserID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern %s: %w", id, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if err := s.loadOutputs(p); err != nil {
		return nil, err
	}
	if err := s.loadParents(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Count returns the total number of stored patterns.
func (s *Store) Count() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM patterns").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count patterns: %w", err)
	}
	return count, nil
}

// Lineage walks builds_on edges from the given pattern back to its
// roots, oldest ancestors last. Each pattern appears once.
func (s *Store) Lineage(id string) ([]string, error) {
	var lineage []string
	seen := map[string]bool{id: true}
	frontier := []string{id}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		rows, err := s.db.Query("SELECT parent_id FROM builds_on WHERE pattern_id = ? ORDER BY parent_id", current)
		if err != nil {
			return nil, fmt.Errorf("failed to query lineage for %s: %w", current, err)
		}
		var parents []string
		for rows.Next() {
			var parentID string
			if err := rows.Scan(&parentID); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan lineage: %w", err)
			}
			parents = append(parents, parentID)
		}
		iterErr := rows.Err()
		_ = rows.Close()
		if iterErr != nil {
			return nil, fmt.Errorf("lineage iteration failed: %w", iterErr)
		}

		for _, parentID := range parents {
			if !seen[parentID] {
				seen[parentID] = true
				lineage = append(lineage, parentID)
				frontier = append(frontier, parentID)
			}
		}
	}
	return lineage, nil
}

// extractKeywords pulls significant words from task text for retrieval.
func extractKeywords(text string) []string {
	stopWords := map[string]bool{
		"a": true, "an": true, "the": true, "in": true, "on": true,
		"at": true, "for": true, "to": true, "of": true, "and": true,
		"or": true, "with": true, "that": true, "this": true,
	}

	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if len(word) <= 3 || stopWords[word] {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// ftsQuery builds an OR query over quoted keywords for the FTS index.
func ftsQuery(keywords []string) string {
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ReplaceAll(kw, `"`, "")
		if kw == "" {
			continue
		}
		quoted = append(quoted, `"`+kw+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// truncate caps s at max characters.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
