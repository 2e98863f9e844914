package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/mockinterview/internal/model"
)

// ImportStatus reports what ImportFile did with a file.
type ImportStatus string

const (
	ImportLoaded    ImportStatus = "loaded"
	ImportUnchanged ImportStatus = "unchanged"
	// ImportChanged means the file differs from the recorded import and was skipped.
	ImportChanged ImportStatus = "changed"
)

// GetImportedFileHash returns the recorded hash for path, or "" if never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT sha256 FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the hash of an imported file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	return setImportedFileHash(s.db, path, hash)
}

func setImportedFileHash(ex execer, path, hash string) error {
	_, err := ex.Exec(
		`INSERT INTO imported_files (path, sha256) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET sha256 = ?`,
		path, hash, hash,
	)
	return err
}

// ImportFile loads a JSON or YAML question bank file. Files already imported
// are skipped; a file that changed since its import is skipped with a warning.
func (s *Store) ImportFile(path string) (ImportStatus, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", path, err)
	}
	return s.ImportData(path, data)
}

// ImportData imports question bank content identified by name, with the
// same bookkeeping as ImportFile. The name's extension selects the format.
func (s *Store) ImportData(path string, data []byte) (ImportStatus, int, error) {
	hash := sha256sum(data)
	stored, err := s.GetImportedFileHash(path)
	if err != nil {
		return "", 0, fmt.Errorf("check import status for %s: %w", path, err)
	}
	if stored == hash {
		slog.Info("questions file unchanged, skipping", "path", path)
		return ImportUnchanged, 0, nil
	}
	if stored != "" {
		slog.Warn("questions file changed since last import, skipping", "path", path)
		return ImportChanged, 0, nil
	}

	entries, err := ParseQuestions(path, data)
	if err != nil {
		return "", 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := insertQuestion(tx, model.BankQuestion{
			Role: e.Role,
			Question: model.Question{
				Text:             e.Question,
				Category:         e.Category,
				Difficulty:       e.Difficulty,
				ExpectedKeywords: e.ExpectedKeywords,
			},
		})
		if err != nil {
			return "", 0, fmt.Errorf("insert question from %s: %w", path, err)
		}
	}
	if err := setImportedFileHash(tx, path, hash); err != nil {
		return "", 0, fmt.Errorf("record import for %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return "", 0, err
	}

	slog.Info("imported questions", "path", path, "count", len(entries))
	return ImportLoaded, len(entries), nil
}

// ParseQuestions decodes and validates question bank entries. The format is
// chosen by extension: .yaml/.yml is YAML, anything else JSON.
func ParseQuestions(path string, data []byte) ([]model.QuestionImport, error) {
	var entries []model.QuestionImport
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	for i := range entries {
		e := &entries[i]
		e.Role = strings.TrimSpace(e.Role)
		e.Question = strings.TrimSpace(e.Question)
		e.Category = strings.TrimSpace(e.Category)
		if e.Role == "" || e.Question == "" {
			return nil, fmt.Errorf("%s: entry %d needs role and question", path, i+1)
		}
		d, err := model.ParseDifficulty(string(e.Difficulty))
		if err != nil || !d.IsQuestionTag() {
			return nil, fmt.Errorf("%s: entry %d: difficulty must be Easy, Medium or Hard, got %q", path, i+1, e.Difficulty)
		}
		e.Difficulty = d
		if e.Category == "" {
			e.Category = model.DefaultCategory
		}
		if e.ExpectedKeywords == nil {
			e.ExpectedKeywords = []string{}
		}
	}
	return entries, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
