package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/mockinterview/internal/model"

	_ "modernc.org/sqlite"
)

// Store is the question bank backing the llm evaluation backend.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'General',
		difficulty TEXT NOT NULL,
		expected_keywords TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_questions_role ON questions(role, difficulty);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		sha256 TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx, so single writes and file
// imports share one code path.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// InsertQuestion stores a question for a role.
func (s *Store) InsertQuestion(q model.BankQuestion) (int64, error) {
	return insertQuestion(s.db, q)
}

func insertQuestion(ex execer, q model.BankQuestion) (int64, error) {
	keywords := q.ExpectedKeywords
	if keywords == nil {
		keywords = []string{}
	}
	kw, err := json.Marshal(keywords)
	if err != nil {
		return 0, fmt.Errorf("marshal keywords: %w", err)
	}
	category := q.Category
	if category == "" {
		category = model.DefaultCategory
	}
	res, err := ex.Exec(
		`INSERT INTO questions (role, text, category, difficulty, expected_keywords) VALUES (?, ?, ?, ?, ?)`,
		q.Role, q.Text, category, q.Difficulty, string(kw),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListQuestions returns the questions for a role. An empty difficulty or
// Mixed means no difficulty filter.
func (s *Store) ListQuestions(role string, difficulty model.Difficulty) ([]model.BankQuestion, error) {
	query := `SELECT id, role, text, category, difficulty, expected_keywords FROM questions WHERE role = ?`
	args := []any{role}
	if difficulty != "" && difficulty != model.DifficultyMixed {
		query += ` AND difficulty = ?`
		args = append(args, difficulty)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.BankQuestion
	for rows.Next() {
		var (
			q  model.BankQuestion
			kw string
		)
		if err := rows.Scan(&q.ID, &q.Role, &q.Text, &q.Category, &q.Difficulty, &kw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(kw), &q.ExpectedKeywords); err != nil {
			return nil, fmt.Errorf("question %d keywords: %w", q.ID, err)
		}
		q.Question.ID = fmt.Sprintf("%d", q.ID)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Roles returns the distinct roles that have at least one question.
func (s *Store) Roles() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT role FROM questions ORDER BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// QuestionCount returns the number of questions in the bank.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
