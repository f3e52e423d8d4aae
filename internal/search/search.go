// Package search maintains the trigram full-text index over encounter previews.
//
// The index is an FTS5 external-content table, it stores only the tokenized terms and reads the
// column values back from the preview table. Because no triggers are installed, every write to the
// preview table must be paired with the matching call in this package inside the same transaction.
// Removing a document requires the exact values that were indexed, so Delete and DeleteMatching must
// run before the preview row changes or disappears.
package search

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
)

const (
	// Table is the name of the virtual index table.
	Table = "encounter_search"
	// ContentTable is the table documents are read from during rebuilds.
	ContentTable = "encounter_preview"
	// MinQueryLength is the shortest trimmed search text that activates a text match.
	MinQueryLength = 3
)

var (
	ErrCreateIndex = errors.New("failed to create search index")
	ErrSync        = errors.New("failed to synchronize search index")
	ErrMaintenance = errors.New("search index maintenance failed")
	ErrCorrupt     = errors.New("search index is inconsistent with previews")
	ErrQuery       = errors.New("failed to query search index")
)

// Executor is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Document is the indexed projection of a single preview row.
type Document struct {
	ID       int64
	BossName string
	Players  string
}

func (d Document) changed(other Document) bool {
	return d.BossName != other.BossName || d.Players != other.Players
}

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question) //nolint:gochecknoglobals

const createTableSQL = `CREATE VIRTUAL TABLE IF NOT EXISTS ` + Table + ` USING fts5(
	current_boss, players, columnsize=0, detail=full,
	tokenize='trigram remove_diacritics 1',
	content=` + ContentTable + `, content_rowid=id
)`

// Create installs the index table. It does not populate it, call Rebuild afterwards.
func Create(ctx context.Context, exec Executor) error {
	if _, err := exec.ExecContext(ctx, createTableSQL); err != nil {
		return errors.Join(err, ErrCreateIndex)
	}

	return nil
}

// Insert adds doc to the index. The preview row must already exist.
func Insert(ctx context.Context, exec Executor, doc Document) error {
	return execBuilder(ctx, exec, builder.
		Insert(Table).
		Columns("rowid", "current_boss", "players").
		Values(doc.ID, doc.BossName, doc.Players))
}

// Delete removes doc from the index. The values must match what was indexed.
func Delete(ctx context.Context, exec Executor, old Document) error {
	return execBuilder(ctx, exec, builder.
		Insert(Table).
		Columns(Table, "rowid", "current_boss", "players").
		Values("delete", old.ID, old.BossName, old.Players))
}

// Update replaces the indexed terms of a document when the boss name or roster changed.
func Update(ctx context.Context, exec Executor, old Document, updated Document) error {
	if !old.changed(updated) {
		return nil
	}

	if err := Delete(ctx, exec, old); err != nil {
		return err
	}

	return Insert(ctx, exec, updated)
}

// DeleteMatching removes the entries of every preview row matching pred. Column names in pred refer to
// the preview table. This must run before the rows themselves are removed.
func DeleteMatching(ctx context.Context, exec Executor, pred sq.Sqlizer) error {
	selection := builder.
		Select("'delete'", "id", "current_boss", "players").
		From(ContentTable)
	if pred != nil {
		selection = selection.Where(pred)
	}

	return execBuilder(ctx, exec, builder.
		Insert(Table).
		Columns(Table, "rowid", "current_boss", "players").
		Select(selection))
}

// DeleteAll drops every entry in the index.
func DeleteAll(ctx context.Context, exec Executor) error {
	return command(ctx, exec, "delete-all", ErrSync)
}

// Rebuild regenerates the whole index from the preview table.
func Rebuild(ctx context.Context, exec Executor) error {
	return command(ctx, exec, "rebuild", ErrMaintenance)
}

// Optimize merges the index b-trees into a single segment.
func Optimize(ctx context.Context, exec Executor) error {
	return command(ctx, exec, "optimize", ErrMaintenance)
}

// Check verifies the index against the preview table. ErrCorrupt is returned when they disagree.
func Check(ctx context.Context, exec Executor) error {
	if _, err := exec.ExecContext(ctx,
		"INSERT INTO "+Table+"("+Table+", rank) VALUES('integrity-check', 1)"); err != nil {
		return errors.Join(err, ErrCorrupt)
	}

	return nil
}

// Lookup returns the ids of indexed documents matching the text, in ascending order. It reads the
// index itself so it also reports entries whose preview row no longer exists.
func Lookup(ctx context.Context, exec Executor, text string) ([]int64, error) {
	phrase, ok := Phrase(text)
	if !ok {
		return []int64{}, nil
	}

	rows, errQuery := exec.QueryContext(ctx,
		"SELECT rowid FROM "+Table+" WHERE "+Table+" MATCH ? ORDER BY rowid", phrase)
	if errQuery != nil {
		return nil, errors.Join(errQuery, ErrQuery)
	}

	defer rows.Close()

	ids := []int64{}

	for rows.Next() {
		var id int64
		if errScan := rows.Scan(&id); errScan != nil {
			return nil, errors.Join(errScan, ErrQuery)
		}

		ids = append(ids, id)
	}

	if errRows := rows.Err(); errRows != nil {
		return nil, errors.Join(errRows, ErrQuery)
	}

	return ids, nil
}

// Phrase converts free text into an FTS5 query where every whitespace separated word is a quoted
// phrase, so user input can never be parsed as query syntax. Embedded quotes are dropped. The
// second value is false when the trimmed text is shorter than MinQueryLength or contains no words.
func Phrase(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < MinQueryLength {
		return "", false
	}

	words := strings.Fields(trimmed)
	quoted := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ReplaceAll(word, `"`, "")
		if word == "" {
			continue
		}

		quoted = append(quoted, `"`+word+`"`)
	}

	if len(quoted) == 0 {
		return "", false
	}

	return strings.Join(quoted, " "), true
}

func command(ctx context.Context, exec Executor, name string, sentinel error) error {
	if _, err := exec.ExecContext(ctx, "INSERT INTO "+Table+"("+Table+") VALUES(?)", name); err != nil {
		return errors.Join(err, sentinel)
	}

	return nil
}

func execBuilder(ctx context.Context, exec Executor, statement sq.Sqlizer) error {
	query, args, errQuery := statement.ToSql()
	if errQuery != nil {
		return errors.Join(errQuery, ErrSync)
	}

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return errors.Join(err, ErrSync)
	}

	return nil
}
