package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultPageSize = 100

// Document is a stored JSON item with its partition key and etag.
type Document struct {
	ID           string
	PartitionKey string
	Body         json.RawMessage
	ETag         string
}

// Decode unmarshals the document body into out.
func (d Document) Decode(out any) error {
	if err := json.Unmarshal(d.Body, out); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Filter compares a JSON path of the body against a value.
type Filter struct {
	Path  string // e.g. "$.dateMillis"
	Op    string // one of = != < <= > >=
	Value any
}

// Query selects documents of a container. An empty PartitionKey runs a
// cross-partition query.
type Query struct {
	PartitionKey string
	Filters      []Filter
	OrderBy      string // JSON path; documents are ordered by id when empty
	Descending   bool
	PageSize     int
}

// Page is one page of query results. An empty ContinuationToken means the
// query is exhausted.
type Page struct {
	Documents         []Document
	ContinuationToken string
}

var (
	jsonPathPattern = regexp.MustCompile(`^\$(\.[A-Za-z_][A-Za-z0-9_]*)+$`)
	allowedOps      = map[string]bool{"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}
)

// Container is a named collection of partitioned documents, modelled on a
// document database container.
type Container struct {
	db   *sql.DB
	name string
	now  func() time.Time
}

// NewContainer returns the container called name.
func NewContainer(db *DB, name string) *Container {
	return &Container{db: db.db, name: name, now: time.Now}
}

func (c *Container) timestamp() string {
	return c.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// Create inserts body under (id, partitionKey). It fails with
// ErrAlreadyExists when the id is taken in that partition.
func (c *Container) Create(ctx context.Context, partitionKey, id string, body any) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode document %s: %w", id, err)
	}

	ts := c.timestamp()
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (container, partition_key, id, body, etag, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT (container, partition_key, id) DO NOTHING`,
		c.name, partitionKey, id, string(raw), ts, ts)
	if err != nil {
		return "", fmt.Errorf("create document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("create document %s: %w", id, err)
	}
	if n == 0 {
		return "", fmt.Errorf("create document %s: %w", id, ErrAlreadyExists)
	}
	return "1", nil
}

// Read returns the document stored under (id, partitionKey).
func (c *Container) Read(ctx context.Context, id, partitionKey string) (Document, error) {
	var (
		body string
		etag int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT body, etag FROM documents WHERE container = ? AND partition_key = ? AND id = ?`,
		c.name, partitionKey, id).Scan(&body, &etag)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("read document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("read document %s: %w", id, err)
	}
	return Document{ID: id, PartitionKey: partitionKey, Body: json.RawMessage(body), ETag: formatETag(etag)}, nil
}

// Replace overwrites the document body. A non-empty ifMatch must equal the
// stored etag or the write fails with ErrPreconditionFailed. The new etag is
// returned.
func (c *Container) Replace(ctx context.Context, id, partitionKey string, body any, ifMatch string) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode document %s: %w", id, err)
	}

	var expected int64
	if ifMatch != "" {
		expected, err = strconv.ParseInt(ifMatch, 10, 64)
		if err != nil {
			return "", fmt.Errorf("replace document %s: %w", id, ErrPreconditionFailed)
		}
	}

	var etag int64
	err = c.db.QueryRowContext(ctx,
		`UPDATE documents SET body = ?, etag = etag + 1, updated_at = ?
		 WHERE container = ? AND partition_key = ? AND id = ? AND (? = 0 OR etag = ?)
		 RETURNING etag`,
		string(raw), c.timestamp(), c.name, partitionKey, id, expected, expected).Scan(&etag)
	if errors.Is(err, sql.ErrNoRows) {
		if _, readErr := c.Read(ctx, id, partitionKey); readErr != nil {
			return "", fmt.Errorf("replace document %s: %w", id, readErr)
		}
		return "", fmt.Errorf("replace document %s: %w", id, ErrPreconditionFailed)
	}
	if err != nil {
		return "", fmt.Errorf("replace document %s: %w", id, err)
	}
	return formatETag(etag), nil
}

// Delete removes the document; a missing document yields ErrNotFound.
func (c *Container) Delete(ctx context.Context, id, partitionKey string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM documents WHERE container = ? AND partition_key = ? AND id = ?`,
		c.name, partitionKey, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete document %s: %w", id, ErrNotFound)
	}
	return nil
}

// QueryPage returns one page of results starting at continuationToken.
func (c *Container) QueryPage(ctx context.Context, q Query, continuationToken string) (Page, error) {
	offset := 0
	if continuationToken != "" {
		var err error
		offset, err = strconv.Atoi(continuationToken)
		if err != nil || offset < 0 {
			return Page{}, fmt.Errorf("invalid continuation token %q", continuationToken)
		}
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	query, args, err := c.buildQuery(q)
	if err != nil {
		return Page{}, err
	}
	// One extra row tells whether another page exists.
	query += " LIMIT ? OFFSET ?"
	args = append(args, pageSize+1, offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("query %s: %w", c.name, err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var (
			d    Document
			body string
			etag int64
		)
		if err := rows.Scan(&d.ID, &d.PartitionKey, &body, &etag); err != nil {
			return Page{}, fmt.Errorf("scan %s: %w", c.name, err)
		}
		d.Body = json.RawMessage(body)
		d.ETag = formatETag(etag)
		page.Documents = append(page.Documents, d)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate %s: %w", c.name, err)
	}

	if len(page.Documents) > pageSize {
		page.Documents = page.Documents[:pageSize]
		page.ContinuationToken = strconv.Itoa(offset + pageSize)
	}
	return page, nil
}

// QueryAll drains every page of q.
func (c *Container) QueryAll(ctx context.Context, q Query) ([]Document, error) {
	var (
		all   []Document
		token string
	)
	for {
		page, err := c.QueryPage(ctx, q, token)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Documents...)
		if page.ContinuationToken == "" {
			return all, nil
		}
		token = page.ContinuationToken
	}
}

func (c *Container) buildQuery(q Query) (string, []any, error) {
	var sb strings.Builder
	args := []any{c.name}
	sb.WriteString(`SELECT id, partition_key, body, etag FROM documents WHERE container = ?`)

	if q.PartitionKey != "" {
		sb.WriteString(` AND partition_key = ?`)
		args = append(args, q.PartitionKey)
	}
	for _, f := range q.Filters {
		if !jsonPathPattern.MatchString(f.Path) {
			return "", nil, fmt.Errorf("invalid filter path %q", f.Path)
		}
		if !allowedOps[f.Op] {
			return "", nil, fmt.Errorf("invalid filter operator %q", f.Op)
		}
		sb.WriteString(` AND json_extract(body, ?) ` + f.Op + ` ?`)
		args = append(args, f.Path, f.Value)
	}

	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		if !jsonPathPattern.MatchString(q.OrderBy) {
			return "", nil, fmt.Errorf("invalid order path %q", q.OrderBy)
		}
		sb.WriteString(` ORDER BY json_extract(body, ?) ` + dir + `, id ` + dir)
		args = append(args, q.OrderBy)
	} else {
		sb.WriteString(` ORDER BY id ` + dir)
	}
	return sb.String(), args, nil
}

func formatETag(v int64) string {
	return strconv.FormatInt(v, 10)
}
