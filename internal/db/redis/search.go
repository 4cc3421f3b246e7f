package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/engramlabs/engram/internal/db"
)

// distanceAlias names the KNN distance in FT.SEARCH replies.
const distanceAlias = "__dist"

// listPageSize bounds one FT.SEARCH page during List.
const listPageSize = 500

// QueryKNN runs a KNN vector similarity search via FT.SEARCH.
func (s *Store) QueryKNN(
	ctx context.Context, collection string, vector []float32, f db.Filter, k int,
) ([]db.Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if k <= 0 {
		return nil, nil
	}

	filterStr := buildFilter(f)
	knnPart := fmt.Sprintf("[KNN %d @%s $BLOB AS %s]", k, vectorField, distanceAlias)
	queryStr := fmt.Sprintf("(%s)=>%s", filterStr, knnPart)

	args := []string{
		s.indexName(collection), queryStr,
		"SORTBY", distanceAlias,
		"LIMIT", "0", strconv.Itoa(k),
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}

	rows, err := s.parseRows(raw, collection)
	if err != nil {
		return nil, err
	}

	hits := make([]db.Hit, 0, len(rows))
	for _, row := range rows {
		dist, _ := strconv.ParseFloat(row.Fields[distanceAlias], 64)
		delete(row.Fields, distanceAlias)
		// Cosine distance in [0,2]; expose similarity so higher = closer.
		hits = append(hits, db.Hit{Row: row, Score: 1 - dist})
	}
	return hits, nil
}

// List returns all rows matching the filter, paging through FT.SEARCH.
func (s *Store) List(ctx context.Context, collection string, f db.Filter) ([]db.Row, error) {
	queryStr := buildFilter(f)
	idx := s.indexName(collection)

	var out []db.Row
	offset := 0
	for {
		args := []string{
			idx, queryStr,
			"LIMIT", strconv.Itoa(offset), strconv.Itoa(listPageSize),
			"DIALECT", "2",
		}
		cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
		raw, err := s.do(ctx, cmd).ToArray()
		if err != nil {
			return nil, &db.Error{Op: db.OpList, Err: err}
		}

		rows, err := s.parseRows(raw, collection)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)

		total, err := parseTotal(raw)
		if err != nil {
			return nil, err
		}
		offset += listPageSize
		if offset >= total || len(rows) == 0 {
			return out, nil
		}
	}
}

// buildFilter renders a db.Filter as an FT.SEARCH query string.
func buildFilter(f db.Filter) string {
	var parts []string
	if f.Scope != "" {
		parts = append(parts, fmt.Sprintf("@%s:{%s}", db.FieldScope, escapeTag(f.Scope)))
	}
	if f.ThreadID != "" {
		parts = append(parts, fmt.Sprintf("@%s:{%s}", db.FieldThreadID, escapeTag(f.ThreadID)))
	}
	if !f.IncludeArchived {
		parts = append(parts, fmt.Sprintf("@%s:{0}", db.FieldArchived))
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// escapeTag escapes TAG syntax characters in a filter value.
func escapeTag(v string) string {
	var sb strings.Builder
	for _, r := range v {
		switch r {
		case ',', '.', '<', '>', '{', '}', '[', ']', '"', '\'', ':', ';',
			'!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '-', '+',
			'=', '~', '|', ' ', '/', '\\':
			sb.WriteRune('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// parseTotal extracts the total match count from an FT.SEARCH reply.
func parseTotal(raw []rueidis.RedisMessage) (int, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse total: %w", err)
	}
	return int(total), nil
}

// parseRows converts an FT.SEARCH RESP2 reply ([total, key, fields, ...])
// into rows.
func (s *Store) parseRows(raw []rueidis.RedisMessage, collection string) ([]db.Row, error) {
	if len(raw) < 3 {
		return nil, nil
	}

	var rows []db.Row
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			return nil, fmt.Errorf("parse document key: %w", err)
		}
		fieldArr, err := raw[i+1].ToArray()
		if err != nil {
			return nil, fmt.Errorf("parse document fields: %w", err)
		}

		m := make(map[string]string, len(fieldArr)/2)
		for j := 0; j+1 < len(fieldArr); j += 2 {
			f, ferr := fieldArr[j].ToString()
			if ferr != nil {
				continue
			}
			v, verr := fieldArr[j+1].ToString()
			if verr != nil {
				continue
			}
			m[f] = v
		}

		rows = append(rows, *rowFromHash(s.rowID(key, collection), m))
	}
	return rows, nil
}
