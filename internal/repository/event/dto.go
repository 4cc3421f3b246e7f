package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/engramlabs/engram/internal/db"
	domevent "github.com/engramlabs/engram/internal/domain/event"
	"github.com/engramlabs/engram/internal/domain/scope"
)

// rowFromEvent flattens an event into driver payload fields.
func rowFromEvent(e *domevent.Event) (*db.Row, error) {
	fields := map[string]string{
		db.FieldScope:      e.Scope().String(),
		db.FieldProject:    e.Project(),
		db.FieldThreadID:   e.ThreadID(),
		db.FieldText:       e.Text(),
		db.FieldTS:         strconv.FormatInt(e.Timestamp().UnixNano(), 10),
		db.FieldImportance: strconv.FormatFloat(e.Importance(), 'f', -1, 64),
		db.FieldSummary:    boolField(e.IsSummary()),
		db.FieldArchived:   boolField(e.Archived()),
	}

	if len(e.Metadata()) > 0 {
		data, err := json.Marshal(e.Metadata())
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		fields[db.FieldMetadata] = string(data)
	}
	if len(e.SourceIDs()) > 0 {
		data, err := json.Marshal(e.SourceIDs())
		if err != nil {
			return nil, fmt.Errorf("marshal source ids: %w", err)
		}
		fields[db.FieldSourceIDs] = string(data)
	}

	return &db.Row{ID: e.ID(), Vector: e.Vector(), Fields: fields}, nil
}

// eventFromRow hydrates an event from driver payload fields. Malformed
// optional fields degrade to zero values rather than failing the read.
func eventFromRow(row *db.Row) (domevent.Event, error) {
	sc, err := scope.Parse(row.Fields[db.FieldScope])
	if err != nil {
		return domevent.Event{}, fmt.Errorf("row %s: %w", row.ID, err)
	}

	var metadata map[string]string
	if raw := row.Fields[db.FieldMetadata]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &metadata)
	}
	var sourceIDs []string
	if raw := row.Fields[db.FieldSourceIDs]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &sourceIDs)
	}

	importance, _ := strconv.ParseFloat(row.Fields[db.FieldImportance], 64)
	tsNano, _ := strconv.ParseInt(row.Fields[db.FieldTS], 10, 64)

	return domevent.Reconstruct(
		row.ID, sc,
		row.Fields[db.FieldProject],
		row.Fields[db.FieldThreadID],
		row.Fields[db.FieldText],
		metadata, importance,
		row.Fields[db.FieldSummary] == "1", sourceIDs,
		row.Fields[db.FieldArchived] == "1",
		time.Unix(0, tsNano),
		row.Vector,
	), nil
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
