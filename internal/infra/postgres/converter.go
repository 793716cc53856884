package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

// UUIDToPgtype converts uuid.UUID to pgtype.UUID
func UUIDToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// PgtypeToUUID converts pgtype.UUID to uuid.UUID
func PgtypeToUUID(id pgtype.UUID) uuid.UUID {
	return id.Bytes
}

// PgtypeToTime converts pgtype.Timestamptz to time.Time
func PgtypeToTime(t pgtype.Timestamptz) time.Time {
	return t.Time
}

// VectorToPg converts []float32 to a pgvector value
func VectorToPg(v []float32) pgvector.Vector {
	return pgvector.NewVector(v)
}

// MetadataToJSONB converts chunk metadata to a flat JSONB document
func MetadataToJSONB(m document.Metadata) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chunk metadata: %w", err)
	}
	return b, nil
}

// MetadataFromJSONB converts JSONB to chunk metadata. NULL or empty input yields zero metadata
func MetadataFromJSONB(b []byte) (document.Metadata, error) {
	var m document.Metadata
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("failed to decode chunk metadata: %w", err)
	}
	return m, nil
}
