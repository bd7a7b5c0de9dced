package updater

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

const blankName = "#blank name#"

// TransformStats counts records as a Transform sequence is consumed.
type TransformStats struct {
	Total    int
	Accepted int
	Skipped  int
}

// itemHeader holds the fields read for logging. Everything else stays opaque.
type itemHeader struct {
	Hash              json.Number `json:"hash"`
	DisplayProperties *struct {
		Name string `json:"name"`
	} `json:"displayProperties"`
}

// Transform yields a document for every record whose value is a JSON object,
// in payload order. Other values are skipped with a warning. stats, if non-nil,
// is updated as the sequence is consumed. The sequence is single-use.
func Transform(log *slog.Logger, records domain.RawCollection, stats *TransformStats) iter.Seq[domain.ItemDocument] {
	if stats == nil {
		stats = &TransformStats{}
	}

	return func(yield func(domain.ItemDocument) bool) {
		n := len(records)
		for i, rec := range records {
			stats.Total++
			progress := fmt.Sprintf("(%d/%d)", i+1, n)

			if kind := jsonKind(rec.Body); kind != "object" {
				stats.Skipped++
				log.Warn("skip item definition",
					slog.String("progress", progress),
					slog.String("key", rec.Key),
					slog.String("kind", kind),
				)
				continue
			}

			doc := domain.ItemDocument{Key: rec.Key, Body: rec.Body}

			var h itemHeader
			if err := json.Unmarshal(rec.Body, &h); err == nil {
				doc.Hash, _ = h.Hash.Int64()
				if h.DisplayProperties != nil {
					doc.Name = strings.TrimSpace(h.DisplayProperties.Name)
				}
			}

			name := doc.Name
			if name == "" {
				name = blankName
			}
			log.Debug("add item definition",
				slog.String("progress", progress),
				slog.String("name", name),
				slog.Int64("hash", doc.Hash),
			)

			stats.Accepted++
			if !yield(doc) {
				return
			}
		}
	}
}

// jsonKind names the JSON type of a raw value by its first byte.
func jsonKind(raw json.RawMessage) string {
	b := bytes.TrimLeft(raw, " \t\r\n")
	if len(b) == 0 {
		return "empty"
	}
	switch b[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
