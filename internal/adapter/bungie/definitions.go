package bungie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

// DefinitionsFileName is the sink name of a locale's raw definition payload.
func DefinitionsFileName(l domain.Locale) string {
	return "itemDefinition_" + l.Suffix + ".json"
}

// FetchDefinitions downloads the definition payload at url and returns its
// entries in payload order.
func (c *Client) FetchDefinitions(ctx context.Context, url string, locale domain.Locale) (domain.RawCollection, error) {
	log := c.log.With("locale", locale.Suffix)
	log.InfoContext(ctx, "fetching definitions", slog.String("url", url))

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	c.save(ctx, DefinitionsFileName(locale), body)

	records, err := ParseCollection(body)
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "definitions fetched",
		slog.Int("bytes", len(body)),
		slog.Int("entries", len(records)),
	)
	return records, nil
}

// ParseCollection decodes a single JSON object into keyed records, keeping the
// order of the payload. A repeated key keeps its first position and last value.
func ParseCollection(body []byte) (domain.RawCollection, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	tok, err := dec.Token()
	if err != nil {
		return nil, parseErr(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("bungie: decode definitions: %w: top level is not an object", domain.ErrParse)
	}

	var (
		records domain.RawCollection
		index   = make(map[string]int)
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, parseErr(err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, parseErr(err)
		}

		if i, dup := index[key]; dup {
			records[i].Body = raw
			continue
		}
		index[key] = len(records)
		records = append(records, domain.RawRecord{Key: key, Body: raw})
	}

	if _, err := dec.Token(); err != nil {
		return nil, parseErr(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("bungie: decode definitions: %w: trailing data after object", domain.ErrParse)
	}

	return records, nil
}

func parseErr(err error) error {
	return fmt.Errorf("bungie: decode definitions: %w: %w", domain.ErrParse, err)
}
