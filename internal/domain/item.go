package domain

import "encoding/json"

// EntityInventoryItem is the manifest entity kind holding item definitions.
const EntityInventoryItem = "DestinyInventoryItemDefinition"

// CollectionName returns the storage collection for an entity kind in a locale,
// e.g. "DestinyInventoryItemDefinition_eng".
func CollectionName(entity string, l Locale) string {
	return entity + "_" + l.Suffix
}

// RawRecord is one keyed entry of a definition payload, exactly as published.
type RawRecord struct {
	Key  string
	Body json.RawMessage
}

// RawCollection is a definition payload in source order.
type RawCollection []RawRecord

// ItemDocument is an accepted item definition ready for storage.
// Body is stored verbatim; Hash and Name are extracted for diagnostics only.
type ItemDocument struct {
	Key  string
	Hash int64
	Name string
	Body json.RawMessage
}
