package model

// Version constants for the record schema and the store.
const (
	// SchemaVersion is the version of the persisted record encoding.
	SchemaVersion = "1"

	// StoreVersion is the datahog store version.
	StoreVersion = "0.1.0"
)
