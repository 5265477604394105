package ir

// Version constants for records written by rewind.
const (
	// IRVersion is the record schema version.
	IRVersion = "1"

	// EngineVersion is the rewind journal version.
	EngineVersion = "0.1.0"
)
