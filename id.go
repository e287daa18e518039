package saga

import "github.com/HACKMANV8/saga/id"

// ID is the primary identifier type for all saga entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
