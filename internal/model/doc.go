// Package model provides the core data types for datahog.
//
// This package contains identifiers, entities, records and transactions.
// All other internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - timestamps and versions are integers
//   - All JSON tags use snake_case
//   - Canonical JSON (MarshalCanonical) is the only encoding used for hashing
//   - Entities returned across package boundaries are copies (Clone)
package model
