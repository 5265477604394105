// Package ir provides the value and record types shared by every rewind package.
//
// This package contains type definitions and their encodings only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - property values and method arguments use int64
//   - Object identities are values (IRRef) so they can be journaled as arguments
//   - Canonical JSON (RFC 8785) is the only encoding used for hashing and golden traces
//   - All JSON tags use snake_case
package ir
