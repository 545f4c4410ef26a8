// Package scope decides whether a host may be touched at all.
//
// A scope document lists allowed and forbidden host globs:
//
//	allowed:
//	  - "*.example.com"
//	forbidden:
//	  - "prod.example.com"
//
// Forbidden patterns are checked first, so prod.example.com above is blocked
// even though it also matches the allowed wildcard.
package scope
