// Package recon implements passive, header-level reconnaissance of a root
// domain: candidate subdomains, DNS resolution, one HTTPS HEAD per host, an
// optional TLS handshake peek and an optional robots.txt read.
//
// Every network call goes through a shared rate limiter and carries a
// per-call timeout. Sensitive response headers are redacted before a Record
// is built, so recon-v1 records are safe to keep in an audit log.
//
// Hosts outside the configured scope are never contacted; the scope decision
// is written instead as a scope-v1 record.
package recon
