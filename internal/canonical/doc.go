// Package canonical provides RFC 8785 canonical JSON and domain-separated
// hashing for the order engine.
//
// Canonical bytes are the only input used for snapshot checksums and for
// identifiers derived from command ids. Key constraints:
//   - NO float types (money is int64 cents, rates travel as decimal strings)
//   - NO null values
//   - object keys sorted by UTF-16 code units
//   - strings NFC-normalised, HTML characters left unescaped
package canonical
