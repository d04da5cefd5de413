// Package secret generates and verifies service connection secrets.
//
// A node issues one secret per supervised service. The worker presents it
// in the worker-to-peer handshake; the node keeps only an argon2id hash.
//
// Secret Format:
//
//   - Prefix: nmcs_ (5 characters)
//   - Body: 43 characters of Base64 RawURL encoded random bytes
//
// Hash Format:
//
//   - argon2id$<base64 salt>$<base64 key>
//
// Verification recomputes the key and compares in constant time.
package secret
