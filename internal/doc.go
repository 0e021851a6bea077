// Package internal contains helper utilities that are intentionally private
// to cookieauth, currently limited to opaque session-key generation.
//
// # What this package must NOT do
//
//   - Export types that appear in the public cookieauth API.
//   - Be imported by any package outside the cookieauth module.
package internal
