// Package internal contains helper utilities that are intentionally
// private to phoneauth: challenge ID and OTP generation plus secret
// hashing.
//
// # What this package must NOT do
//
//   - Export types that appear in the public phoneauth API.
//   - Be imported by any package outside the phoneauth module.
package internal
