// Package jwt signs and verifies the service's own session tokens.
//
// Access and refresh tokens share one signing key and one claim layout and are
// told apart by the kind claim. Verification separates expired tokens, whose
// claims are still trustworthy, from every other failure.
package jwt
