//go:build !progressdebug

package progress

// debugChecks gates the per-tick progress statement validation. It is
// enabled by the progressdebug build tag.
const debugChecks = false
