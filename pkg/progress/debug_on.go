//go:build progressdebug

package progress

// debugChecks gates the per-tick progress statement validation.
const debugChecks = true
