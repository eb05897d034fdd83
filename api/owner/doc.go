// Package owner serves the signed governance routes under /api/owner.
package owner
