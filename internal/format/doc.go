// Package format holds the static catalog of supported file formats and the
// directed conversion graph between them. The catalog is fixed at compile
// time; lookups and edge checks are O(1).
package format
