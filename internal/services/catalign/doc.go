// Package catalign wraps the catalog alignment tool that fits exposures
// to an absolute astrometric reference frame such as GAIA. The tool
// updates WCS keywords in place, writes headerlet sidecars for
// successful fits, and reports one fit row per exposure on stdout.
package catalign
