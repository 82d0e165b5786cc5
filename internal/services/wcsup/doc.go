// Package wcsup wraps the WCS update tool that refreshes world
// coordinate solutions in calibrated exposures. With the astrometry
// database enabled it pulls any a-priori solutions published for the
// observation; without it the tool only recomputes the distortion
// model from the reference files already named in the headers.
package wcsup
