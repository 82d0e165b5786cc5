// Package fitsfile provides the narrow FITS helpers the pipeline owns:
// reading headers, image arrays, and member tables through the pure-Go FITS
// reader, patching single header cards in place, and writing the small
// single-purpose files the pipeline produces (masks, headerlets, member
// tables). Anything heavier stays with the external collaborators.
package fitsfile
