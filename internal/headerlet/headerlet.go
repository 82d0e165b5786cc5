// Package headerlet reads and writes WCS sidecar files. A headerlet
// snapshots the active world coordinate solution of one exposure: a
// primary header naming the source and author plus one header-only
// SIPWCS extension per chip. The pipeline exports one per calibrated
// exposure at the end of a run, and applies aligner-produced headerlets
// to companion exposures during a-posteriori correction.
package headerlet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"astrodriz/internal/exposure"
	"astrodriz/internal/fitsfile"
)

const (
	hdrAuthor  = "OPUS"
	hdrDescrip = "Default WCS from Pipeline Calibration"
)

// wcsKeys are the cards a headerlet captures from and applies to a chip.
var wcsKeys = []string{
	"WCSNAME",
	"CTYPE1", "CTYPE2",
	"CRVAL1", "CRVAL2",
	"CRPIX1", "CRPIX2",
	"CD1_1", "CD1_2", "CD2_1", "CD2_2",
	"ORIENTAT",
}

// Name returns the sidecar filename for a calibrated exposure.
func Name(calFile string) string {
	root, _ := exposure.SplitName(filepath.Base(calFile))
	return filepath.Join(filepath.Dir(calFile), root+"_flt_hlet.fits")
}

// Export writes the WCS sidecar for one calibrated exposure and reports
// whether a new file was created. An existing sidecar is never replaced:
// the aligner writes richer ones and those take precedence.
func Export(calFile string) (string, bool, error) {
	name := Name(calFile)
	if _, err := os.Stat(name); err == nil {
		return name, false, nil
	}

	file, err := fitsfile.Read(calFile)
	if err != nil {
		return "", false, err
	}

	var chips []fitsfile.Image
	for ver := 1; ; ver++ {
		sci := file.Extension("SCI", ver)
		if sci == nil {
			break
		}
		cards := snapshotWCS(sci)
		if len(cards) == 0 {
			continue
		}
		chips = append(chips, fitsfile.Image{Name: "SIPWCS", Ver: ver, Cards: cards})
	}
	if len(chips) == 0 {
		if cards := snapshotWCS(file.Primary()); len(cards) > 0 {
			chips = append(chips, fitsfile.Image{Name: "SIPWCS", Ver: 1, Cards: cards})
		}
	}
	if len(chips) == 0 {
		return "", false, fmt.Errorf("no WCS solution found in %s", filepath.Base(calFile))
	}

	root, _ := exposure.SplitName(filepath.Base(calFile))
	destination := root
	if rootname, ok := file.Primary().Str("ROOTNAME"); ok {
		destination = rootname
	}
	wcsname := ""
	for _, card := range chips[0].Cards {
		if card.Key == "WCSNAME" {
			wcsname, _ = card.Value.(string)
		}
	}

	primary := fitsfile.Primary{Cards: []fitsfile.Card{
		{Key: "HDRNAME", Value: root + "_hlet"},
		{Key: "DESTIM", Value: destination},
		{Key: "AUTHOR", Value: hdrAuthor},
		{Key: "DESCRIP", Value: hdrDescrip},
		{Key: "WCSNAME", Value: wcsname},
		{Key: "DATE", Value: time.Now().UTC().Format("2006-01-02T15:04:05")},
	}}
	if err := fitsfile.Write(name, primary, chips, nil); err != nil {
		_ = os.Remove(name)
		return "", false, err
	}
	return name, true, nil
}

// Apply patches the WCS solution carried by a headerlet into the matching
// chips of the target exposure. Cards the target does not carry are
// skipped; a chip the target does not have is an error.
func Apply(headerletPath, targetPath string) error {
	hlet, err := fitsfile.Read(headerletPath)
	if err != nil {
		return err
	}

	applied := 0
	for ver := 1; ; ver++ {
		chip := hlet.Extension("SIPWCS", ver)
		if chip == nil {
			break
		}
		for _, key := range wcsKeys {
			var value any
			if v, ok := chip.Float(key); ok {
				value = v
			} else if s, ok := chip.Str(key); ok {
				value = s
			} else {
				continue
			}
			err := fitsfile.PatchExtensionCard(targetPath, "SCI", ver, key, value)
			if errors.Is(err, fitsfile.ErrNoCard) {
				continue
			}
			if err != nil {
				return fmt.Errorf("apply %s to %s: %w", filepath.Base(headerletPath), filepath.Base(targetPath), err)
			}
			applied++
		}
	}
	if applied == 0 {
		return fmt.Errorf("%s carries no applicable WCS solution", filepath.Base(headerletPath))
	}
	return nil
}

func snapshotWCS(hdu *fitsfile.HDU) []fitsfile.Card {
	var cards []fitsfile.Card
	for _, key := range wcsKeys {
		if v, ok := hdu.Float(key); ok {
			cards = append(cards, fitsfile.Card{Key: key, Value: v})
			continue
		}
		if s, ok := hdu.Str(key); ok {
			cards = append(cards, fitsfile.Card{Key: key, Value: s})
		}
	}
	return cards
}
