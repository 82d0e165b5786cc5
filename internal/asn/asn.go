// Package asn reads and rewrites association tables, the FITS binary
// tables that group exposures into one combined product.
package asn

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"astrodriz/internal/exposure"
	"astrodriz/internal/fitsfile"
)

// memberColWidth is the character width of the MEMNAME and MEMTYPE columns
// in the regenerated working copy.
const memberColWidth = 14

var lower = cases.Lower(language.Und)

// Member is one row of an association table. Names ending in * are
// placeholders left by the archive for members that never materialized.
type Member struct {
	Name    string
	Type    string
	Present bool
}

// Placeholder reports whether the row names a member that does not exist.
func (m Member) Placeholder() bool {
	return strings.HasSuffix(m.Name, "*")
}

// Exposure reports whether the row names an input exposure rather than the
// combined product.
func (m Member) Exposure() bool {
	return strings.HasPrefix(m.Type, "EXP")
}

// Table is a parsed association: the ordered member rows plus the name of
// the combined product the members drizzle into.
type Table struct {
	Path    string
	Output  string
	Members []Member
}

// Read parses the association table at path. Member names are normalized to
// lower case; the product name comes from the PROD member row, or from the
// filename when the table has none.
func Read(path string) (*Table, error) {
	file, err := fitsfile.Read(path)
	if err != nil {
		return nil, err
	}
	hdu := file.Table()
	if hdu == nil {
		return nil, fmt.Errorf("%s has no member table", filepath.Base(path))
	}

	names, err := hdu.StringColumn("MEMNAME")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	types, err := hdu.StringColumn("MEMTYPE")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	present, err := hdu.LogicalColumn("MEMPRSNT")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	table := &Table{Path: path, Members: make([]Member, 0, len(names))}
	for i, name := range names {
		// Older archive tables pad MEMNAME with NULs past the real name.
		if idx := strings.IndexByte(name, 0); idx >= 0 {
			name = name[:idx]
		}
		member := Member{
			Name:    lower.String(name),
			Type:    strings.ToUpper(types[i]),
			Present: present[i],
		}
		table.Members = append(table.Members, member)
		if table.Output == "" && strings.HasPrefix(member.Type, "PROD") {
			table.Output = member.Name
		}
	}
	if table.Output == "" {
		root, _ := exposure.SplitName(path)
		table.Output = lower.String(root)
	}
	return table, nil
}

// ExposureMembers returns the input-exposure rows, with placeholders
// dropped.
func (t *Table) ExposureMembers() []Member {
	out := make([]Member, 0, len(t.Members))
	for _, member := range t.Members {
		if member.Exposure() && !member.Placeholder() {
			out = append(out, member)
		}
	}
	return out
}

// FirstMember returns the first non-placeholder member name.
func (t *Table) FirstMember() (string, bool) {
	for _, member := range t.Members {
		if !member.Placeholder() {
			return member.Name, true
		}
	}
	return "", false
}

// CalibratedFiles resolves each exposure member to its calibrated science
// file under dir.
func (t *Table) CalibratedFiles(dir string, wfpc2 bool) ([]string, error) {
	members := t.ExposureMembers()
	files := make([]string, 0, len(members))
	for _, member := range members {
		path, err := exposure.ResolveScience(dir, member.Name, wfpc2)
		if err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}

// PipelinePath returns the working-copy name for an association file:
// j8cw03010_asn.fits becomes j8cw03010_pipeline_asn.fits.
func PipelinePath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	idx := strings.Index(base, "_asn.fits")
	if idx < 0 {
		return filepath.Join(dir, base)
	}
	return filepath.Join(dir, base[:idx]+"_pipeline"+base[idx:])
}

// WritePipelineCopy regenerates the association as a working copy at path,
// with every member name in lower case. The drizzle engine consumes the
// copy so the archive original stays untouched.
func (t *Table) WritePipelineCopy(path string) error {
	width := memberColWidth
	names := make([]string, len(t.Members))
	types := make([]string, len(t.Members))
	present := make([]bool, len(t.Members))
	for i, member := range t.Members {
		names[i] = member.Name
		types[i] = member.Type
		present[i] = member.Present
		if len(member.Name) > width {
			width = len(member.Name)
		}
	}

	primary := fitsfile.Primary{Cards: []fitsfile.Card{
		{Key: "ASN_ID", Value: strings.ToUpper(t.Output)},
		{Key: "ASN_TAB", Value: filepath.Base(path)},
	}}
	table := fitsfile.Table{
		Name: "ASN",
		Columns: []fitsfile.Column{
			{Name: "MEMNAME", Width: width, Strings: names},
			{Name: "MEMTYPE", Width: memberColWidth, Strings: types},
			{Name: "MEMPRSNT", Bools: present},
		},
	}
	return fitsfile.Write(path, primary, nil, []fitsfile.Table{table})
}
