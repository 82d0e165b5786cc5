// Package trailer maintains the append-only .tra processing history that
// travels with every dataset through the pipeline. Telemetry-style block
// headers and human-readable clock lines follow the archive's established
// trailer format so downstream tooling keeps parsing them.
package trailer

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// nameColumns is the padded width of the process name in a block header.
const nameColumns = 60

// Timestamp renders an archive block header for a processing step:
// a compact local-time prefix, an informational severity marker, and the
// step name padded with dashes.
func Timestamp(name string) string {
	prefix := time.Now().Format("2006002150405") + "-I-----"
	if len(name) > nameColumns {
		name = name[:nameColumns]
	}
	return prefix + name + strings.Repeat("-", nameColumns-len(name)) + "\n"
}

// HumanTime renders the wall-clock form used inside trailer messages.
func HumanTime() string {
	return time.Now().Format("15:04:05 (02-Jan-2006)")
}

// Trailer appends processing history to one dataset's .tra file. The file
// may already exist with calibration-pipeline content; it is only ever
// appended to, never truncated.
type Trailer struct {
	Path string
}

// New returns the trailer for a dataset root; root + ".tra".
func New(root string) *Trailer {
	return &Trailer{Path: root + ".tra"}
}

// Write appends a message to the trailer. The message lands in a temp file
// first and is merged in whole, so an interrupted run never leaves a
// half-written trailer entry.
func (t *Trailer) Write(message string) error {
	tmp := strings.TrimSuffix(t.Path, ".tra") + "_tmp.tra"
	if err := os.WriteFile(tmp, []byte(message), 0o644); err != nil {
		return fmt.Errorf("write trailer temp: %w", err)
	}
	return t.Absorb(tmp)
}

// Absorb appends the contents of source to the trailer and removes source.
// A missing source is a no-op; external tools do not always produce a log.
func (t *Trailer) Absorb(source string) error {
	content, err := os.ReadFile(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", source, err)
	}

	out, err := os.OpenFile(t.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trailer: %w", err)
	}
	if _, err := out.Write(content); err != nil {
		out.Close()
		return fmt.Errorf("append trailer: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close trailer: %w", err)
	}
	return os.Remove(source)
}
