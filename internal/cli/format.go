package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdonaldj/flatarc/internal/archive"
	"github.com/mcdonaldj/flatarc/internal/fsmeta"
)

func modeString(mode uint32) string {
	return fsmeta.FileMode(mode).String()
}

func formatTime(t time.Time, layout string) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(layout)
}

// listingEntry is the machine-readable form of one record.
type listingEntry struct {
	Path    string    `json:"path" yaml:"path"`
	Offset  *int64    `json:"offset,omitempty" yaml:"offset,omitempty"`
	Size    int64     `json:"size" yaml:"size"`
	Mode    string    `json:"mode" yaml:"mode"`
	UID     uint32    `json:"uid" yaml:"uid"`
	GID     uint32    `json:"gid" yaml:"gid"`
	MTime   time.Time `json:"mtime" yaml:"mtime"`
	Digest  string    `json:"digest,omitempty" yaml:"digest,omitempty"`
	Deleted bool      `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

func toListing(entries []archive.Entry, withOffsets bool) []listingEntry {
	out := make([]listingEntry, 0, len(entries))
	for _, e := range entries {
		le := listingEntry{
			Path:    e.Path,
			Size:    e.Meta.Size,
			Mode:    fmt.Sprintf("%04o", e.Meta.Mode&07777),
			UID:     e.Meta.UID,
			GID:     e.Meta.GID,
			MTime:   e.Meta.MTime,
			Deleted: e.Deleted,
		}
		if withOffsets {
			off := e.Offset
			le.Offset = &off
		}
		if e.HasDigest() {
			le.Digest = hex.EncodeToString(e.Digest[:])
		}
		out = append(out, le)
	}
	return out
}

func writeListing(w io.Writer, format string, entries []archive.Entry, withOffsets bool) error {
	listing := toListing(entries, withOffsets)
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(listing)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(listing)
	default:
		return fmt.Errorf("%w: unknown output format %q", errUsage, format)
	}
}
