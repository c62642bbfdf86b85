package mkfs

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// Preset is one named (total-block, total-inode) pair for a demo image,
// loaded from the embedded CSV table below.
//
// Grounded on dargueta-disko/disks/disks.go's DiskGeometry preset table:
// same embed-a-CSV-at-init pattern, narrowed to the two numbers this
// filesystem's Options actually needs.
type Preset struct {
	Slug        string `csv:"slug"`
	Name        string `csv:"name"`
	TotalBlocks uint32 `csv:"total_blocks"`
	TotalInodes uint32 `csv:"total_inodes"`
}

//go:embed presets.csv
var presetsRawCSV string

var presets map[string]Preset

func init() {
	presets = make(map[string]Preset)
	err := gocsv.UnmarshalToCallback(strings.NewReader(presetsRawCSV), func(row Preset) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("mkfs: duplicate preset slug %q", row.Slug)
		}
		presets[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(err)
	}
}

// LookupPreset returns the named preset's geometry, or an error if no
// preset with that slug is embedded.
func LookupPreset(slug string) (Options, error) {
	preset, ok := presets[slug]
	if !ok {
		return Options{}, fmt.Errorf("mkfs: no preset named %q", slug)
	}
	return Options{TotalBlocks: preset.TotalBlocks, TotalInodes: preset.TotalInodes}, nil
}
