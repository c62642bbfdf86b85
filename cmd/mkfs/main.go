// Command mkfs formats a fresh blockfs image.
//
// Grounded on dargueta-disko/cmd/main.go's urfave/cli/v2 app/command
// structure.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/blockfs/blockdev"
	"github.com/dargueta/blockfs/layout"
	"github.com/dargueta/blockfs/mkfs"
)

func main() {
	app := cli.App{
		Name:  "blockfs-mkfs",
		Usage: "Format a new blockfs image",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "preset", Usage: "named image size preset (tiny, small, medium, large)"},
			&cli.Uint64Flag{Name: "blocks", Usage: "total device blocks (ignored if --preset is set)"},
			&cli.Uint64Flag{Name: "inodes", Usage: "total inode records (ignored if --preset is set)"},
		},
		ArgsUsage: "IMAGE_PATH",
		Action:    formatImage,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("blockfs-mkfs: %s", err.Error())
	}
}

func formatImage(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("usage: blockfs-mkfs [options] IMAGE_PATH")
	}

	var opts mkfs.Options
	if preset := c.String("preset"); preset != "" {
		var err error
		opts, err = mkfs.LookupPreset(preset)
		if err != nil {
			return err
		}
	} else {
		opts = mkfs.Options{
			TotalBlocks: uint32(c.Uint64("blocks")),
			TotalInodes: uint32(c.Uint64("inodes")),
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(int64(opts.TotalBlocks) * layout.BlockSize); err != nil {
		return err
	}

	dev := blockdev.New(f, layout.BlockSize, opts.TotalBlocks)
	if err := mkfs.Format(dev, opts); err != nil {
		return err
	}
	log.Printf("blockfs-mkfs: wrote %s (%d blocks, %d inodes)", path, opts.TotalBlocks, opts.TotalInodes)
	return nil
}
