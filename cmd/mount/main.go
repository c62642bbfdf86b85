//go:build fuse

// Command mount mounts a blockfs image as a real FUSE filesystem.
//
// Grounded on dargueta-disko/cmd/main.go's urfave/cli/v2 app/command
// structure, wiring fsops and fuseadapter instead of disko's drivers.
package main

import (
	"log"
	"os"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/urfave/cli/v2"

	"github.com/dargueta/blockfs/blockdev"
	"github.com/dargueta/blockfs/fsops"
	"github.com/dargueta/blockfs/fuseadapter"
	"github.com/dargueta/blockfs/layout"
)

func main() {
	app := cli.App{
		Name:      "blockfs-mount",
		Usage:     "Mount a blockfs image",
		ArgsUsage: "IMAGE_PATH MOUNT_POINT",
		Action:    mountImage,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("blockfs-mount: %s", err.Error())
	}
}

func mountImage(c *cli.Context) error {
	imagePath := c.Args().Get(0)
	mountPoint := c.Args().Get(1)
	if imagePath == "" || mountPoint == "" {
		log.Fatalf("usage: blockfs-mount IMAGE_PATH MOUNT_POINT")
	}

	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	totalBlocks := uint32(info.Size() / layout.BlockSize)

	dev := blockdev.New(f, layout.BlockSize, totalBlocks)
	fsys, err := fsops.Mount(dev)
	if err != nil {
		return err
	}
	defer fsys.Unmount()

	root := fuseadapter.NewRoot(fsys)
	server, err := fs.Mount(mountPoint, root, &fs.Options{})
	if err != nil {
		return err
	}
	log.Printf("blockfs-mount: serving %s at %s", imagePath, mountPoint)
	server.Wait()
	return nil
}
