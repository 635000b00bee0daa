// Package archive packs generation versions into zip files and stores them.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"

	"go_sitegen/internal/vfs"
)

// epoch is the modification time of every entry, so equal trees zip to equal bytes
var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Zip writes the tree to w in insertion order
func Zip(w io.Writer, tree *vfs.Tree) error {
	zw := zip.NewWriter(w)
	for path, f := range tree.Entries() {
		hdr := &zip.FileHeader{
			Name:     path,
			Method:   zip.Deflate,
			Modified: epoch,
		}
		hdr.SetMode(0o644)

		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", path, err)
		}
		if _, err := io.WriteString(fw, f.Content); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return zw.Close()
}

// ZipBytes returns the zip of tree
func ZipBytes(tree *vfs.Tree) ([]byte, error) {
	var buf bytes.Buffer
	if err := Zip(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
