package fileserver

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// ServeFS serves transfer requests from the root directory of the given file system.
func ServeFS(fsys fs.FS) ServerFunc {
	return func(tr *TransferRequest) error {
		switch tr.Command {
		case CmdList:
			return serveListing(fsys, tr)
		case CmdGet:
			return serveFile(fsys, tr)
		default:
			return fmt.Errorf("unsupported command %v", tr.Command)
		}
	}
}

func serveListing(fsys fs.FS, tr *TransferRequest) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}

	if err = tr.Accept(); err != nil {
		return err
	}
	return tr.SendListing(names)
}

func serveFile(fsys fs.FS, tr *TransferRequest) error {
	filename := path.Clean(tr.Filename)
	if filename == "." || strings.Contains(filename, "/") || !fs.ValidPath(filename) {
		return &fs.PathError{Op: "open", Path: tr.Filename, Err: fs.ErrInvalid}
	}

	f, err := fsys.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	if !stat.Mode().IsRegular() {
		return &fs.PathError{Op: "open", Path: tr.Filename, Err: fs.ErrNotExist}
	}

	if err = tr.Accept(); err != nil {
		return err
	}
	err = tr.SendFile(f)
	if err != nil {
		err = fmt.Errorf("send error: %w", err)
	}
	return err
}
