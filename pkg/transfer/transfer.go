// Package transfer stages the raw files of an entry from the public file
// repository into a local directory.
//
// Listing and downloading happen once per run and strictly sequentially over
// a single repository session; processing starts only after every file has
// been staged.
package transfer

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Repository is a remote directory of raw files, already positioned on the
// entry's data directory.
//
// Implementations are not required to be safe for concurrent use.
type Repository interface {
	// List returns the names in the data directory (files and
	// subdirectories alike).
	List(ctx context.Context) ([]string, error)

	// Stat probes name. isFile is false for directories and for names the
	// repository refuses to size; err is reserved for session failures.
	Stat(ctx context.Context, name string) (size int64, isFile bool, err error)

	// Retrieve streams the content of name into w.
	Retrieve(ctx context.Context, name string, w io.Writer) (int64, error)

	Close() error
}

// EntryIDPlaceholder is substituted by DataPath.
const EntryIDPlaceholder = "{entry_id}"

// DataPath renders a data directory template for entryID.
func DataPath(template, entryID string) string {
	p := strings.ReplaceAll(template, EntryIDPlaceholder, entryID)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// DownloadURL returns the ftp:// URL of name inside dataPath on server.
func DownloadURL(server, dataPath, name string) string {
	return fmt.Sprintf("ftp://%s%s", server, path.Join(dataPath, path.Base(name)))
}

// TransferError reports a failure of the listing or download phase. It
// aborts the whole run.
type TransferError struct {
	// Op is the failing step: "connect", "list", "stat", "retrieve" or "stage".
	Op   string
	Name string
	Err  error
}

func (e *TransferError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("transfer %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transfer %s %s failed: %v", e.Op, e.Name, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
