package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/marmos91/emingest/internal/logger"
)

const defaultFTPPort = "21"

// FTPConfig configures an FTP repository session.
type FTPConfig struct {
	// Server is host or host:port.
	Server string

	// DataPath is the directory changed into after login.
	DataPath string

	// Timeout bounds dialing and each control-connection exchange.
	Timeout time.Duration

	// User and Password default to an anonymous login.
	User     string
	Password string
}

// FTPRepository is a Repository over a single FTP control connection.
type FTPRepository struct {
	mu   sync.Mutex
	conn *ftp.ServerConn
}

// DialFTP connects, logs in and changes into cfg.DataPath.
func DialFTP(ctx context.Context, cfg FTPConfig) (*FTPRepository, error) {
	if cfg.Server == "" {
		return nil, &TransferError{Op: "connect", Err: errors.New("ftp server is required")}
	}

	addr := ftpAddress(cfg.Server)
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if cfg.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(cfg.Timeout))
	}

	logger.Debug("Connecting to ftp://%s", addr)
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, &TransferError{Op: "connect", Name: addr, Err: err}
	}

	user, pass := cfg.User, cfg.Password
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, &TransferError{Op: "connect", Name: addr, Err: fmt.Errorf("login: %w", err)}
	}

	if cfg.DataPath != "" {
		if err := conn.ChangeDir(cfg.DataPath); err != nil {
			_ = conn.Quit()
			return nil, &TransferError{Op: "connect", Name: cfg.DataPath, Err: fmt.Errorf("change directory: %w", err)}
		}
	}

	return &FTPRepository{conn: conn}, nil
}

func ftpAddress(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, defaultFTPPort)
}

func (r *FTPRepository) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.conn.NameList("")
}

// Stat uses SIZE: servers answer it for regular files only, so a protocol
// rejection means "not a file".
func (r *FTPRepository) Stat(ctx context.Context, name string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	size, err := r.conn.FileSize(name)
	if err != nil {
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return size, true, nil
}

func (r *FTPRepository) Retrieve(ctx context.Context, name string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	resp, err := r.conn.Retr(name)
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(w, &ctxReader{ctx: ctx, r: resp})
	// The data connection must be closed before the next command.
	closeErr := resp.Close()
	if copyErr != nil {
		return n, copyErr
	}
	return n, closeErr
}

// Close ends the session with QUIT.
func (r *FTPRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.conn.Quit()
}

// ctxReader stops a long transfer once the context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
