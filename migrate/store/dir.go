package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
)

// Extension is the suffix of every migration file.
const Extension = ".migration.json"

// Dir is a directory of migration files named <number>.migration.json and read
// in ascending numeric order.
type Dir struct {
	fs     afero.Fs
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Dir.
type Option func(*Dir)

// WithLogger sets the logger used for skipped files.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dir) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock sets the clock used to name new files.
func WithClock(now func() time.Time) Option {
	return func(d *Dir) {
		d.now = now
	}
}

// NewDir creates a store rooted at path on fs.
func NewDir(fs afero.Fs, path string, opts ...Option) *Dir {
	d := &Dir{
		fs:     fs,
		path:   path,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

type entry struct {
	name  string
	order int64
}

// List returns the migration file names in the order they must be replayed.
// Files whose prefix is not a number are skipped with a warning.
func (d *Dir) List(ctx context.Context) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	infos, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list migration directory: %w", err)
	}

	var entries []entry
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, Extension) {
			continue
		}
		order, err := strconv.ParseInt(strings.TrimSuffix(name, Extension), 10, 64)
		if err != nil {
			d.logger.Warn("skipping migration file without numeric prefix", "file", name)
			continue
		}
		entries = append(entries, entry{name: name, order: order})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names, nil
}

// Load reads every migration set in replay order. Files that cannot be opened
// or decoded are logged and left out.
func (d *Dir) Load(ctx context.Context) ([]*migration.Set, error) {
	names, err := d.List(ctx)
	if err != nil {
		return nil, err
	}

	var sets []*migration.Set
	for _, name := range names {
		set, err := d.Read(ctx, name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			d.logger.Warn("skipping migration file", "file", name, "error", err)
			continue
		}
		if !set.IsValid() {
			d.logger.Warn("skipping unreadable migration file", "file", name)
			continue
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// Read decodes a single file. A malformed file yields migration.Invalid().
func (d *Dir) Read(ctx context.Context, name string) (*migration.Set, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f, err := d.fs.Open(filepath.Join(d.path, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open migration file: %w", err)
	}
	defer f.Close()

	return ReadStream(f, d.logger.With("file", name)), nil
}

// Write stores set under a new file named after the current time in
// milliseconds and returns the file name.
func (d *Dir) Write(ctx context.Context, set *migration.Set) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if err := d.fs.MkdirAll(d.path, 0755); err != nil {
		return "", fmt.Errorf("failed to create migration directory: %w", err)
	}

	order := d.now().UnixMilli()
	var name string
	for {
		name = strconv.FormatInt(order, 10) + Extension
		exists, err := afero.Exists(d.fs, filepath.Join(d.path, name))
		if err != nil {
			return "", fmt.Errorf("failed to check migration file: %w", err)
		}
		if !exists {
			break
		}
		order++
	}

	path := filepath.Join(d.path, name)
	f, err := d.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create migration file: %w", err)
	}

	err = Encode(f, set)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close migration file: %w", closeErr)
	}
	if err != nil {
		if removeErr := d.fs.Remove(path); removeErr != nil {
			d.logger.Warn("failed to remove incomplete migration file", "file", name, "error", removeErr)
		}
		return "", err
	}
	return name, nil
}
