package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ErrCorrupt is returned when the database file is unreadable even after
// the one automatic restore-from-backup attempt described in spec.md §7.
var ErrCorrupt = errors.New("catalog: database corrupt, manual rescan required")

// Record layout from spec.md §6: fixed-size, zero-padded fields in
// declared order. Key, Display, Flags and FavPCount are never stored —
// they're reconstructed from record position and PlayCount on load.
const (
	fieldPath   = 256
	fieldArtist = 64
	fieldTitle  = 64
	fieldAlbum  = 64
	fieldGenre  = 64
	fieldUint32 = 4 // playcount, skipcount

	recordSize = fieldPath + fieldArtist + fieldTitle + fieldAlbum + fieldGenre + fieldUint32 + fieldUint32
)

// Open opens (creating if absent) the database file at path, attached to
// this catalog, and loads its contents. Mirrors spec.md §4.1's open():
// "opens (creates if absent) the database file; on short-read/corruption
// during load, renames backup over it and reloads once; if still corrupt,
// fails with an actionable error."
func (c *Catalog) Open(path string) error {
	c.mu.Lock()
	c.path = path
	c.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Info("catalog database absent, starting empty", "path", path)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("catalog: create %s: %w", path, err)
		}
		f.Close()
		return nil
	}

	return c.Load(path)
}

// Load reads records sequentially from path, assigns Key = position + 1,
// builds the cyclic ring, fills Display, and initializes
// FavPCount = PlayCount — spec.md §4.1 load().
func (c *Catalog) Load(path string) error {
	c.mu.Lock()
	c.path = path
	c.mu.Unlock()

	titles, err := readRecords(path)
	if err != nil {
		slog.Warn("catalog: load failed, attempting backup restore", "path", path, "error", err)
		bak := path + ".bak"
		if restoreErr := os.Rename(bak, path); restoreErr != nil {
			return fmt.Errorf("%w: %v (no usable backup: %v)", ErrCorrupt, err, restoreErr)
		}
		titles, err = readRecords(path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		slog.Info("catalog: restored from backup after corruption", "path", path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.arena = nil
	c.next = nil
	c.prev = nil
	c.byPath = make(map[string]int)
	c.head = -1
	c.count = 0
	c.dirty = 0

	for _, t := range titles {
		t.Display = computeDisplay(t.Artist, t.Title)
		t.FavPCount = t.PlayCount
		id := len(c.arena)
		t.id = id
		t.Key = id + 1
		c.arena = append(c.arena, t)
		c.growRingArrays()
		c.insertTail(id)
		c.byPath[t.Path] = id
	}
	c.dirty = 0

	return nil
}

func readRecords(path string) ([]*Title, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var titles []*Title
	buf := make([]byte, recordSize)
	for {
		_, err := io.ReadFull(f, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("short read: %w", err)
		}
		t, err := decodeRecord(buf)
		if err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, nil
}

func decodeRecord(buf []byte) (*Title, error) {
	if len(buf) != recordSize {
		return nil, fmt.Errorf("catalog: bad record size %d", len(buf))
	}
	off := 0
	path := decodeCString(buf[off : off+fieldPath])
	off += fieldPath
	artist := decodeCString(buf[off : off+fieldArtist])
	off += fieldArtist
	title := decodeCString(buf[off : off+fieldTitle])
	off += fieldTitle
	album := decodeCString(buf[off : off+fieldAlbum])
	off += fieldAlbum
	genre := decodeCString(buf[off : off+fieldGenre])
	off += fieldGenre
	playcount := binary.LittleEndian.Uint32(buf[off : off+fieldUint32])
	off += fieldUint32
	skipcount := binary.LittleEndian.Uint32(buf[off : off+fieldUint32])

	return &Title{
		Path:      path,
		Artist:    artist,
		Title:     title,
		Album:     album,
		Genre:     genre,
		PlayCount: playcount,
		SkipCount: skipcount,
	}, nil
}

func encodeRecord(t *Title) []byte {
	buf := make([]byte, recordSize)
	off := 0
	encodeCString(buf[off:off+fieldPath], t.Path)
	off += fieldPath
	encodeCString(buf[off:off+fieldArtist], t.Artist)
	off += fieldArtist
	encodeCString(buf[off:off+fieldTitle], t.Title)
	off += fieldTitle
	encodeCString(buf[off:off+fieldAlbum], t.Album)
	off += fieldAlbum
	encodeCString(buf[off:off+fieldGenre], t.Genre)
	off += fieldGenre
	binary.LittleEndian.PutUint32(buf[off:off+fieldUint32], t.PlayCount)
	off += fieldUint32
	binary.LittleEndian.PutUint32(buf[off:off+fieldUint32], t.SkipCount)
	return buf
}

func decodeCString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func encodeCString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// Write rewrites the whole database iff dirty or force: rename the
// current file to .bak, rewrite all records in current ring order, and
// reassign keys to positions — spec.md §4.1 write(force).
func (c *Catalog) Write(force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dirty == 0 && !force {
		return nil
	}
	if c.path == "" {
		return errors.New("catalog: Write called before Open/Load")
	}

	c.reindexKeysLocked()

	if _, err := os.Stat(c.path); err == nil {
		if err := os.Rename(c.path, c.path+".bak"); err != nil {
			return fmt.Errorf("catalog: backup current db: %w", err)
		}
	}

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("catalog: create %s: %w", c.path, err)
	}
	defer f.Close()

	var writeErr error
	c.eachLocked(func(t *Title) {
		if writeErr != nil {
			return
		}
		if _, err := f.Write(encodeRecord(t)); err != nil {
			writeErr = fmt.Errorf("catalog: write record: %w", err)
		}
	})
	if writeErr != nil {
		return writeErr
	}

	c.dirty = 0
	return nil
}

// MarkDirty increments the dirty counter so a future Write(false) is not
// a no-op; used by the scheduler/player whenever PlayCount or similar
// persisted fields change outside of add/remove.
func (c *Catalog) MarkDirty() {
	c.mu.Lock()
	c.dirty++
	c.mu.Unlock()
}

// Dirty reports the number of mutations since the last successful write.
func (c *Catalog) Dirty() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}
