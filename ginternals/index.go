package ginternals

import (
	"bufio"
	"bytes"
	"crypto/sha1" //nolint:gosec // git uses sha1 by design, this is not a security decision
	"encoding/binary"
	"errors"
	"io"
	"sort"
	"time"

	"golang.org/x/xerrors"
)

// indexSignature is the magic value found at the start of every index
// file
const indexSignature = "DIRC"

// IndexVersion is the only on-disk index version this implementation
// reads and writes
const IndexVersion uint32 = 2

// entryHeaderSize is the size, in bytes, of the fixed-width portion of
// a packed entry (everything before the variable-length name)
const entryHeaderSize = 62

// nameMask is the maximum namelen value that fits the low 12 bits of
// an entry's flags
const nameMask = 0xFFF

var (
	// ErrIndexBadSignature is returned when an index file doesn't start
	// with "DIRC"
	ErrIndexBadSignature = errors.New("index: bad signature")
	// ErrIndexUnsupportedVersion is returned when an index file declares
	// a version this implementation doesn't support
	ErrIndexUnsupportedVersion = errors.New("index: unsupported version")
	// ErrIndexTruncated is returned when an index file ends before all
	// the data it declares has been read
	ErrIndexTruncated = errors.New("index: truncated")
	// ErrIndexChecksumMismatch is returned when the trailing SHA-1 of an
	// index file doesn't match its content
	ErrIndexChecksumMismatch = errors.New("index: checksum mismatch")
)

// IndexEntry represents a single staged path.
//
// Mode is kept as a raw, un-interpreted value (matching the wire
// format) rather than object.TreeObjectMode, so this package never has
// to import ginternals/object: object already imports ginternals for
// Oid, and ginternals/object importing back here would be a cycle.
// Callers that need a TreeObjectMode should convert at the boundary.
type IndexEntry struct {
	CreatedAt  time.Time
	ModifiedAt time.Time
	Dev        uint32
	Inode      uint32
	Mode       uint32
	UID        uint32
	GID        uint32
	Size       uint32
	ID         Oid
	Path       string
}

// Index represents the staging area: a mapping of working-tree paths
// to blob ids and stat metadata, persisted as a binary DIRC v2 file.
// https://git-scm.com/docs/index-format
type Index struct {
	version uint32
	entries map[string]*IndexEntry
}

// NewIndex returns a new, empty index
func NewIndex() *Index {
	return &Index{
		version: IndexVersion,
		entries: map[string]*IndexEntry{},
	}
}

// Upsert adds or replaces the entry for e.Path
func (idx *Index) Upsert(e IndexEntry) {
	cp := e
	idx.entries[e.Path] = &cp
}

// Remove removes the entry for the given path, if any. It returns
// whether an entry was actually removed
func (idx *Index) Remove(path string) bool {
	if _, ok := idx.entries[path]; !ok {
		return false
	}
	delete(idx.entries, path)
	return true
}

// Contains returns whether path is currently staged
func (idx *Index) Contains(path string) bool {
	_, ok := idx.entries[path]
	return ok
}

// Get returns the entry for the given path, if any
func (idx *Index) Get(path string) (IndexEntry, bool) {
	e, ok := idx.entries[path]
	if !ok {
		return IndexEntry{}, false
	}
	return *e, true
}

// Len returns the number of entries in the index
func (idx *Index) Len() int {
	return len(idx.entries)
}

// SortedEntries returns every entry, sorted ascending by path
func (idx *Index) SortedEntries() []IndexEntry {
	paths := make([]string, 0, len(idx.entries))
	for p := range idx.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]IndexEntry, 0, len(paths))
	for _, p := range paths {
		out = append(out, *idx.entries[p])
	}
	return out
}

// ReadIndex decodes an index file from r. A truncated header, an
// unknown signature/version, or a checksum mismatch are all reported
// as errors; an empty index must be produced by the caller when the
// underlying file doesn't exist, not by this function.
func ReadIndex(r io.Reader) (*Index, error) {
	h := sha1.New() //nolint:gosec // see above
	br := bufio.NewReader(io.TeeReader(r, h))

	var hdr [12]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, xerrors.Errorf("could not read header: %w", ErrIndexTruncated)
	}
	if string(hdr[0:4]) != indexSignature {
		return nil, ErrIndexBadSignature
	}
	version := binary.BigEndian.Uint32(hdr[4:8])
	if version != IndexVersion {
		return nil, xerrors.Errorf("version %d: %w", version, ErrIndexUnsupportedVersion)
	}
	count := binary.BigEndian.Uint32(hdr[8:12])

	idx := NewIndex()
	for i := uint32(0); i < count; i++ {
		e, err := readIndexEntry(br)
		if err != nil {
			return nil, xerrors.Errorf("entry %d: %w", i, err)
		}
		idx.entries[e.Path] = e
	}

	computed := h.Sum(nil)
	var trailer [OidSize]byte
	if _, err := io.ReadFull(br, trailer[:]); err != nil {
		return nil, xerrors.Errorf("could not read checksum: %w", ErrIndexTruncated)
	}
	if !bytes.Equal(computed, trailer[:]) {
		return nil, ErrIndexChecksumMismatch
	}

	return idx, nil
}

// readIndexEntry decodes a single packed entry, including its
// variable-length name and padding
func readIndexEntry(r *bufio.Reader) (*IndexEntry, error) {
	var buf [entryHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, ErrIndexTruncated
	}

	e := &IndexEntry{}
	e.CreatedAt = time.Unix(
		int64(binary.BigEndian.Uint32(buf[0:4])),
		int64(binary.BigEndian.Uint32(buf[4:8])),
	).UTC()
	e.ModifiedAt = time.Unix(
		int64(binary.BigEndian.Uint32(buf[8:12])),
		int64(binary.BigEndian.Uint32(buf[12:16])),
	).UTC()
	e.Dev = binary.BigEndian.Uint32(buf[16:20])
	e.Inode = binary.BigEndian.Uint32(buf[20:24])
	e.Mode = binary.BigEndian.Uint32(buf[24:28])
	e.UID = binary.BigEndian.Uint32(buf[28:32])
	e.GID = binary.BigEndian.Uint32(buf[32:36])
	e.Size = binary.BigEndian.Uint32(buf[36:40])

	oid, err := NewOidFromHex(buf[40:60])
	if err != nil {
		return nil, xerrors.Errorf("invalid entry hash: %w", err)
	}
	e.ID = oid

	// the flags' low 12 bits only ever matter as a hint; the actual
	// name is always NUL-terminated, which lets us decode names longer
	// than what fits in those 12 bits without any special-casing
	var name bytes.Buffer
	read := 0
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, ErrIndexTruncated
		}
		read++
		if b == 0 {
			break
		}
		name.WriteByte(b)
	}
	e.Path = name.String()

	total := entryHeaderSize + read
	pad := (8 - total%8) % 8
	if pad > 0 {
		discard := make([]byte, pad)
		if _, err := io.ReadFull(r, discard); err != nil {
			return nil, ErrIndexTruncated
		}
	}

	return e, nil
}

// Write encodes the index as a DIRC v2 file, including the trailing
// SHA-1 checksum, and writes it to w
func (idx *Index) Write(w io.Writer) error {
	h := sha1.New() //nolint:gosec // see above
	mw := io.MultiWriter(w, h)
	bw := bufio.NewWriter(mw)

	var hdr [12]byte
	copy(hdr[0:4], indexSignature)
	binary.BigEndian.PutUint32(hdr[4:8], idx.version)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(idx.entries)))
	if _, err := bw.Write(hdr[:]); err != nil {
		return xerrors.Errorf("could not write header: %w", err)
	}

	for _, e := range idx.SortedEntries() {
		if err := writeIndexEntry(bw, &e); err != nil {
			return xerrors.Errorf("could not write entry %s: %w", e.Path, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return xerrors.Errorf("could not flush index: %w", err)
	}
	if _, err := w.Write(h.Sum(nil)); err != nil {
		return xerrors.Errorf("could not write checksum: %w", err)
	}
	return nil
}

func writeIndexEntry(w io.Writer, e *IndexEntry) error {
	var buf [entryHeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(e.CreatedAt.Unix()))
	binary.BigEndian.PutUint32(buf[4:8], uint32(e.CreatedAt.Nanosecond()))
	binary.BigEndian.PutUint32(buf[8:12], uint32(e.ModifiedAt.Unix()))
	binary.BigEndian.PutUint32(buf[12:16], uint32(e.ModifiedAt.Nanosecond()))
	binary.BigEndian.PutUint32(buf[16:20], e.Dev)
	binary.BigEndian.PutUint32(buf[20:24], e.Inode)
	binary.BigEndian.PutUint32(buf[24:28], e.Mode)
	binary.BigEndian.PutUint32(buf[28:32], e.UID)
	binary.BigEndian.PutUint32(buf[32:36], e.GID)
	binary.BigEndian.PutUint32(buf[36:40], e.Size)
	copy(buf[40:60], e.ID.Bytes())

	nameLen := len(e.Path)
	flagsLen := nameLen
	if flagsLen > nameMask {
		flagsLen = nameMask
	}
	binary.BigEndian.PutUint16(buf[60:62], uint16(flagsLen))

	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	if _, err := io.WriteString(w, e.Path); err != nil {
		return err
	}

	total := entryHeaderSize + nameLen
	pad := 8 - total%8
	if _, err := w.Write(make([]byte, pad)); err != nil {
		return err
	}
	return nil
}
