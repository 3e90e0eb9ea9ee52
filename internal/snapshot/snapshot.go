// Package snapshot persists crash-consistent index snapshots as .qvsx files:
// a fixed binary header, a JSON-encoded payload (term entries plus synonym
// classes), and a CRC32 footer. Writes go to a temp file and are renamed
// into place, so a crash mid-write never leaves a readable-but-partial
// snapshot behind.
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quiver-search/quiver/internal/index"
	"github.com/quiver-search/quiver/pkg/errors"
)

const (
	MagicBytes    uint32 = 0x51565358 // "QVSX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
	FooterSize    int    = 4
)

// State is everything needed to reconstruct an index.
type State struct {
	Entries   []index.TermEntry `json:"entries"`
	Synonyms  [][]string        `json:"synonyms,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

// Store reads and writes snapshot files in a single directory.
type Store struct {
	dataDir string
	keep    int
	logger  *slog.Logger
}

// NewStore creates a Store that retains the `keep` most recent snapshots.
func NewStore(dataDir string, keep int) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	if keep < 1 {
		keep = 1
	}
	return &Store{
		dataDir: dataDir,
		keep:    keep,
		logger:  slog.Default().With("component", "snapshot-store"),
	}, nil
}

// Save writes a new snapshot file and prunes old ones. It returns the path
// of the written file.
func (s *Store) Save(state State) (string, error) {
	if state.CreatedAt == 0 {
		state.CreatedAt = time.Now().Unix()
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshaling snapshot payload: %w", err)
	}

	name := fmt.Sprintf("snap_%d.qvsx", time.Now().UnixNano())
	finalPath := filepath.Join(s.dataDir, name)
	tmpPath := finalPath + ".tmp"

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(payload)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(state.CreatedAt))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer, crc32.ChecksumIEEE(payload))

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()
	for _, chunk := range [][]byte{header, payload, footer} {
		if _, err := f.Write(chunk); err != nil {
			os.Remove(tmpPath)
			return "", fmt.Errorf("writing snapshot: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("publishing snapshot: %w", err)
	}

	s.prune()
	s.logger.Info("snapshot written",
		"path", finalPath,
		"terms", len(state.Entries),
		"bytes", len(payload),
	)
	return finalPath, nil
}

// LoadLatest reads the most recent snapshot, or returns nil if the
// directory holds none. A snapshot that fails validation is reported as
// index corruption, not skipped silently.
func (s *Store) LoadLatest() (*State, error) {
	paths, err := s.list()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	return Load(paths[len(paths)-1])
}

// Load reads and validates one snapshot file.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, errors.Newf(errors.ErrIndexCorrupt, http.StatusInternalServerError,
			"snapshot %s truncated: %d bytes", path, len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicBytes {
		return nil, errors.Newf(errors.ErrIndexCorrupt, http.StatusInternalServerError,
			"snapshot %s has bad magic bytes %x", path, magic)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != FormatVersion {
		return nil, errors.Newf(errors.ErrIndexCorrupt, http.StatusInternalServerError,
			"snapshot %s has unsupported version %d", path, version)
	}
	payloadLen := int(binary.LittleEndian.Uint64(data[8:16]))
	if len(data) != HeaderSize+payloadLen+FooterSize {
		return nil, errors.Newf(errors.ErrIndexCorrupt, http.StatusInternalServerError,
			"snapshot %s length mismatch: header claims %d payload bytes", path, payloadLen)
	}
	payload := data[HeaderSize : HeaderSize+payloadLen]
	wantCRC := binary.LittleEndian.Uint32(data[HeaderSize+payloadLen:])
	if got := crc32.ChecksumIEEE(payload); got != wantCRC {
		return nil, errors.Newf(errors.ErrIndexCorrupt, http.StatusInternalServerError,
			"snapshot %s checksum mismatch: got %x want %x", path, got, wantCRC)
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Newf(errors.ErrIndexCorrupt, http.StatusInternalServerError,
			"snapshot %s payload unreadable: %v", path, err)
	}
	for _, entry := range state.Entries {
		if !entry.Postings.Ordered() {
			return nil, errors.Newf(errors.ErrIndexCorrupt, http.StatusInternalServerError,
				"snapshot %s term %q has unordered postings", path, entry.Term)
		}
	}
	return &state, nil
}

// list returns snapshot paths sorted oldest-first. Names embed a nanosecond
// timestamp, so lexical order is creation order.
func (s *Store) list() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot directory: %w", err)
	}
	var paths []string
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".qvsx") {
			continue
		}
		paths = append(paths, filepath.Join(s.dataDir, de.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Store) prune() {
	paths, err := s.list()
	if err != nil {
		s.logger.Error("snapshot prune failed", "error", err)
		return
	}
	for len(paths) > s.keep {
		if err := os.Remove(paths[0]); err != nil {
			s.logger.Error("removing old snapshot failed", "path", paths[0], "error", err)
			return
		}
		s.logger.Debug("old snapshot pruned", "path", paths[0])
		paths = paths[1:]
	}
}
