package memdump

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const (
	DataExt = ".umd"
	MetaExt = ".json"

	keyRawSize         = "RawDumpSize"
	keySizeWithTrailer = "DumpWithRegsAppendix"
	keyPID             = "Pid"
	keyComm            = "Comm"
	keyCompression     = "Compression"
)

// RegionMeta is the persisted form of one region, keyed by its start address.
type RegionMeta struct {
	Start      uint64      `json:"-"`
	Size       uint64      `json:"MemoryRangeSize"`
	Offset     uint64      `json:"DumpBufferOffset"`
	Perms      Permissions `json:"Permissions"`
	Name       string      `json:"MemMapName"`
	FileOffset uint64      `json:"FileOffset"`
}

// Metadata is the sidecar of a snapshot blob. It is enough to rebuild the Layout
// without the dumped process.
type Metadata struct {
	Regions         []RegionMeta
	RawSize         uint64
	SizeWithTrailer uint64
	PID             int
	Comm            string
	Compression     Compression
}

func NewMetadata(snap *Snapshot) Metadata {
	layout := snap.Layout()
	meta := Metadata{
		Regions:         make([]RegionMeta, 0, layout.NumRegions()),
		RawSize:         snap.RawSize(),
		SizeWithTrailer: snap.Size(),
		PID:             snap.PID,
		Comm:            snap.Comm,
	}
	for i, region := range layout.regions {
		meta.Regions = append(meta.Regions, RegionMeta{
			Start:      region.Start,
			Size:       region.Size(),
			Offset:     layout.offsets[i],
			Perms:      region.Perms,
			Name:       region.Name,
			FileOffset: region.Offset,
		})
	}
	return meta
}

// MarshalJSON writes every region under its "0x<start>" key next to the scalar fields.
func (m Metadata) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(m.Regions)+5)
	for _, region := range m.Regions {
		obj["0x"+strconv.FormatUint(region.Start, 16)] = region
	}
	obj[keyRawSize] = m.RawSize
	obj[keySizeWithTrailer] = m.SizeWithTrailer
	obj[keyPID] = m.PID
	obj[keyComm] = m.Comm
	obj[keyCompression] = m.Compression
	return json.Marshal(obj)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	*m = Metadata{}
	scalars := map[string]any{
		keyRawSize:         &m.RawSize,
		keySizeWithTrailer: &m.SizeWithTrailer,
		keyPID:             &m.PID,
		keyComm:            &m.Comm,
		keyCompression:     &m.Compression,
	}
	for key, raw := range obj {
		if dst, ok := scalars[key]; ok {
			if err := json.Unmarshal(raw, dst); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			continue
		}
		hexStart, ok := strings.CutPrefix(key, "0x")
		if !ok {
			// unknown keys are informational
			continue
		}
		start, err := strconv.ParseUint(hexStart, 16, 64)
		if err != nil {
			return fmt.Errorf("region key %q: %w", key, err)
		}
		region := RegionMeta{Start: start}
		if err = json.Unmarshal(raw, &region); err != nil {
			return fmt.Errorf("region %q: %w", key, err)
		}
		m.Regions = append(m.Regions, region)
	}

	// object keys carry no order
	slices.SortFunc(m.Regions, func(a, b RegionMeta) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	return nil
}

// Layout rebuilds the Layout and checks it against the recorded sizes and offsets.
func (m Metadata) Layout() (*Layout, error) {
	if m.SizeWithTrailer < m.RawSize {
		return nil, fmt.Errorf("%w: size with trailer %d is below raw size %d", ErrCorruptArtifact, m.SizeWithTrailer, m.RawSize)
	}

	regions := make(Regions, len(m.Regions))
	for i, meta := range m.Regions {
		if meta.Size == 0 || meta.Start+meta.Size < meta.Start {
			return nil, fmt.Errorf("%w: region %#x has invalid size %d", ErrCorruptArtifact, meta.Start, meta.Size)
		}
		regions[i] = Region{
			Start:  meta.Start,
			End:    meta.Start + meta.Size,
			Perms:  meta.Perms,
			Offset: meta.FileOffset,
			Name:   meta.Name,
		}
	}

	layout, err := NewLayout(regions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArtifact, err)
	}
	for i, meta := range m.Regions {
		if layout.offsets[i] != meta.Offset {
			return nil, fmt.Errorf("%w: region %#x recorded at offset %d, layout puts it at %d",
				ErrCorruptArtifact, meta.Start, meta.Offset, layout.offsets[i])
		}
	}
	if layout.Size() != m.RawSize {
		return nil, fmt.Errorf("%w: regions cover %d bytes, raw size is %d", ErrCorruptArtifact, layout.Size(), m.RawSize)
	}
	return layout, nil
}

// DefaultBase returns <dir>/<pid>_dump/<pid>, the base path Save appends extensions to.
func DefaultBase(dir string, pid int) string {
	return filepath.Join(dir, fmt.Sprintf("%d_dump", pid), strconv.Itoa(pid))
}

// Save writes the snapshot buffer to base+".umd" and its metadata to base+".json".
// Both files are written to temporaries first and renamed into place.
func Save(snap *Snapshot, base string, opts ...Option) (dataPath, metaPath string, err error) {
	o := applyOptions(opts)
	if snap.closed {
		return "", "", ErrClosed
	}

	dataPath = base + DataExt + o.compression.ext()
	metaPath = base + MetaExt
	if err = os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return "", "", err
	}

	meta := NewMetadata(snap)
	meta.Compression = o.compression

	if err = writeFileAtomic(dataPath, func(w io.Writer) error {
		cw, closer, err := newCompressedWriter(w, o.compression)
		if err != nil {
			return err
		}
		if _, err = cw.Write(snap.arena.Bytes()); err != nil {
			return err
		}
		return closer.Close()
	}); err != nil {
		return "", "", err
	}

	if err = writeFileAtomic(metaPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		return enc.Encode(meta)
	}); err != nil {
		return "", "", err
	}

	o.logger.Info("snapshot saved",
		"data", dataPath,
		"meta", metaPath,
		"bytes", snap.Size(),
		"compression", o.compression,
	)
	return dataPath, metaPath, nil
}

func writeFileAtomic(path string, write func(io.Writer) error) (err error) {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	if err = write(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadMetadata reads and decodes a metadata sidecar.
func LoadMetadata(metaPath string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return meta, err
	}
	if err = json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("%w: %s: %w", ErrCorruptArtifact, metaPath, err)
	}
	return meta, nil
}

// Load reconstructs a snapshot written by Save. Uncompressed blobs are mapped read-only.
func Load(dataPath, metaPath string) (*Snapshot, error) {
	meta, err := LoadMetadata(metaPath)
	if err != nil {
		return nil, err
	}
	layout, err := meta.Layout()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var arena *Arena
	switch meta.Compression {
	case ZstdCompression:
		if arena, err = NewArena(meta.SizeWithTrailer); err != nil {
			return nil, err
		}
		if err = readCompressed(bufio.NewReader(f), arena.Bytes()); err != nil {
			_ = arena.Destroy()
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: %s is shorter than %d bytes", ErrCorruptArtifact, dataPath, meta.SizeWithTrailer)
			}
			return nil, fmt.Errorf("%w: %s: %w", ErrCorruptArtifact, dataPath, err)
		}
	default:
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if uint64(info.Size()) != meta.SizeWithTrailer {
			return nil, fmt.Errorf("%w: %s holds %d bytes, metadata expects %d",
				ErrCorruptArtifact, dataPath, info.Size(), meta.SizeWithTrailer)
		}
		if arena, err = mapArenaFile(f, info.Size()); err != nil {
			return nil, err
		}
	}

	snap, err := newSnapshot(layout, arena)
	if err != nil {
		_ = arena.Destroy()
		return nil, fmt.Errorf("%w: %w", ErrCorruptArtifact, err)
	}
	snap.PID = meta.PID
	snap.Comm = meta.Comm
	return snap, nil
}
