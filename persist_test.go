package memdump

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureForSave(t *testing.T) *Snapshot {
	t.Helper()
	layout := mustLayout(t,
		"1000-2000 r-xp 0 a.so",
		"2000-3000 r--p 1000 a.so",
		"5000-6000 rw-p 0",
	)
	snap, err := Capture(layout, &patternSource{}, WithTrailer([]byte("regs")))
	require.NoError(t, err)
	snap.PID = 4242
	snap.Comm = "target"
	t.Cleanup(func() { _ = snap.Close() })
	return snap
}

func TestSaveLoad(t *testing.T) {
	for _, c := range []Compression{NoCompression, ZstdCompression} {
		t.Run(c.String(), func(t *testing.T) {
			snap := captureForSave(t)
			base := DefaultBase(t.TempDir(), snap.PID)

			dataPath, metaPath, err := Save(snap, base, WithCompression(c))
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(dataPath, "4242_dump/4242.umd"+c.ext()), dataPath)
			assert.Equal(t, base+MetaExt, metaPath)

			entries, err := os.ReadDir(filepath.Dir(base))
			require.NoError(t, err)
			assert.Len(t, entries, 2, "temporaries are renamed away")

			loaded, err := Load(dataPath, metaPath)
			require.NoError(t, err)
			defer loaded.Close()

			assert.Equal(t, c == NoCompression, loaded.arena.Mapped())
			assert.Equal(t, snap.Layout().Regions(), loaded.Layout().Regions())
			assert.Equal(t, snap.Layout().Blocks(), loaded.Layout().Blocks())
			assert.True(t, bytes.Equal(snap.Bytes(), loaded.Bytes()))
			assert.Equal(t, []byte("regs"), loaded.Registers())
			assert.Equal(t, 4242, loaded.PID)
			assert.Equal(t, "target", loaded.Comm)

			want, err := snap.Read(0x1ff0, 32)
			require.NoError(t, err)
			got, err := loaded.Read(0x1ff0, 32)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestMetadata_Format(t *testing.T) {
	snap := captureForSave(t)
	_, metaPath, err := Save(snap, filepath.Join(t.TempDir(), "snap"))
	require.NoError(t, err)

	raw, err := os.ReadFile(metaPath)
	require.NoError(t, err)

	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &obj))
	assert.Contains(t, obj, "0x1000")
	assert.Contains(t, obj, "0x2000")
	assert.Contains(t, obj, "0x5000")
	assert.JSONEq(t, "12288", string(obj["RawDumpSize"]))
	assert.JSONEq(t, "12292", string(obj["DumpWithRegsAppendix"]))
	assert.JSONEq(t, `"none"`, string(obj["Compression"]))
	assert.JSONEq(t, `{
		"MemoryRangeSize": 4096,
		"DumpBufferOffset": 4096,
		"Permissions": "r--p",
		"MemMapName": "a.so",
		"FileOffset": 4096
	}`, string(obj["0x2000"]))
}

func TestMetadata_UnknownKeys(t *testing.T) {
	const doc = `{
		"0x2000": {"MemoryRangeSize": 4096, "DumpBufferOffset": 4096, "Permissions": "rw-p", "MemMapName": "[anonymous]", "FileOffset": 0},
		"0x1000": {"MemoryRangeSize": 4096, "DumpBufferOffset": 0, "Permissions": "r--p", "MemMapName": "[anonymous]", "FileOffset": 0, "Extra": true},
		"RawDumpSize": 8192,
		"DumpWithRegsAppendix": 8192,
		"Host": "deck"
	}`
	var meta Metadata
	require.NoError(t, json.Unmarshal([]byte(doc), &meta))
	require.Len(t, meta.Regions, 2)
	assert.Equal(t, uint64(0x1000), meta.Regions[0].Start)
	assert.Equal(t, NoCompression, meta.Compression)

	layout, err := meta.Layout()
	require.NoError(t, err)
	assert.Equal(t, 1, layout.NumBlocks())
	assert.True(t, layout.Contains(0x1800, 0x1000))
}

func TestMetadata_Corrupt(t *testing.T) {
	valid := func() Metadata {
		return Metadata{
			Regions: []RegionMeta{
				{Start: 0x1000, Size: 0x1000, Offset: 0},
				{Start: 0x4000, Size: 0x2000, Offset: 0x1000},
			},
			RawSize:         0x3000,
			SizeWithTrailer: 0x3000,
		}
	}
	_, err := valid().Layout()
	require.NoError(t, err)

	cases := map[string]func(m *Metadata){
		"trailer below raw": func(m *Metadata) { m.SizeWithTrailer = 0x2fff },
		"raw size":          func(m *Metadata) { m.RawSize = 0x4000; m.SizeWithTrailer = 0x4000 },
		"offset":            func(m *Metadata) { m.Regions[1].Offset = 0x1800 },
		"zero size":         func(m *Metadata) { m.Regions[0].Size = 0 },
		"overlap":           func(m *Metadata) { m.Regions[0].Size = 0x3001 },
		"wraps":             func(m *Metadata) { m.Regions[1].Size = ^uint64(0) },
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			m := valid()
			corrupt(&m)
			_, err := m.Layout()
			require.ErrorIs(t, err, ErrCorruptArtifact)
		})
	}
}

func TestLoad_Corrupt(t *testing.T) {
	snap := captureForSave(t)
	dir := t.TempDir()

	t.Run("truncated blob", func(t *testing.T) {
		dataPath, metaPath, err := Save(snap, filepath.Join(dir, "truncated"))
		require.NoError(t, err)
		require.NoError(t, os.Truncate(dataPath, int64(snap.Size()-1)))
		_, err = Load(dataPath, metaPath)
		require.ErrorIs(t, err, ErrCorruptArtifact)
	})

	t.Run("truncated zstd", func(t *testing.T) {
		dataPath, metaPath, err := Save(snap, filepath.Join(dir, "zstd"), WithCompression(ZstdCompression))
		require.NoError(t, err)

		meta, err := LoadMetadata(metaPath)
		require.NoError(t, err)
		meta.SizeWithTrailer++
		meta.RawSize = snap.RawSize()
		raw, err := json.Marshal(meta)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(metaPath, raw, 0o644))

		_, err = Load(dataPath, metaPath)
		require.ErrorIs(t, err, ErrCorruptArtifact)
	})

	t.Run("bad json", func(t *testing.T) {
		metaPath := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(metaPath, []byte(`{"0x1000": [`), 0o644))
		_, err := Load(filepath.Join(dir, "bad.umd"), metaPath)
		require.ErrorIs(t, err, ErrCorruptArtifact)
	})

	t.Run("bad region key", func(t *testing.T) {
		metaPath := filepath.Join(dir, "key.json")
		require.NoError(t, os.WriteFile(metaPath, []byte(`{"0xzz": {}}`), 0o644))
		_, err := LoadMetadata(metaPath)
		require.ErrorIs(t, err, ErrCorruptArtifact)
	})

	t.Run("missing blob", func(t *testing.T) {
		_, metaPath, err := Save(snap, filepath.Join(dir, "missing"))
		require.NoError(t, err)
		_, err = Load(filepath.Join(dir, "nothing.umd"), metaPath)
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestCompression_Text(t *testing.T) {
	for _, c := range []Compression{NoCompression, ZstdCompression} {
		text, err := c.MarshalText()
		require.NoError(t, err)
		var got Compression
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, c, got)
	}
	_, err := ParseCompression("lz4")
	assert.Error(t, err)
}
