package memdump

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestParseMapsRow(t *testing.T) {
	const rawLine = `00010000-00012000 r--s 00000000 103:08 9639724                           /home/deck/.local/share/Steam/compatibilitytools.d/GE-Proton10-24/files/share/wine/nls/Name   Space 1 `

	region, ok := parseMapsRow([]byte(rawLine))
	if !ok {
		t.Fatal("row not parsed")
	}
	if region.Start != 0x10000 || region.End != 0x12000 || region.Size() != 0x2000 {
		t.Fatalf("bad range %s", region)
	}
	if region.Perms != PermRead|PermShared || region.Perms.String() != "r--s" {
		t.Fatalf("bad permissions %s", region.Perms)
	}
	const name = "/home/deck/.local/share/Steam/compatibilitytools.d/GE-Proton10-24/files/share/wine/nls/Name   Space 1"
	if region.Name != name {
		t.Fatalf("bad name %q", region.Name)
	}
}

func TestParseMaps(t *testing.T) {
	const listing = `55d0c2a00000-55d0c2a02000 r--p 00000000 fd:01 1835044                    /usr/bin/cat
55d0c2a02000-55d0c2a07000 r-xp 00002000 fd:01 1835044                    /usr/bin/cat

7f2b3c000000-7f2b3c021000 rw-p 00000000 00:00 0 
7ffd5e8f0000-7ffd5e911000 rw-p 00000000 00:00 0                          [stack]
ffffffffff600000-ffffffffff601000 --xp 00000000 00:00 0                  [vsyscall]
`
	regions, err := ParseMaps(strings.NewReader(listing))
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 5 {
		t.Fatalf("expected 5 regions, got %d", len(regions))
	}

	t.Run("Offset", func(t *testing.T) {
		if regions[1].Offset != 0x2000 {
			t.Errorf("expected file offset 0x2000, got %#x", regions[1].Offset)
		}
	})

	t.Run("Anonymous", func(t *testing.T) {
		if regions[2].Name != AnonymousName {
			t.Errorf("expected %q, got %q", AnonymousName, regions[2].Name)
		}
		if regions[3].Name != "[stack]" {
			t.Errorf("expected [stack], got %q", regions[3].Name)
		}
	})

	t.Run("HighAddress", func(t *testing.T) {
		if regions[4].End != 0xffffffffff601000 || regions[4].Perms.Read() {
			t.Errorf("bad vsyscall region %s", regions[4])
		}
	})
}

func TestParseMaps_ShortRows(t *testing.T) {
	// rows without dev and inode columns
	regions, err := ParseMaps(strings.NewReader("1000-2000 r-xp 0 a.so\n2000-3000 r--p 1000 a.so\n5000-6000 rw-p 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 3 {
		t.Fatalf("expected 3 regions, got %d", len(regions))
	}
	if regions[0].Name != "a.so" || regions[1].Offset != 0x1000 || regions[2].Name != AnonymousName {
		t.Fatalf("unexpected regions %v", regions)
	}
}

func TestParseMaps_Malformed(t *testing.T) {
	for _, row := range []string{
		"zz-2000 r-xp 0 a.so",
		"1000 r-xp 0 a.so",
		"2000-1000 r-xp 0 a.so",
		"1000-2000 r-xp",
		"1000-2000 r- 0",
	} {
		_, err := ParseMaps(strings.NewReader(row))
		if !errors.Is(err, ErrLayoutUnavailable) {
			t.Errorf("%q: expected ErrLayoutUnavailable, got %v", row, err)
		}
	}
}

func TestOpenMaps_NoProcess(t *testing.T) {
	// pid_max never reaches this value
	_, err := OpenMaps(1 << 30)
	if !errors.Is(err, ErrLayoutUnavailable) {
		t.Fatalf("expected ErrLayoutUnavailable, got %v", err)
	}
}

func TestOpenMaps_Self(t *testing.T) {
	m, err := OpenMaps(os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	regions, err := m.Parse()
	if err != nil {
		t.Fatal(err)
	}
	// parse twice, the listing is rewound
	again, err := m.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) == 0 || len(again) == 0 {
		t.Fatal("no regions in /proc/self/maps")
	}

	layout, err := NewLayout(regions)
	if err != nil {
		t.Fatal(err)
	}
	checkBlocksStrict(t, regions, layout.Blocks())
}

func checkBlocksStrict(t *testing.T, regions []Region, blocks []Block) {
	t.Helper()

	// 1. Validate Total Byte Conservation
	var totalOri, totalBlk uint64
	for _, r := range regions {
		totalOri += r.Size()
	}
	for _, b := range blocks {
		totalBlk += b.Size()
	}
	if totalOri != totalBlk {
		t.Fatalf("CRITICAL: Byte count mismatch! Regions: %d, Blocks: %d", totalOri, totalBlk)
	}

	// 2. Validate ordering, gaps between blocks and buffer offsets
	var offset uint64
	for i, b := range blocks {
		if b.Seq != i {
			t.Fatalf("LOGIC ERROR: Block %d has sequence %d", i, b.Seq)
		}
		if b.Offset != offset {
			t.Fatalf("LOGIC ERROR: Block %d at offset %d, expected %d", i, b.Offset, offset)
		}
		offset += b.Size()
		if i > 0 && b.Start <= blocks[i-1].End {
			t.Fatalf("LOGIC ERROR: Block %d [..%X] and Block %d [%X..] touch or overlap",
				i-1, blocks[i-1].End, i, b.Start)
		}
	}

	// 3. Strict Pointer-Walking Coverage Test
	// Every region belongs to exactly one block, in order and without holes.
	bIdx := 0
	for i, ori := range regions {
		for bIdx < len(blocks) && blocks[bIdx].End <= ori.Start {
			bIdx++
		}
		if bIdx >= len(blocks) {
			t.Fatalf("DATA LOSS: Region %d at 0x%X is not covered (Block list exhausted)", i, ori.Start)
		}
		b := blocks[bIdx]
		if ori.Start < b.Start || ori.End > b.End {
			t.Fatalf("GAP DETECTED: Region %d [%X-%X] outside Block %d [%X-%X]", i, ori.Start, ori.End, bIdx, b.Start, b.End)
		}
		if i < b.First || i >= b.First+b.Count {
			t.Fatalf("LOGIC ERROR: Region %d not in Block %d index range [%d,+%d)", i, bIdx, b.First, b.Count)
		}
	}
	t.Logf("SUCCESS: Strict linear scan passed. %d regions -> %d blocks.", len(regions), len(blocks))
}
