package chunk

import "testing"

func TestChunkFile_EvenDivision(t *testing.T) {
	plans := ChunkFile(20, 4)
	if len(plans) != 4 {
		t.Fatalf("got %d chunks, want 4", len(plans))
	}
	var sum int64
	for i, p := range plans {
		if p.Index != i {
			t.Errorf("plan %d has Index %d", i, p.Index)
		}
		sum += p.Length
	}
	if sum != 20 {
		t.Errorf("sum of lengths = %d, want 20", sum)
	}
}

func TestChunkFile_RemainderAbsorbedByLastChunk(t *testing.T) {
	plans := ChunkFile(25, 4)
	if len(plans) != 4 {
		t.Fatalf("got %d chunks, want 4", len(plans))
	}
	for i := 0; i < 3; i++ {
		if plans[i].Length != 6 {
			t.Errorf("plan %d length = %d, want 6", i, plans[i].Length)
		}
	}
	last := plans[3]
	if last.Length != 7 {
		t.Errorf("last chunk length = %d, want 7", last.Length)
	}
	if last.Offset != 18 {
		t.Errorf("last chunk offset = %d, want 18", last.Offset)
	}
}

func TestChunkFile_OffsetsContiguousAndIncreasing(t *testing.T) {
	plans := ChunkFile(101, 7)
	var want int64
	for _, p := range plans {
		if p.Offset != want {
			t.Fatalf("offset = %d, want %d", p.Offset, want)
		}
		want += p.Length
	}
	if want != 101 {
		t.Errorf("sum of lengths = %d, want 101", want)
	}
}

func TestChunkFile_ZeroChunksReturnsEmpty(t *testing.T) {
	if plans := ChunkFile(100, 0); plans != nil {
		t.Errorf("ChunkFile(100, 0) = %v, want nil", plans)
	}
}

func TestChunkFile_EmptyFileProducesNZeroLengthChunks(t *testing.T) {
	plans := ChunkFile(0, 3)
	if len(plans) != 3 {
		t.Fatalf("got %d chunks, want 3", len(plans))
	}
	for i, p := range plans {
		if p.Length != 0 || p.Offset != 0 {
			t.Errorf("plan %d = %+v, want zero-length at offset 0", i, p)
		}
		if p.Index != i {
			t.Errorf("plan %d has Index %d", i, p.Index)
		}
	}
}

func TestChunkFile_SingleChunkCoversWholeFile(t *testing.T) {
	plans := ChunkFile(4096, 1)
	if len(plans) != 1 {
		t.Fatalf("got %d chunks, want 1", len(plans))
	}
	if plans[0].Offset != 0 || plans[0].Length != 4096 {
		t.Errorf("single chunk = %+v", plans[0])
	}
}

func TestAutoChunkCount_Tiering(t *testing.T) {
	cases := []struct {
		size int64
		want int
	}{
		{1024, 1},
		{50 * 1024 * 1024, 2},
		{500 * 1024 * 1024, 4},
		{5 * 1024 * 1024 * 1024, 8},
		{20 * 1024 * 1024 * 1024, 16},
	}
	for _, c := range cases {
		got := AutoChunkCount(c.size, 64)
		if got != c.want {
			t.Errorf("AutoChunkCount(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestAutoChunkCount_ClampedToHardwareParallelism(t *testing.T) {
	got := AutoChunkCount(20*1024*1024*1024, 4)
	if got != 4 {
		t.Errorf("AutoChunkCount = %d, want clamped to 4", got)
	}
}

func TestAutoChunkCount_ZeroHardwareParallelismMeansNoClamp(t *testing.T) {
	got := AutoChunkCount(20*1024*1024*1024, 0)
	if got != 16 {
		t.Errorf("AutoChunkCount = %d, want 16 (no clamp applied)", got)
	}
}
