package chunk

import "testing"

func TestIDMapSetGetDelete(t *testing.T) {
	m := newIDMap(16)
	m.set(42, idEntry{count: 7})

	e, ok := m.get(42)
	if !ok || e.count != 7 {
		t.Fatalf("get(42): got %+v, ok=%v", e, ok)
	}

	m.delete(42)
	if _, ok := m.get(42); ok {
		t.Errorf("expected entry to be gone after delete")
	}
}

func TestIDMapUpdateInsertsDefault(t *testing.T) {
	m := newIDMap(16)
	result := m.update(7, idEntry{count: 0}, func(cur idEntry) idEntry {
		cur.count++
		return cur
	})
	if result.count != 1 {
		t.Errorf("got count %d, want 1", result.count)
	}

	result = m.update(7, idEntry{count: 0}, func(cur idEntry) idEntry {
		cur.count++
		return cur
	})
	if result.count != 2 {
		t.Errorf("got count %d, want 2 (should build on existing entry)", result.count)
	}
}

func TestHashMapDistributesAcrossShards(t *testing.T) {
	m := newHashMap(16)
	var seen [32]byte
	for i := 0; i < 256; i++ {
		seen[0] = byte(i)
		m.set(seen, uint64(i))
	}
	if m.len() != 256 {
		t.Errorf("expected 256 entries, got %d", m.len())
	}

	used := map[uint32]bool{}
	for i := 0; i < 256; i++ {
		seen[0] = byte(i)
		used[hashShard(seen)] = true
	}
	if len(used) < 2 {
		t.Errorf("expected hashShard to spread keys across more than one bucket, used %d", len(used))
	}
}

func TestIDShardSpreadsSequentialIDs(t *testing.T) {
	used := map[uint32]bool{}
	for id := uint64(1); id <= 256; id++ {
		used[idShard(id)] = true
	}
	if len(used) < 2 {
		t.Errorf("expected idShard to spread sequential ids across more than one bucket, used %d", len(used))
	}
}
