package sarc

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// manualArchive builds an archive from explicit entries. Payload bytes fill
// [Offset, Offset+Length) with fill[i]; the archive ends at size.
func manualArchive(t *testing.T, dirBlockLen uint32, entries []Entry, fill []byte, size int) []byte {
	t.Helper()

	h := Header{Version: Version, DirBlockLen: dirBlockLen, Entries: entries}
	head, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	out := make([]byte, size)
	copy(out, head)
	for i, e := range entries {
		if e.Offset == 0 {
			continue
		}
		for j := int(e.Offset); j < int(e.Offset+e.Length); j++ {
			out[j] = fill[i]
		}
	}

	return out
}

func scenarioArchive(t *testing.T) []byte {
	t.Helper()

	return manualArchive(t, 84, []Entry{
		{Path: "e0", NameLen: 4, Offset: 100, Length: 50},
		{Path: "e1", NameLen: 4, Offset: 150, Length: 80},
		{Path: "e2", NameLen: 4, Offset: 230, Length: 20},
	}, []byte{'a', 'b', 'c'}, 250)
}

func samplePack(t *testing.T) ([]byte, *Header) {
	t.Helper()

	data, h, err := Pack([]File{
		{Path: `a\b.bin`, Data: []byte("hello")},
		{Path: "link", Symlink: true, Size: 9},
		{Path: "./c.txt", Data: []byte("xyz")},
	}, Options{})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	return data, h
}

func payload(t *testing.T, archive []byte, name string) []byte {
	t.Helper()

	h, err := ParseHeader(archive)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}

	e, ok := h.Find(name)
	if !ok {
		t.Fatalf("entry %s missing", name)
	}

	return archive[e.Offset : e.Offset+e.Length]
}

func TestPackRoundTrip(t *testing.T) {
	t.Parallel()

	data, packed := samplePack(t)

	h, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}

	if h.DataStart() != 80 || len(data) != 91 {
		t.Fatalf("data start=%d size=%d", h.DataStart(), len(data))
	}

	want := []Entry{
		{Path: "a/b.bin", Offset: 80, Length: 5, NameLen: 8, OffsetMetaOffset: 28, SizeMetaOffset: 32},
		{Path: "link", Offset: 0, Length: 9, NameLen: 4, OffsetMetaOffset: 44, SizeMetaOffset: 48, IsSymlink: true},
		{Path: "c.txt", Offset: 88, Length: 3, NameLen: 8, OffsetMetaOffset: 64, SizeMetaOffset: 68},
	}
	if len(h.Entries) != len(want) {
		t.Fatalf("entries=%d", len(h.Entries))
	}
	for i := range want {
		if h.Entries[i] != want[i] {
			t.Fatalf("entry %d=%+v, want %+v", i, h.Entries[i], want[i])
		}
		if packed.Entries[i] != want[i] {
			t.Fatalf("packed entry %d=%+v, want %+v", i, packed.Entries[i], want[i])
		}
	}

	head, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if !bytes.Equal(head, data[:h.DataStart()]) {
		t.Fatal("header round trip differs")
	}

	var w bytes.Buffer
	if err := WriteHeader(&w, h); err != nil || !bytes.Equal(w.Bytes(), head) {
		t.Fatalf("WriteHeader err=%v", err)
	}

	if got := payload(t, data, "a/b.bin"); string(got) != "hello" {
		t.Fatalf("payload=%q", got)
	}
}

func TestScenarioRoundTrip(t *testing.T) {
	t.Parallel()

	data := scenarioArchive(t)
	h, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}

	head, err := h.MarshalBinary()
	if err != nil || !bytes.Equal(head, data[:100]) {
		t.Fatalf("round trip err=%v", err)
	}
}

func TestReadHeaderErrors(t *testing.T) {
	t.Parallel()

	good := scenarioArchive(t)
	badMagic := bytes.Clone(good)
	badMagic[4] = 'X'
	badVersion := bytes.Clone(good)
	badVersion[8] = 3
	badDir := bytes.Clone(good)
	badDir[12] = 0xff
	badDir[13] = 0xff

	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{name: "short", data: good[:10], want: ErrOutOfData},
		{name: "magic", data: badMagic, want: ErrParse},
		{name: "version", data: badVersion, want: ErrParse},
		{name: "directory past end", data: badDir, want: ErrOutOfData},
		{name: "payload past end", data: good[:240], want: ErrOutOfData},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := ParseHeader(tc.data); !errors.Is(err, tc.want) {
				t.Fatalf("err=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestExpandScenario(t *testing.T) {
	t.Parallel()

	archive := scenarioArchive(t)
	h, _ := ParseHeader(archive)
	e1, _ := h.Find("e1")
	e2, _ := h.Find("e2")

	blob := bytes.Repeat([]byte{'n'}, 100)
	out, plan, err := Expand(archive, "e1", blob)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	wantPatches := []HeaderPatch{
		{Offset: e2.OffsetMetaOffset, Value: 250},
		{Offset: e1.SizeMetaOffset, Value: 100},
	}
	if len(plan.Patches) != len(wantPatches) {
		t.Fatalf("patches=%+v", plan.Patches)
	}
	for i := range wantPatches {
		if plan.Patches[i] != wantPatches[i] {
			t.Fatalf("patch %d=%+v, want %+v", i, plan.Patches[i], wantPatches[i])
		}
	}

	if plan.SpliceOffset != 150 || plan.SpliceRemove != 80 || plan.Delta != 20 {
		t.Fatalf("plan=%+v", plan)
	}

	// The old archive is 250 bytes and grows by 20.
	if len(out) != 270 {
		t.Fatalf("len=%d, want 270", len(out))
	}

	if got := payload(t, out, "e1"); !bytes.Equal(got, blob) {
		t.Fatal("e1 payload differs")
	}
	if got := payload(t, out, "e0"); !bytes.Equal(got, bytes.Repeat([]byte{'a'}, 50)) {
		t.Fatal("e0 payload changed")
	}
	if got := payload(t, out, "e2"); !bytes.Equal(got, bytes.Repeat([]byte{'c'}, 20)) {
		t.Fatal("e2 payload changed")
	}
	if !bytes.Equal(archive, scenarioArchive(t)) {
		t.Fatal("input archive mutated")
	}
}

func TestExpandConservation(t *testing.T) {
	t.Parallel()

	data, _ := samplePack(t)

	testCases := []struct {
		name    string
		entry   string
		payload []byte
	}{
		{name: "shrink first", entry: "a/b.bin", payload: []byte("hi")},
		{name: "grow first", entry: "a/b.bin", payload: []byte("hello, world")},
		{name: "grow last", entry: "c.txt", payload: []byte("abcdefgh")},
		{name: "empty last", entry: "c.txt", payload: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out, plan, err := Expand(data, tc.entry, tc.payload)
			if err != nil {
				t.Fatalf("Expand: %v", err)
			}

			if int64(len(out)) != int64(len(data))+plan.Delta {
				t.Fatalf("len=%d, want %d", len(out), int64(len(data))+plan.Delta)
			}
			if got := payload(t, out, tc.entry); !bytes.Equal(got, tc.payload) {
				t.Fatalf("payload=%q", got)
			}

			for _, other := range []string{"a/b.bin", "c.txt"} {
				if other == tc.entry {
					continue
				}
				if !bytes.Equal(payload(t, out, other), payload(t, data, other)) {
					t.Fatalf("%s changed", other)
				}
			}
		})
	}
}

func TestExpandRejects(t *testing.T) {
	t.Parallel()

	data, _ := samplePack(t)
	if _, _, err := Expand(data, "link", []byte("x")); !errors.Is(err, ErrSymlink) {
		t.Fatalf("symlink err=%v", err)
	}
	if _, _, err := Expand(data, "missing", []byte("x")); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("missing err=%v", err)
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	data, _ := samplePack(t)

	_, err := Merge(data, "A/B.BIN", []byte("HELLO"))
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("paths are case sensitive, err=%v", err)
	}

	out, err := Merge(data, `a\b.bin`, []byte("HELLO"))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(out) != len(data) || string(payload(t, out, "a/b.bin")) != "HELLO" {
		t.Fatal("merge did not overwrite payload")
	}
	if string(payload(t, data, "a/b.bin")) != "hello" {
		t.Fatal("input archive mutated")
	}

	if _, err := Merge(data, "a/b.bin", []byte("toolong")); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("size mismatch err=%v", err)
	}
}

func TestRebuildIdentity(t *testing.T) {
	t.Parallel()

	for name, archive := range map[string][]byte{
		"scenario": scenarioArchive(t),
		"packed":   func() []byte { d, _ := samplePack(t); return d }(),
	} {
		out, err := Rebuild(archive, nil, Options{})
		if err != nil {
			t.Fatalf("%s: Rebuild: %v", name, err)
		}
		if !bytes.Equal(out, archive) {
			t.Fatalf("%s: unchanged rebuild differs", name)
		}
	}

	data, _ := samplePack(t)
	merged, _ := Merge(data, "c.txt", []byte("XYZ"))
	rebuilt, err := Rebuild(data, map[string][]byte{"c.txt": []byte("XYZ")}, Options{})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if !bytes.Equal(rebuilt, merged) {
		t.Fatal("equal-length rebuild differs from merge")
	}
}

func TestRebuildResize(t *testing.T) {
	t.Parallel()

	archive := scenarioArchive(t)
	out, err := Rebuild(archive, map[string][]byte{
		"e0": bytes.Repeat([]byte{'x'}, 53),
		"e2": []byte("tail"),
	}, Options{})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	h, err := ParseHeader(out)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}

	wantOffsets := map[string]uint32{"e0": 100, "e1": 156, "e2": 236}
	for _, e := range h.Entries {
		if e.Offset != wantOffsets[e.Path] {
			t.Fatalf("%s offset=%d, want %d", e.Path, e.Offset, wantOffsets[e.Path])
		}
		if e.Offset%DefaultAlignment != 0 {
			t.Fatalf("%s offset %d not aligned", e.Path, e.Offset)
		}
	}

	if got := payload(t, out, "e1"); !bytes.Equal(got, bytes.Repeat([]byte{'b'}, 80)) {
		t.Fatal("e1 payload changed")
	}
	if string(payload(t, out, "e2")) != "tail" || len(out) != 240 {
		t.Fatalf("e2=%q len=%d", payload(t, out, "e2"), len(out))
	}
}

func TestReaderAndExtract(t *testing.T) {
	t.Parallel()

	data, _ := samplePack(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.sarc")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	if got, err := r.ReadEntry("c.txt"); err != nil || string(got) != "xyz" {
		t.Fatalf("ReadEntry=%q err=%v", got, err)
	}
	if _, err := r.ReadEntry("link"); !errors.Is(err, ErrSymlink) {
		t.Fatalf("symlink err=%v", err)
	}

	var done atomic.Int32
	out := filepath.Join(dir, "out")
	err = r.Extract(context.Background(), out, ExtractOptions{
		MaxWorkers: 2,
		OnEntryDone: func(Entry, string) {
			done.Add(1)
		},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if done.Load() != 2 {
		t.Fatalf("done=%d, want 2", done.Load())
	}

	got, err := os.ReadFile(filepath.Join(out, "a", "b.bin"))
	if err != nil || string(got) != "hello" {
		t.Fatalf("extracted=%q err=%v", got, err)
	}

	entries, err := ListEntries(path)
	if err != nil || len(entries) != 3 {
		t.Fatalf("ListEntries=%d err=%v", len(entries), err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := r.ReadEntry("c.txt"); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed err=%v", err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	t.Parallel()

	archive := manualArchive(t, 32, []Entry{{Path: "../evil", NameLen: 8, Offset: 48, Length: 2}}, []byte{'x'}, 50)
	r, err := NewReaderFromReaderAt(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("NewReaderFromReaderAt: %v", err)
	}

	err = r.Extract(context.Background(), t.TempDir(), ExtractOptions{})
	if !errors.Is(err, ErrInvalidExtractPath) {
		t.Fatalf("err=%v", err)
	}
}

func TestFirstFailurePrefersRealError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		want error
		name string
		errs []error
	}{
		{name: "none", errs: []error{nil, nil}},
		{name: "sibling canceled first", errs: []error{nil, context.Canceled, os.ErrPermission, context.Canceled}, want: os.ErrPermission},
		{name: "only canceled", errs: []error{context.Canceled, nil}, want: context.Canceled},
		{name: "first real wins", errs: []error{ErrEntryNotFound, os.ErrPermission}, want: ErrEntryNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ch := make(chan error, len(tc.errs))
			for _, err := range tc.errs {
				ch <- err
			}
			close(ch)

			if got := firstFailure(ch); got != tc.want {
				t.Fatalf("firstFailure=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestFileWrappers(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scenario.sarc")
	if err := os.WriteFile(path, scenarioArchive(t), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := MergeFile(ctx, path, "e2", []byte("too short")); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("MergeFile err=%v", err)
	}
	if got, _ := os.ReadFile(path); !bytes.Equal(got, scenarioArchive(t)) {
		t.Fatal("failed merge modified the archive")
	}

	plan, err := ExpandFile(ctx, path, "e0", []byte("short"))
	if err != nil || plan.Delta != -45 {
		t.Fatalf("ExpandFile plan=%+v err=%v", plan, err)
	}

	if got, err := ReadEntryFile(path, "e0"); err != nil || string(got) != "short" {
		t.Fatalf("ReadEntryFile=%q err=%v", got, err)
	}

	if err := RebuildFile(ctx, path, map[string][]byte{"e1": []byte("mid")}, Options{}); err != nil {
		t.Fatalf("RebuildFile: %v", err)
	}
	if got, _ := ReadEntryFile(path, "e2"); !bytes.Equal(got, bytes.Repeat([]byte{'c'}, 20)) {
		t.Fatal("e2 payload changed")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := MergeFile(cancelled, path, "e1", []byte("MID")); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled err=%v", err)
	}
}
