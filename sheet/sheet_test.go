package sheet

import (
	"bytes"
	"errors"
	"log/slog"
	"reflect"
	"testing"

	"github.com/xuexu/cotw-mod-builder-sub000/adf"
	"github.com/xuexu/cotw-mod-builder-sub000/internal/adftest"
	"github.com/xuexu/cotw-mod-builder-sub000/patch"
)

func float(i uint32, attr uint32) adftest.Cell {
	return adftest.Cell{Type: uint8(TypeFloat), DataIndex: i, AttributeIndex: attr}
}

func boolean(i uint32) adftest.Cell {
	return adftest.Cell{Type: uint8(TypeBool), DataIndex: i}
}

func str(i uint32) adftest.Cell {
	return adftest.Cell{Type: uint8(TypeString), DataIndex: i}
}

func openBook(t *testing.T, data []byte) (*Book, *adf.File) {
	t.Helper()

	f, err := adf.Parse(data)
	if err != nil {
		t.Fatalf("adf.Parse: %v", err)
	}

	b, err := Open(f)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return b, f
}

func fieldOffset(t *testing.T, f *adf.File, path string) int64 {
	t.Helper()

	root, err := f.Root()
	if err != nil {
		t.Fatal(err)
	}

	v, err := root.Lookup(path)
	if err != nil {
		t.Fatalf("Lookup %s: %v", path, err)
	}

	return v.DataOffset
}

func planFor(t *testing.T, b *Book, sheet, coord string, desired Value, flags Flags) *Plan {
	t.Helper()

	view, err := b.Resolve(SheetName(sheet), coord)
	if err != nil {
		t.Fatalf("Resolve %s!%s: %v", sheet, coord, err)
	}

	plan, err := b.Plan(view, desired, flags)
	if err != nil {
		t.Fatalf("Plan %s!%s: %v", sheet, coord, err)
	}

	return plan
}

// checkSound applies plan to data and verifies that only the target slot
// changed, and that the committed mirror agrees with a fresh parse.
func checkSound(t *testing.T, data []byte, b *Book, plan *Plan, wantTarget Value) []byte {
	t.Helper()

	before, err := b.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	out, err := patch.ApplyBytes(data, plan.Writes)
	if err != nil {
		t.Fatalf("ApplyBytes: %v", err)
	}

	fresh, _ := openBook(t, out)
	after, err := fresh.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	for si := range before {
		for slot := range before[si] {
			isTarget := si == plan.View.SheetIdx && slot == plan.View.SlotIdx
			switch {
			case isTarget && !after[si][slot].Equal(wantTarget):
				t.Fatalf("target shows %s, want %s", after[si][slot], wantTarget)
			case !isTarget && !after[si][slot].Equal(before[si][slot]):
				t.Fatalf("sheet %d slot %d changed from %s to %s", si, slot, before[si][slot], after[si][slot])
			}
		}
	}

	b.Commit(plan)
	mirrored, err := b.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(normalize(mirrored), normalize(after)) {
		t.Fatal("committed mirror differs from reparsed file")
	}

	return out
}

// normalize drops nil/empty distinctions for DeepEqual.
func normalize(s [][]Value) [][]Value {
	for i := range s {
		for j := range s[i] {
			if len(s[i][j].Str) == 0 {
				s[i][j].Str = nil
			}
		}
	}

	return s
}

func TestParseCoordinate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in       string
		row, col int
	}{
		{in: "A1", row: 1, col: 1},
		{in: "z9", row: 9, col: 26},
		{in: "AA12", row: 12, col: 27},
		{in: "AZ3", row: 3, col: 52},
		{in: "BA100", row: 100, col: 53},
	}

	for _, tc := range testCases {
		row, col, err := ParseCoordinate(tc.in)
		if err != nil || row != tc.row || col != tc.col {
			t.Fatalf("%s -> %d,%d err=%v", tc.in, row, col, err)
		}
	}

	for _, bad := range []string{"", "12", "A", "A0", "1A", "Ä1"} {
		if _, _, err := ParseCoordinate(bad); !errors.Is(err, ErrCoordinateOutOfRange) {
			t.Fatalf("%q err=%v", bad, err)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	book := adftest.Book{
		Sheets: []adftest.Sheet{{Name: "S", Cols: 2, Rows: 2, CellIndex: []uint32{0, 1, 2, 0}}},
		Cells:  []adftest.Cell{float(1, 3), boolean(0), str(1)},
		Bools:  []bool{true},
		Strings: []string{
			"first",
			"second",
		},
		Values: []float32{1.5, 2.5},
	}
	data := book.Bytes()
	b, f := openBook(t, data)

	view, err := b.Resolve(SheetName("S"), "A2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if view.DefinitionIdx != 2 || view.CurrentType != TypeString || string(view.CurrentValue.Str) != "second" {
		t.Fatalf("view=%+v", view)
	}
	if view.CurrentValueOffset != fieldOffset(t, f, "StringData[1]") {
		t.Fatal("string value offset is not the string data")
	}
	if !bytes.HasPrefix(data[view.CurrentValueOffset:], []byte("second\x00")) {
		t.Fatal("string offset does not address the bytes")
	}

	view, err = b.Resolve(SheetIndex(0), "B2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if view.SlotIdx != 3 || view.CurrentValue.Float != 2.5 || view.DefinitionAttributeIdx != 3 {
		t.Fatalf("view=%+v", view)
	}
	if view.SlotOffset != fieldOffset(t, f, "Sheet[0].CellIndex[3]") ||
		view.DefinitionDataIndexOffset != fieldOffset(t, f, "Cell[0].DataIndex") ||
		view.CurrentValueOffset != fieldOffset(t, f, "ValueData[1]") {
		t.Fatalf("offsets=%+v", view)
	}

	if _, err := b.Resolve(SheetName("missing"), "A1"); !errors.Is(err, ErrNoSuchSheet) {
		t.Fatalf("sheet err=%v", err)
	}
	if _, err := b.Resolve(SheetName("S"), "C1"); !errors.Is(err, ErrCoordinateOutOfRange) {
		t.Fatalf("coordinate err=%v", err)
	}

	bad := book
	bad.Cells = []adftest.Cell{{Type: 7}, boolean(0), str(1)}
	b, _ = openBook(t, bad.Bytes())
	if _, err := b.Resolve(SheetName("S"), "A1"); !errors.Is(err, ErrUnknownCellType) {
		t.Fatalf("type err=%v", err)
	}
}

func TestOpenRejectsOtherShapes(t *testing.T) {
	t.Parallel()

	img := adftest.Image{
		Types:     adftest.BookTypes()[2:3],
		Instances: []adftest.Instance{{Name: "cell", TypeHash: adftest.TypeCell, Data: make([]byte, 12)}},
	}
	f, err := adf.Parse(img.Bytes())
	if err != nil {
		t.Fatalf("adf.Parse: %v", err)
	}

	if _, err := Open(f); !errors.Is(err, ErrIncorrectFileFormat) {
		t.Fatalf("err=%v", err)
	}
}

func TestScenarioNoop(t *testing.T) {
	t.Parallel()

	data := (&adftest.Book{
		Sheets: []adftest.Sheet{{Name: "S", Cols: 1, Rows: 1, CellIndex: []uint32{0}}},
		Cells:  []adftest.Cell{float(0, 0)},
		Values: []float32{5},
	}).Bytes()
	b, _ := openBook(t, data)

	plan := planFor(t, b, "S", "A1", Float(5), Flags{})
	if plan.Step != StepNoop || len(plan.Writes) != 0 {
		t.Fatalf("plan=%+v", plan)
	}

	out, err := patch.ApplyBytes(data, plan.Writes)
	if err != nil || !bytes.Equal(out, data) {
		t.Fatalf("no-op changed bytes, err=%v", err)
	}
}

func TestScenarioExactHitSoloDefinition(t *testing.T) {
	t.Parallel()

	cells := make([]adftest.Cell, 8)
	for i := range 7 {
		cells[i] = boolean(0)
	}
	cells[7] = float(2, 0)

	data := (&adftest.Book{
		Sheets: []adftest.Sheet{
			{Name: "S", Cols: 1, Rows: 1, CellIndex: []uint32{7}},
			{Name: "other", Cols: 7, Rows: 1, CellIndex: []uint32{0, 1, 2, 3, 4, 5, 6}},
		},
		Cells:  cells,
		Bools:  []bool{false},
		Values: []float32{1, 2, 3, 4},
	}).Bytes()
	b, f := openBook(t, data)

	plan := planFor(t, b, "S", "A1", Float(4), Flags{})
	want := []patch.Write{{Offset: fieldOffset(t, f, "Cell[7].DataIndex"), Value: patch.U32(3), Width: 4}}
	if plan.Step != StepRepointSolo || !reflect.DeepEqual(plan.Writes, want) {
		t.Fatalf("plan step=%s writes=%+v", plan.Step, plan.Writes)
	}

	checkSound(t, data, b, plan, Float(4))
}

func sharedBook() adftest.Book {
	cells := make([]adftest.Cell, 12)
	for i := range cells {
		cells[i] = boolean(0)
	}
	cells[7] = float(2, 5)

	return adftest.Book{
		Sheets: []adftest.Sheet{
			{Name: "S", Cols: 1, Rows: 2, CellIndex: []uint32{7, 7}},
			{Name: "T", Cols: 10, Rows: 1, CellIndex: []uint32{0, 1, 2, 3, 4, 5, 6, 8, 9, 10}},
		},
		Cells:  cells,
		Bools:  []bool{false},
		Values: []float32{1, 2, 3, 4, 5},
	}
}

func sharedBytes() []byte {
	book := sharedBook()
	return book.Bytes()
}

func TestScenarioSharedDefinitionUnusedAvailable(t *testing.T) {
	t.Parallel()

	data := sharedBytes()
	b, f := openBook(t, data)

	plan := planFor(t, b, "S", "A1", Float(5), Flags{})
	want := []patch.Write{
		{Offset: fieldOffset(t, f, "Cell[11].DataIndex"), Value: patch.U32(4), Width: 4},
		{Offset: fieldOffset(t, f, "Cell[11].Type"), Value: patch.U32(uint32(TypeFloat)), Width: 1},
		{Offset: fieldOffset(t, f, "Cell[11].AttributeIndex"), Value: patch.U32(5), Width: 4},
		{Offset: fieldOffset(t, f, "Sheet[0].CellIndex[0]"), Value: patch.U32(11), Width: 4},
	}
	if plan.Step != StepReuseUnused || !reflect.DeepEqual(plan.Writes, want) {
		t.Fatalf("plan step=%s writes=%+v", plan.Step, plan.Writes)
	}

	out := checkSound(t, data, b, plan, Float(5))
	fresh, _ := openBook(t, out)
	a2, _ := fresh.Resolve(SheetName("S"), "A2")
	if a2.CurrentValue.Float != 3 || a2.DefinitionIdx != 7 {
		t.Fatalf("A2=%+v", a2)
	}
}

func TestScenarioClosestValue(t *testing.T) {
	t.Parallel()

	data := (&adftest.Book{
		Sheets: []adftest.Sheet{{Name: "S", Cols: 2, Rows: 2, CellIndex: []uint32{0, 1, 2, 3}}},
		Cells:  []adftest.Cell{float(0, 0), float(0, 0), float(1, 0), float(2, 0)},
		Values: []float32{1, 5, 9},
	}).Bytes()
	b, f := openBook(t, data)

	plan := planFor(t, b, "S", "A1", Float(7.5), Flags{})
	want := []patch.Write{{Offset: fieldOffset(t, f, "Cell[0].DataIndex"), Value: patch.U32(2), Width: 4}}
	if plan.Step != StepClosestSolo || !reflect.DeepEqual(plan.Writes, want) || plan.AffectsOthers {
		t.Fatalf("plan=%+v", plan)
	}

	checkSound(t, data, b, plan, Float(9))
}

func TestScenarioStringOverwrite(t *testing.T) {
	t.Parallel()

	data := (&adftest.Book{
		Sheets:  []adftest.Sheet{{Name: "S", Cols: 2, Rows: 2, CellIndex: []uint32{0, 1, 2, 3}}},
		Cells:   []adftest.Cell{str(0), str(1), str(2), str(3)},
		Strings: []string{"x", "y", "z", "ABC"},
	}).Bytes()
	b, f := openBook(t, data)

	plan := planFor(t, b, "S", "B2", String([]byte("XYZ")), Flags{})
	want := []patch.Write{{Offset: fieldOffset(t, f, "StringData[3]"), Value: patch.String([]byte("XYZ"))}}
	if plan.Step != StepOverwrite || !reflect.DeepEqual(plan.Writes, want) {
		t.Fatalf("plan step=%s writes=%+v", plan.Step, plan.Writes)
	}

	checkSound(t, data, b, plan, String([]byte("XYZ")))
}

func TestStringLengthChangeNeedsOtherPath(t *testing.T) {
	t.Parallel()

	data := (&adftest.Book{
		Sheets:  []adftest.Sheet{{Name: "S", Cols: 1, Rows: 1, CellIndex: []uint32{0}}},
		Cells:   []adftest.Cell{str(0)},
		Strings: []string{"ABC"},
	}).Bytes()
	b, _ := openBook(t, data)

	view, _ := b.Resolve(SheetName("S"), "A1")
	_, err := b.Plan(view, String([]byte("LONGER")), Flags{Force: true})

	var cre *CannotRealizeError
	if !errors.As(err, &cre) || !errors.Is(err, ErrCannotRealize) {
		t.Fatalf("err=%v", err)
	}
	if last := cre.Trace[len(cre.Trace)-1]; last.Step != StepFail {
		t.Fatalf("trace=%+v", cre.Trace)
	}
}

func TestTypeChangeWithEqualPayloadProceeds(t *testing.T) {
	t.Parallel()

	data := (&adftest.Book{
		Sheets: []adftest.Sheet{{Name: "S", Cols: 2, Rows: 1, CellIndex: []uint32{0, 1}}},
		Cells:  []adftest.Cell{boolean(0), boolean(1)},
		Bools:  []bool{true, false},
		Values: []float32{1},
	}).Bytes()
	b, f := openBook(t, data)

	plan := planFor(t, b, "S", "A1", Float(1), Flags{})
	want := []patch.Write{
		{Offset: fieldOffset(t, f, "Cell[0].DataIndex"), Value: patch.U32(0), Width: 4},
		{Offset: fieldOffset(t, f, "Cell[0].Type"), Value: patch.U32(uint32(TypeFloat)), Width: 1},
	}
	if plan.Step != StepRepointSolo || !reflect.DeepEqual(plan.Writes, want) {
		t.Fatalf("plan step=%s writes=%+v", plan.Step, plan.Writes)
	}

	checkSound(t, data, b, plan, Float(1))
}

func TestSkipOverwriteFallsThroughToClosest(t *testing.T) {
	t.Parallel()

	book := adftest.Book{
		Sheets: []adftest.Sheet{{Name: "S", Cols: 1, Rows: 1, CellIndex: []uint32{0}}},
		Cells:  []adftest.Cell{float(0, 0)},
		Values: []float32{1, 10},
	}
	data := book.Bytes()

	b, _ := openBook(t, data)
	if plan := planFor(t, b, "S", "A1", Float(7), Flags{}); plan.Step != StepOverwrite {
		t.Fatalf("without skip step=%s", plan.Step)
	}

	plan := planFor(t, b, "S", "A1", Float(7), Flags{SkipOverwrite: true})
	if plan.Step != StepClosestSolo {
		t.Fatalf("with skip step=%s", plan.Step)
	}
	for _, r := range plan.Trace {
		if r.Fired && (r.Step == StepOverwrite || r.Step == StepFillSolo || r.Step == StepFillUnused) {
			t.Fatalf("step 2 fired: %+v", r)
		}
	}

	checkSound(t, data, b, plan, Float(10))
}

func TestForce(t *testing.T) {
	t.Parallel()

	data := (&adftest.Book{
		Sheets:  []adftest.Sheet{{Name: "S", Cols: 2, Rows: 1, CellIndex: []uint32{0, 0}}},
		Cells:   []adftest.Cell{boolean(0)},
		Bools:   []bool{false},
		Strings: []string{"yes"},
	}).Bytes()
	b, f := openBook(t, data)

	view, _ := b.Resolve(SheetName("S"), "A1")
	if _, err := b.Plan(view, Bool(true), Flags{}); !errors.Is(err, ErrCannotRealize) {
		t.Fatalf("without force err=%v", err)
	}

	if _, err := b.Plan(view, String([]byte("yes")), Flags{Force: true}); !errors.Is(err, ErrCannotRealize) {
		t.Fatalf("force across types err=%v", err)
	}

	plan, err := b.Plan(view, Bool(true), Flags{Force: true})
	if err != nil {
		t.Fatalf("force: %v", err)
	}
	want := []patch.Write{{Offset: fieldOffset(t, f, "BoolData[0]"), Value: patch.U32(1), Width: 4}}
	if plan.Step != StepForce || !plan.AffectsOthers || !reflect.DeepEqual(plan.Writes, want) {
		t.Fatalf("plan=%+v", plan)
	}
}

func TestExactHitBeatsClosest(t *testing.T) {
	t.Parallel()

	data := (&adftest.Book{
		Sheets: []adftest.Sheet{{Name: "S", Cols: 2, Rows: 1, CellIndex: []uint32{0, 0}}},
		Cells:  []adftest.Cell{float(0, 0), boolean(0)},
		Bools:  []bool{false},
		Values: []float32{4.1, 4},
	}).Bytes()
	b, _ := openBook(t, data)

	plan := planFor(t, b, "S", "A1", Float(4), Flags{SkipOverwrite: true})
	if plan.Step != StepReuseUnused {
		t.Fatalf("step=%s", plan.Step)
	}

	checkSound(t, data, b, plan, Float(4))
}

func TestUnusedDefinitionAcrossSheets(t *testing.T) {
	t.Parallel()

	data := (&adftest.Book{
		Sheets: []adftest.Sheet{
			{Name: "S", Cols: 1, Rows: 1, CellIndex: []uint32{1}},
			{Name: "T", Cols: 2, Rows: 1, CellIndex: []uint32{0, 1}},
		},
		Cells:  []adftest.Cell{float(0, 0), float(0, 0), float(0, 0)},
		Values: []float32{1, 2},
	}).Bytes()
	b, f := openBook(t, data)

	plan := planFor(t, b, "S", "A1", Float(2), Flags{})
	if plan.Step != StepReuseUnused {
		t.Fatalf("step=%s", plan.Step)
	}
	if plan.Writes[0].Offset != fieldOffset(t, f, "Cell[2].DataIndex") {
		t.Fatalf("claimed wrong definition: %+v", plan.Writes)
	}

	checkSound(t, data, b, plan, Float(2))
	if _, ok := b.unusedDef(); ok {
		t.Fatal("claimed definition still unused after Commit")
	}
}

func TestSharedClosestAffectsOthers(t *testing.T) {
	t.Parallel()

	data := (&adftest.Book{
		Sheets: []adftest.Sheet{{Name: "S", Cols: 3, Rows: 1, CellIndex: []uint32{0, 0, 1}}},
		Cells:  []adftest.Cell{float(0, 0), float(1, 0)},
		Values: []float32{1, 5, 9},
	}).Bytes()
	b, f := openBook(t, data)

	var logs bytes.Buffer
	flags := Flags{Logger: slog.New(slog.NewTextHandler(&logs, nil))}

	plan := planFor(t, b, "S", "A1", Float(7.5), flags)
	want := []patch.Write{{Offset: fieldOffset(t, f, "Cell[0].DataIndex"), Value: patch.U32(2), Width: 4}}
	if plan.Step != StepClosestAll || !plan.AffectsOthers || !reflect.DeepEqual(plan.Writes, want) {
		t.Fatalf("plan=%+v", plan)
	}
	if !bytes.Contains(logs.Bytes(), []byte("level=WARN")) {
		t.Fatalf("no warning logged: %s", logs.String())
	}
}

func TestVerboseTrace(t *testing.T) {
	t.Parallel()

	b, _ := openBook(t, sharedBytes())

	var logs bytes.Buffer
	flags := Flags{Verbose: true, Logger: slog.New(slog.NewTextHandler(&logs, nil))}
	plan := planFor(t, b, "S", "A1", Float(5), flags)

	if got := bytes.Count(logs.Bytes(), []byte("planner step")); got != len(plan.Trace) {
		t.Fatalf("logged %d steps, trace has %d", got, len(plan.Trace))
	}
}

func TestPlanDeterministic(t *testing.T) {
	t.Parallel()

	data := sharedBytes()
	b1, _ := openBook(t, data)
	b2, _ := openBook(t, data)

	for _, v := range []float32{5, 7.5, 1, 3} {
		p1 := planFor(t, b1, "S", "A2", Float(v), Flags{})
		p2 := planFor(t, b2, "S", "A2", Float(v), Flags{})
		if !reflect.DeepEqual(p1.Writes, p2.Writes) || p1.Step != p2.Step {
			t.Fatalf("value %v: plans differ", v)
		}
	}
}

func TestSoundnessAcrossValues(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		desired Value
		step    Step
	}{
		{desired: Float(1), step: StepReuseUnused},
		{desired: Float(5), step: StepReuseUnused},
		{desired: Float(3), step: StepNoop},
		{desired: Float(42), step: StepFillUnused},
		{desired: Bool(false), step: StepReuseDef},
	}

	for _, tc := range testCases {
		data := sharedBytes()
		b, _ := openBook(t, data)

		plan := planFor(t, b, "S", "A1", tc.desired, Flags{})
		if plan.Step != tc.step || plan.AffectsOthers {
			t.Fatalf("%s: step=%s affects=%v", tc.desired, plan.Step, plan.AffectsOthers)
		}

		checkSound(t, data, b, plan, tc.desired)
	}
}

func TestApplyCoordinateUpdatesBatch(t *testing.T) {
	t.Parallel()

	data := sharedBytes()
	out, plans, err := ApplyCoordinateUpdates(data, []CellEdit{
		{Sheet: SheetName("S"), Coord: "A1", Value: Float(5)},
		{Sheet: SheetName("S"), Coord: "A2", Value: Float(5)},
		{Sheet: SheetName("T"), Coord: "A1", Value: Float(2), Transform: patch.TransformMultiply},
	}, Flags{})
	if err == nil {
		t.Fatal("multiply on a bool cell succeeded")
	}
	if out != nil || plans != nil {
		t.Fatal("failed batch returned output")
	}

	out, plans, err = ApplyCoordinateUpdates(data, []CellEdit{
		{Sheet: SheetName("S"), Coord: "A1", Value: Float(5)},
		{Sheet: SheetName("S"), Coord: "A2", Value: Float(5)},
		{Sheet: SheetName("S"), Coord: "A1", Value: Float(2), Transform: patch.TransformMultiply},
	}, Flags{})
	if err != nil {
		t.Fatalf("ApplyCoordinateUpdates: %v", err)
	}

	if plans[0].Step != StepReuseUnused || plans[1].Step != StepReuseDef || plans[2].Step != StepFillUnused {
		t.Fatalf("steps %s %s %s", plans[0].Step, plans[1].Step, plans[2].Step)
	}

	b, _ := openBook(t, out)
	a1, _ := b.Resolve(SheetName("S"), "A1")
	a2, _ := b.Resolve(SheetName("S"), "A2")
	if a2.CurrentValue.Float != 5 || a2.DefinitionIdx != 11 {
		t.Fatalf("A2=%+v", a2)
	}
	// Definition 7 was released by both S cells and is claimed again.
	if a1.CurrentValue.Float != 10 || a1.DefinitionIdx != 7 {
		t.Fatalf("A1=%+v", a1)
	}
	if plans[2].View.CurrentValue.Float != 5 {
		t.Fatalf("third edit saw %s, want committed 5", plans[2].View.CurrentValue)
	}
}

func aliasedBook(spare bool) []byte {
	book := &adftest.Book{
		Sheets:      []adftest.Sheet{{Name: "S", Cols: 2, Rows: 1, CellIndex: []uint32{0, 1}}},
		Cells:       []adftest.Cell{str(0), str(1)},
		Strings:     []string{"AB", "AB"},
		StringAlias: map[int]int{1: 0},
	}
	if spare {
		book.Cells = append(book.Cells, str(2))
		book.Strings = append(book.Strings, "CD")
	}

	return book.Bytes()
}

func TestSharedStringBytesAreNotOverwritten(t *testing.T) {
	t.Parallel()

	data := aliasedBook(true)
	b, f := openBook(t, data)
	if fieldOffset(t, f, "StringData[0]") != fieldOffset(t, f, "StringData[1]") {
		t.Fatal("fixture strings do not share bytes")
	}

	desired := String([]byte("XY"))
	plan := planFor(t, b, "S", "A1", desired, Flags{})
	if plan.Step != StepFillSolo || plan.AffectsOthers {
		t.Fatalf("step=%s affects=%v", plan.Step, plan.AffectsOthers)
	}

	checkSound(t, data, b, plan, desired)
}

func TestSharedStringBytesNeedForce(t *testing.T) {
	t.Parallel()

	data := aliasedBook(false)
	b, _ := openBook(t, data)

	view, err := b.Resolve(SheetName("S"), "A1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	desired := String([]byte("XY"))
	if _, err := b.Plan(view, desired, Flags{}); !errors.Is(err, ErrCannotRealize) {
		t.Fatalf("expected ErrCannotRealize, got %v", err)
	}

	plan, err := b.Plan(view, desired, Flags{Force: true})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Step != StepForce || !plan.AffectsOthers {
		t.Fatalf("step=%s affects=%v", plan.Step, plan.AffectsOthers)
	}

	out, err := patch.ApplyBytes(data, plan.Writes)
	if err != nil {
		t.Fatalf("ApplyBytes: %v", err)
	}
	fresh, _ := openBook(t, out)
	after, err := fresh.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	b.Commit(plan)
	mirrored, err := b.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !after[0][1].Equal(desired) || !reflect.DeepEqual(normalize(mirrored), normalize(after)) {
		t.Fatalf("file=%v mirror=%v", after, mirrored)
	}
}

func TestOverlapGroups(t *testing.T) {
	t.Parallel()

	entries := []poolEntry{
		{offset: 100, width: 3}, // "ABC"
		{offset: 110, width: 2},
		{offset: 101, width: 2}, // "BC", suffix of [0]
		{offset: 110, width: 2}, // same bytes as [1]
		{offset: 120, width: 0},
		{offset: 104, width: 4},
	}

	groups := overlapGroups(entries)
	want := [][]uint32{{0, 2}, {1, 3}, {0, 2}, {1, 3}, {4}, {5}}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("groups=%v, want %v", groups, want)
	}

	b := &Book{}
	b.pools[TypeString] = []poolEntry{
		{offset: 100, width: 3, value: String([]byte("ABC"))},
		{offset: 101, width: 2, value: String([]byte("BC"))},
	}
	b.shared[TypeString] = overlapGroups(b.pools[TypeString])
	b.setPool(TypeString, 0, String([]byte("XYZ")))
	if got := string(b.pools[TypeString][1].value.Str); got != "YZ" {
		t.Fatalf("suffix entry=%q, want YZ", got)
	}
}
