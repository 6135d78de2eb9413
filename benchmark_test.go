package automapping

import (
	"testing"
)

type benchRecord struct {
	ID     int
	Name   string
	Email  string
	Age    int
	Active bool
	Score  float64
	Tags   []string
}

type benchRecordDTO struct {
	ID     int
	Name   string
	Email  string
	Age    int
	Active bool
	Score  float64
	Tags   []string
}

var benchRecordSource = benchRecord{
	ID:     1,
	Name:   "John Doe",
	Email:  "john@example.com",
	Age:    30,
	Active: true,
	Score:  95.5,
	Tags:   []string{"go", "developer", "senior"},
}

func manualRecordMap(src benchRecord) benchRecordDTO {
	return benchRecordDTO{
		ID:     src.ID,
		Name:   src.Name,
		Email:  src.Email,
		Age:    src.Age,
		Active: src.Active,
		Score:  src.Score,
		Tags:   append([]string(nil), src.Tags...),
	}
}

func BenchmarkManualMapping(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = manualRecordMap(benchRecordSource)
	}
}

// BenchmarkMap runs the same pair through each optimization level.
func BenchmarkMap(b *testing.B) {
	levels := []struct {
		name  string
		level OptimizationLevel
	}{
		{"none", OptimizationNone},
		{"compiled", OptimizationCompiled},
		{"unsafe", OptimizationUnsafe},
	}

	for _, l := range levels {
		b.Run(l.name, func(b *testing.B) {
			_, mapper := newTestMapper(WithOptimizationLevel(l.level))
			src := benchRecordSource
			_, _ = Map[*benchRecord, benchRecordDTO](mapper, &src)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = Map[*benchRecord, benchRecordDTO](mapper, &src)
			}
		})
	}
}

type benchLine struct {
	SKU   string
	Qty   int
	Price float64
}

type benchLineDTO struct {
	SKU   string
	Qty   int
	Price float64
}

type benchAddress struct {
	Street string
	City   string
	Zip    string
}

type benchAddressDTO struct {
	Street string
	City   string
	Zip    string
	Region string
}

type benchOrder struct {
	ID      int
	Ship    *benchAddress
	Lines   []benchLine
	Labels  map[string]string
	Comment *string
}

type benchOrderDTO struct {
	ID      int
	Ship    *benchAddressDTO
	Lines   []benchLineDTO
	Labels  map[string]string
	Comment *string
}

var benchOrderSource = benchOrder{
	ID:   1,
	Ship: &benchAddress{Street: "123 Main St", City: "Boston", Zip: "02101"},
	Lines: []benchLine{
		{SKU: "A-1", Qty: 1, Price: 10.99},
		{SKU: "B-2", Qty: 2, Price: 20.99},
		{SKU: "C-3", Qty: 3, Price: 30.99},
	},
	Labels: map[string]string{"channel": "web"},
}

func manualOrderMap(src benchOrder) benchOrderDTO {
	lines := make([]benchLineDTO, len(src.Lines))
	for i, l := range src.Lines {
		lines[i] = benchLineDTO{SKU: l.SKU, Qty: l.Qty, Price: l.Price}
	}
	labels := make(map[string]string, len(src.Labels))
	for k, v := range src.Labels {
		labels[k] = v
	}
	dest := benchOrderDTO{ID: src.ID, Lines: lines, Labels: labels, Comment: src.Comment}
	if src.Ship != nil {
		dest.Ship = &benchAddressDTO{Street: src.Ship.Street, City: src.Ship.City, Zip: src.Ship.Zip}
	}
	return dest
}

func BenchmarkManualNestedMapping(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = manualOrderMap(benchOrderSource)
	}
}

func BenchmarkMapNested(b *testing.B) {
	reg, mapper := newTestMapper()
	if err := CreateMap[benchOrder, benchOrderDTO](reg).Register(); err != nil {
		b.Fatal(err)
	}
	_, _ = Map[benchOrder, benchOrderDTO](mapper, benchOrderSource)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Map[benchOrder, benchOrderDTO](mapper, benchOrderSource)
	}
}

func BenchmarkPartialMap(b *testing.B) {
	_, mapper := newTestMapper()
	dest := manualOrderMap(benchOrderSource)
	patch := benchOrder{ID: 2}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = PartialMap(mapper, patch, &dest)
	}
}

func BenchmarkMapSlice(b *testing.B) {
	_, mapper := newTestMapper()

	lines := make([]benchLine, 100)
	for i := range lines {
		lines[i] = benchLine{SKU: "X", Qty: i, Price: float64(i)}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = MapSlice[benchLine, benchLineDTO](mapper, lines)
	}
}

func BenchmarkManualSliceMapping(b *testing.B) {
	lines := make([]benchLine, 100)
	for i := range lines {
		lines[i] = benchLine{SKU: "X", Qty: i, Price: float64(i)}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result := make([]benchLineDTO, len(lines))
		for j, l := range lines {
			result[j] = benchLineDTO{SKU: l.SKU, Qty: l.Qty, Price: l.Price}
		}
		_ = result
	}
}

func BenchmarkPolymorphicSlice(b *testing.B) {
	_, mapper := newItemMapper(b)

	items := make([]Item, 100)
	for i := range items {
		if i%2 == 0 {
			items[i] = BaseItem{ID: i, Name: "base"}
		} else {
			items[i] = DerivedItem{BaseItem: BaseItem{ID: i, Name: "derived"}, Extra: "x"}
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Map[[]Item, []ItemDTO](mapper, items)
	}
}
