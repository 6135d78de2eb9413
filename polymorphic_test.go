package automapping

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Item interface {
	ItemID() int
}

type BaseItem struct {
	ID   int
	Name string
}

func (b BaseItem) ItemID() int { return b.ID }

type DerivedItem struct {
	BaseItem
	Extra string
}

type ItemDTO interface {
	isItemDTO()
}

type BaseItemDTO struct {
	ID   int
	Name string
}

func (BaseItemDTO) isItemDTO() {}

type DerivedItemDTO struct {
	ID    int
	Name  string
	Extra string
}

func (DerivedItemDTO) isItemDTO() {}

type PriorityItemDTO struct {
	ID int
}

func (*PriorityItemDTO) isItemDTO() {}

func newItemMapper(t testing.TB) (*Registry, *Mapper) {
	t.Helper()
	reg, mapper := newTestMapper()
	require.NoError(t, Include[Item, BaseItem, BaseItemDTO](reg, nil))
	require.NoError(t, Include[Item, DerivedItem, DerivedItemDTO](reg, nil))
	return reg, mapper
}

func TestPolymorphicSlice(t *testing.T) {
	_, mapper := newItemMapper(t)

	src := []Item{
		BaseItem{ID: 1, Name: "a"},
		DerivedItem{BaseItem: BaseItem{ID: 2, Name: "b"}, Extra: "x"},
	}

	dest, err := Map[[]Item, []ItemDTO](mapper, src)
	require.NoError(t, err)

	want := []ItemDTO{
		BaseItemDTO{ID: 1, Name: "a"},
		DerivedItemDTO{ID: 2, Name: "b", Extra: "x"},
	}
	assert.Equal(t, want, dest)
}

func TestPolymorphicPointerSourceYieldsPointer(t *testing.T) {
	_, mapper := newItemMapper(t)

	var src Item = &DerivedItem{BaseItem: BaseItem{ID: 3}, Extra: "y"}
	dest, err := Map[Item, ItemDTO](mapper, src)
	require.NoError(t, err)

	require.IsType(t, &DerivedItemDTO{}, dest)
	assert.Equal(t, &DerivedItemDTO{ID: 3, Extra: "y"}, dest)
}

func TestPolymorphicNil(t *testing.T) {
	_, mapper := newItemMapper(t)

	dest, err := Map[Item, ItemDTO](mapper, nil)
	require.NoError(t, err)
	assert.Nil(t, dest)
}

func TestPolymorphicField(t *testing.T) {
	type cart struct {
		Main  Item
		Items []Item
	}
	type cartDTO struct {
		Main  ItemDTO
		Items []ItemDTO
	}
	_, mapper := newItemMapper(t)

	src := cart{
		Main:  DerivedItem{BaseItem: BaseItem{ID: 1}, Extra: "main"},
		Items: []Item{BaseItem{ID: 2}, nil},
	}
	dest, err := Map[cart, cartDTO](mapper, src)
	require.NoError(t, err)

	assert.Equal(t, DerivedItemDTO{ID: 1, Extra: "main"}, dest.Main)
	assert.Equal(t, []ItemDTO{BaseItemDTO{ID: 2}, nil}, dest.Items)
}

func TestExplicitBindingWinsOverImplicit(t *testing.T) {
	reg, mapper := newItemMapper(t)
	require.NoError(t, Include[Item, DerivedItem, PriorityItemDTO](reg, func(i Item) bool {
		return i.ItemID() >= 100
	}))

	dest, err := MapSlice[Item, ItemDTO](mapper, []Item{BaseItem{ID: 1}, BaseItem{ID: 100}})
	require.NoError(t, err)

	require.Len(t, dest, 2)
	assert.Equal(t, BaseItemDTO{ID: 1}, dest[0])
	assert.Equal(t, &PriorityItemDTO{ID: 100}, dest[1])
}

func TestFirstRegisteredBindingWins(t *testing.T) {
	reg, mapper := newTestMapper()
	always := func(Item) bool { return true }
	require.NoError(t, Include[Item, DerivedItem, DerivedItemDTO](reg, always))
	require.NoError(t, Include[Item, BaseItem, PriorityItemDTO](reg, always))

	base := reflect.TypeFor[Item]()
	src := BaseItem{ID: 1, Name: "a"}
	check := func() {
		t.Helper()
		for range 20 {
			derived, ok := reg.ResolveDerivedType(src, base)
			require.True(t, ok)
			assert.Equal(t, reflect.TypeFor[DerivedItem](), derived)

			dest, err := Map[Item, ItemDTO](mapper, src)
			require.NoError(t, err)
			assert.Equal(t, DerivedItemDTO{ID: 1, Name: "a"}, dest)
		}

		items, err := MapSlice[Item, ItemDTO](mapper, []Item{src, src})
		require.NoError(t, err)
		assert.Equal(t, []ItemDTO{DerivedItemDTO{ID: 1, Name: "a"}, DerivedItemDTO{ID: 1, Name: "a"}}, items)
	}
	check()

	// re-including keeps each binding in its slot
	require.NoError(t, Include[Item, DerivedItem, DerivedItemDTO](reg, always))
	require.NoError(t, Include[Item, BaseItem, PriorityItemDTO](reg, always))
	check()

	// without a predicate the binding leaves the explicit tier
	require.NoError(t, Include[Item, DerivedItem, DerivedItemDTO](reg, nil))
	derived, ok := reg.ResolveDerivedType(src, base)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[BaseItem](), derived)
}

func TestPanickingPredicateDoesNotMatch(t *testing.T) {
	reg, mapper := newItemMapper(t)
	require.NoError(t, Include[Item, DerivedItem, PriorityItemDTO](reg, func(Item) bool {
		panic("predicate failed")
	}))

	dest, err := Map[Item, ItemDTO](mapper, BaseItem{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, BaseItemDTO{ID: 1}, dest)
}

func TestResolveDerivedType(t *testing.T) {
	reg, _ := newItemMapper(t)
	base := reflect.TypeFor[Item]()

	derived, ok := reg.ResolveDerivedType(DerivedItem{}, base)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[DerivedItem](), derived)

	derived, ok = reg.ResolveDerivedType(&BaseItem{}, base)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[BaseItem](), derived)

	_, ok = reg.ResolveDerivedType(nil, base)
	assert.False(t, ok)
}

type otherItem struct{ ID int }

func (o otherItem) ItemID() int { return o.ID }

func TestUnboundRuntimeTypeMapsByConvention(t *testing.T) {
	_, mapper := newItemMapper(t)

	dest, err := Map[Item, BaseItemDTO](mapper, otherItem{ID: 9})
	require.NoError(t, err)
	assert.Equal(t, BaseItemDTO{ID: 9}, dest)
}

func TestIncludeRejectsNonImplementingType(t *testing.T) {
	reg := NewRegistry()

	err := Include[Item, BaseItemDTO, BaseItemDTO](reg, nil)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestReincludeReplacesBinding(t *testing.T) {
	reg, mapper := newItemMapper(t)
	require.NoError(t, Include[Item, BaseItem, PriorityItemDTO](reg, nil))

	dest, err := Map[Item, ItemDTO](mapper, BaseItem{ID: 4})
	require.NoError(t, err)
	assert.Equal(t, &PriorityItemDTO{ID: 4}, dest)

	// the binding moves to the explicit tier
	require.NoError(t, Include[Item, BaseItem, BaseItemDTO](reg, func(Item) bool { return true }))
	dest, err = Map[Item, ItemDTO](mapper, BaseItem{ID: 5})
	require.NoError(t, err)
	assert.Equal(t, BaseItemDTO{ID: 5}, dest)
}

func TestInterfaceDestinationUsesDefault(t *testing.T) {
	reg, mapper := newTestMapper()
	require.NoError(t, CreateMap[BaseItem, BaseItemDTO](reg).Register())

	dest, err := Map[BaseItem, ItemDTO](mapper, BaseItem{ID: 6, Name: "z"})
	require.NoError(t, err)
	assert.Equal(t, BaseItemDTO{ID: 6, Name: "z"}, dest)
}

type employee struct {
	Person
	Title string
}

type Person struct {
	Name  string
	Email *string
}

type PersonDTO struct {
	Name  string
	Email *string
}

func TestNestedRuleNarrowedFromEmbeddedBase(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, CreateMap[Person, PersonDTO](reg).
		IgnoreNulls().
		ForMember("Name", MapFromFunc(func(any) any { return "resolved" })).
		Register())

	tm := reg.nestedRuleFor(reflect.TypeFor[employee](), reflect.TypeFor[PersonDTO]())
	assert.Equal(t, NullSkip, tm.rule.NullPolicy)
	assert.Empty(t, tm.resolvers)
	assert.False(t, tm.convention)

	type team struct{ Lead employee }
	type teamDTO struct{ Lead PersonDTO }
	mapper := NewWithRegistry(reg)

	email := "keep@example.com"
	dest := teamDTO{Lead: PersonDTO{Email: &email}}
	require.NoError(t, MapTo(mapper, team{Lead: employee{Person: Person{Name: "Ann"}}}, &dest))
	assert.Equal(t, "Ann", dest.Lead.Name)
	require.NotNil(t, dest.Lead.Email)
	assert.Equal(t, email, *dest.Lead.Email)
}
