package automapping_test

import (
	"fmt"
	"strings"

	"github.com/csmart-libs/go-automapping"
)

// Domain types
type Member struct {
	ID        int
	FirstName string
	LastName  string
	Email     string
	Age       int
	Address   *PostalAddress
	Tags      []string
}

type PostalAddress struct {
	Street  string
	City    string
	State   string
	ZipCode string
}

// Transfer types
type MemberDTO struct {
	ID          int
	FirstName   string
	LastName    string
	Email       string
	Age         int
	AddressCity string // Flattened from Address.City
	Tags        []string
}

type MemberCardDTO struct {
	ID      int
	Name    string // Combined FirstName + LastName
	Email   string
	Address *PostalAddressDTO
}

type PostalAddressDTO struct {
	Street string
	City   string
	State  string
}

// MemberPatch carries the fields of a partial update; nil means "not sent".
type MemberPatch struct {
	FirstName *string
	Email     *string
}

// Example demonstrates convention mapping with flattening.
func Example() {
	mapper := automapping.New(automapping.WithFlattening())

	member := Member{
		ID:        1,
		FirstName: "John",
		LastName:  "Doe",
		Email:     "john@example.com",
		Age:       30,
		Address: &PostalAddress{
			Street:  "12 Harbour Rd",
			City:    "Halifax",
			State:   "NS",
			ZipCode: "B3H 1A1",
		},
		Tags: []string{"developer", "golang"},
	}

	// No registration needed: fields are matched by name.
	dto, err := automapping.Map[Member, MemberDTO](mapper, member)
	if err != nil {
		panic(err)
	}

	fmt.Printf("%s %s <%s>\n", dto.FirstName, dto.LastName, dto.Email)
	fmt.Printf("City: %s\n", dto.AddressCity)
	fmt.Printf("Tags: %v\n", dto.Tags)

	// Output:
	// John Doe <john@example.com>
	// City: Halifax
	// Tags: [developer golang]
}

// Example_nestedMapping demonstrates nested struct mapping.
func Example_nestedMapping() {
	reg := automapping.NewRegistry()
	mapper := automapping.NewWithRegistry(reg)

	err := automapping.CreateMap[PostalAddress, PostalAddressDTO](reg).
		Transform("State", automapping.TransformFunc(strings.ToLower)).
		Register()
	if err != nil {
		panic(err)
	}

	member := Member{
		ID:    1,
		Email: "jane@example.com",
		Address: &PostalAddress{
			City:  "New York",
			State: "NY",
		},
	}

	dto, _ := automapping.Map[Member, MemberCardDTO](mapper, member)

	fmt.Printf("City: %s, State: %s\n", dto.Address.City, dto.Address.State)

	// Output:
	// City: New York, State: ny
}

// Example_customResolver demonstrates a value resolver.
func Example_customResolver() {
	reg := automapping.NewRegistry()
	mapper := automapping.NewWithRegistry(reg)

	err := automapping.CreateMap[Member, MemberCardDTO](reg).
		ForMember("Name", automapping.MapFromFunc(automapping.ResolverFunc(func(u Member) string {
			return u.FirstName + " " + u.LastName
		}))).
		Register()
	if err != nil {
		panic(err)
	}

	dto, _ := automapping.Map[Member, MemberCardDTO](mapper, Member{FirstName: "John", LastName: "Doe"})

	fmt.Printf("Name: %s\n", dto.Name)

	// Output:
	// Name: John Doe
}

// Example_sliceMapping demonstrates slice mapping.
func Example_sliceMapping() {
	mapper := automapping.New()

	members := []Member{
		{ID: 1, FirstName: "John", Email: "john@example.com"},
		{ID: 2, FirstName: "Jane", Email: "jane@example.com"},
	}

	dtos, _ := automapping.MapSlice[Member, MemberDTO](mapper, members)

	for _, dto := range dtos {
		fmt.Printf("#%d %s\n", dto.ID, dto.FirstName)
	}

	// Output:
	// #1 John
	// #2 Jane
}

// Example_partialMap demonstrates applying a patch over an existing object.
func Example_partialMap() {
	mapper := automapping.New()

	member := Member{ID: 7, FirstName: "John", Email: "john@example.com"}
	email := "john.doe@example.com"

	if err := automapping.PartialMap(mapper, MemberPatch{Email: &email}, &member); err != nil {
		panic(err)
	}

	fmt.Printf("%d %s %s\n", member.ID, member.FirstName, member.Email)

	// Output:
	// 7 John john.doe@example.com
}

type Payment interface {
	Amount() int
}

type CardPayment struct {
	Cents int
	Last4 string
}

func (p CardPayment) Amount() int { return p.Cents }

type CashPayment struct {
	Cents int
}

func (p CashPayment) Amount() int { return p.Cents }

type PaymentDTO interface{}

type CardPaymentDTO struct {
	Cents int
	Last4 string
}

type CashPaymentDTO struct {
	Cents int
}

// Example_polymorphic demonstrates mapping a collection of interface values
// to the destinations bound for their runtime types.
func Example_polymorphic() {
	reg := automapping.NewRegistry()
	mapper := automapping.NewWithRegistry(reg)

	if err := automapping.Include[Payment, CardPayment, CardPaymentDTO](reg, nil); err != nil {
		panic(err)
	}
	if err := automapping.Include[Payment, CashPayment, CashPaymentDTO](reg, nil); err != nil {
		panic(err)
	}

	payments := []Payment{CardPayment{Cents: 1250, Last4: "4242"}, CashPayment{Cents: 300}}
	dtos, err := automapping.Map[[]Payment, []PaymentDTO](mapper, payments)
	if err != nil {
		panic(err)
	}

	for _, dto := range dtos {
		fmt.Printf("%T %+v\n", dto, dto)
	}

	// Output:
	// automapping_test.CardPaymentDTO {Cents:1250 Last4:4242}
	// automapping_test.CashPaymentDTO {Cents:300}
}
