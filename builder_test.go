package automapping

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type account struct {
	ID       int
	Username string
	Password string
	Email    string
}

type accountDTO struct {
	ID       int
	Login    string
	Password string
	Email    string
	Display  string
}

func TestForMemberMapFrom(t *testing.T) {
	reg, mapper := newTestMapper()
	require.NoError(t, CreateMap[account, accountDTO](reg).
		ForMember("Login", MapFrom("Username")).
		Register())

	dest, err := Map[account, accountDTO](mapper, account{ID: 1, Username: "ann"})
	require.NoError(t, err)
	assert.Equal(t, "ann", dest.Login)
}

func TestForMemberIgnore(t *testing.T) {
	reg, mapper := newTestMapper()
	require.NoError(t, CreateMap[account, accountDTO](reg).
		ForMember("Password", Ignore()).
		Register())

	dest := accountDTO{Password: "unchanged"}
	require.NoError(t, MapTo(mapper, account{ID: 1, Password: "secret"}, &dest))
	assert.Equal(t, "unchanged", dest.Password)
	assert.Equal(t, 1, dest.ID)
}

func TestForMemberIgnoreRenamedMember(t *testing.T) {
	reg, mapper := newTestMapper()
	require.NoError(t, CreateMap[account, accountDTO](reg).
		ForMember("Login", MapFrom("Username")).
		ForMember("Login", Ignore()).
		Register())

	dest, err := Map[account, accountDTO](mapper, account{Username: "ann"})
	require.NoError(t, err)
	assert.Empty(t, dest.Login)
}

func TestForMemberIgnoreKeepsRenamedSibling(t *testing.T) {
	type profileDTO struct {
		Username    string
		DisplayName string
	}
	reg, mapper := newTestMapper()
	require.NoError(t, CreateMap[account, profileDTO](reg).
		ForMember("Username", Ignore()).
		ForMember("DisplayName", MapFrom("Username")).
		Register())

	dest := profileDTO{Username: "kept"}
	require.NoError(t, MapTo(mapper, account{Username: "ann"}, &dest))
	assert.Equal(t, profileDTO{Username: "kept", DisplayName: "ann"}, dest)

	proj := Project[account, profileDTO](mapper)
	require.Len(t, proj.Fields, 1)
	assert.Equal(t, "DisplayName", proj.Fields[0].Dest)
}

func TestForMemberUnknownMember(t *testing.T) {
	reg := NewRegistry()

	err := CreateMap[account, accountDTO](reg).ForMember("Nope", Ignore()).Register()
	require.ErrorIs(t, err, ErrConfiguration)

	err = CreateMap[account, accountDTO](reg).ForMember("Login", MapFrom("Nope")).Register()
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Empty(t, reg.GetAllMappingConfigurations())
}

func TestForMemberMapFromFunc(t *testing.T) {
	reg, mapper := newTestMapper()
	require.NoError(t, CreateMap[account, accountDTO](reg).
		ForMember("Display", MapFromFunc(ResolverFunc(func(a account) string {
			return a.Username + " <" + a.Email + ">"
		}))).
		Register())

	dest, err := Map[*account, accountDTO](mapper, &account{Username: "ann", Email: "a@x"})
	require.NoError(t, err)
	assert.Equal(t, "ann <a@x>", dest.Display)
}

func TestBuilderIgnoreSourceField(t *testing.T) {
	reg, mapper := newTestMapper()
	require.NoError(t, CreateMap[account, accountDTO](reg).Ignore("Password", "Email").Register())

	dest, err := Map[account, accountDTO](mapper, account{ID: 2, Password: "pw", Email: "e"})
	require.NoError(t, err)
	assert.Equal(t, accountDTO{ID: 2}, dest)
}

func TestBuilderRule(t *testing.T) {
	reg := NewRegistry()
	rule, err := CreateMap[account, accountDTO](reg).
		ForMember("Login", MapFrom("Username")).
		ForMember("Password", Ignore()).
		IgnoreNulls().
		PreserveNestedNulls().
		Rule()
	require.NoError(t, err)

	assert.Equal(t, NullSkip, rule.NullPolicy)
	assert.True(t, rule.PreserveNestedNulls)
	assert.Equal(t, map[string]string{"Login": "Username"}, rule.Renames)
	assert.Equal(t, []string{"Password"}, rule.IgnoredMembers)
	assert.Empty(t, rule.Ignored)
	assert.Empty(t, reg.GetAllMappingConfigurations(), "Rule does not register")
}

func TestCreatePartialMap(t *testing.T) {
	reg, mapper := newTestMapper()
	require.NoError(t, CreatePartialMap[patchSource, ptrFieldDest](reg).Register())

	kept := "kept"
	dest := ptrFieldDest{Name: &kept}
	require.NoError(t, MapTo(mapper, patchSource{ID: 3}, &dest))
	require.NotNil(t, dest.Name)
	assert.Equal(t, "kept", *dest.Name)

	rule, err := CreatePartialMap[patchSource, ptrFieldDest](reg).PropagateNulls().Rule()
	require.NoError(t, err)
	assert.Equal(t, NullPropagate, rule.NullPolicy)
}

func TestReverseMap(t *testing.T) {
	reg, mapper := newTestMapper()
	require.NoError(t, CreateMap[account, accountDTO](reg).
		ForMember("Login", MapFrom("Username")).
		Transform("Email", TransformFunc(strings.ToUpper)).
		ReverseMap().
		Register())

	src := account{ID: 4, Username: "ann", Password: "pw", Email: "ann@x"}
	dto, err := Map[account, accountDTO](mapper, src)
	require.NoError(t, err)
	assert.Equal(t, "ANN@X", dto.Email)

	back, err := Map[accountDTO, account](mapper, dto)
	require.NoError(t, err)

	// renames round-trip; transformers are one-way
	want := src
	want.Email = "ANN@X"
	if diff := cmp.Diff(want, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	rule, ok := reg.Resolve(PairOf[accountDTO, account]().Source, PairOf[accountDTO, account]().Dest)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"Username": "Login"}, rule.Renames)
	assert.Empty(t, rule.Transformers)
}

func TestReverseMapCarriesForwardError(t *testing.T) {
	reg := NewRegistry()

	err := CreateMap[account, accountDTO](reg).
		ForMember("Login", MapFrom("Missing")).
		ReverseMap().
		Register()
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Empty(t, reg.GetAllMappingConfigurations())
}

func TestReverseRuleInvertsRenames(t *testing.T) {
	rule := MappingRule{
		NullPolicy: NullSkip,
		Renames:    map[string]string{"Login": "Username", "Mail": "Email"},
		Ignored:    []string{"Password"},
	}

	rev := rule.Reverse()
	assert.Equal(t, NullSkip, rev.NullPolicy)
	assert.Equal(t, map[string]string{"Username": "Login", "Email": "Mail"}, rev.Renames)
	assert.Empty(t, rev.Ignored)
	assert.Equal(t, rule.Renames, rev.Reverse().Renames)
}

func TestTransformFuncWithWrongType(t *testing.T) {
	fn := TransformFunc(func(n int) int { return n * 2 })

	assert.Equal(t, 8, fn(4))
	assert.Equal(t, 0, fn("four"))
	assert.Equal(t, 0, fn(nil))
}

func TestResolverFuncAcceptsPointer(t *testing.T) {
	fn := ResolverFunc(func(a account) int { return a.ID })

	assert.Equal(t, 5, fn(account{ID: 5}))
	assert.Equal(t, 6, fn(&account{ID: 6}))
	assert.Equal(t, 0, fn((*account)(nil)))
	assert.Equal(t, 0, fn("other"))
}
