package signature

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehluchkiv/gosignature/pkg/cache"
)

// countingProvider serves fixed ClassMetas and counts lookups.
type countingProvider struct {
	classes map[string]*ClassMeta
	calls   atomic.Int64
}

func newCountingProvider(classes ...*ClassMeta) *countingProvider {
	p := &countingProvider{classes: make(map[string]*ClassMeta)}
	for _, c := range classes {
		p.classes[c.Name] = c
	}
	return p
}

func (p *countingProvider) Class(_ context.Context, name string) (*ClassMeta, error) {
	p.calls.Add(1)
	c, ok := p.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}
	return c, nil
}

func builtin(name string) *TypeExpr {
	return NamedExpr(name, true, false)
}

func userType(name string) *TypeExpr {
	return NamedExpr(name, false, false)
}

// orderFixture mirrors a readonly class with a promoted constructor
// parameter, union and intersection typed properties and a few methods.
func orderFixture() *ClassMeta {
	return &ClassMeta{
		Name:      "shop.Order",
		Modifiers: ModReadOnly | ModFinal,
		Constructor: &FunctionMeta{Parameters: []ParameterMeta{
			{Name: "id", Type: builtin("int"), Promoted: true},
			{Name: "note", Type: NamedExpr("string", true, true), Default: ConstDefault(NullLiteral())},
		}},
		Properties: []PropertyMeta{
			{
				Name:          "id",
				Type:          builtin("int"),
				Modifiers:     ModPublic | ModReadOnly,
				ReadOnlyKnown: true,
				Attributes: []AttributeMeta{
					{Name: "json", Target: TargetProperty, Arguments: []Argument{{Value: StringLiteral("id")}}},
				},
			},
			{
				Name:      "code",
				Type:      UnionExpr(builtin("int"), builtin("string")),
				Modifiers: ModProtected,
			},
			{
				Name:      "items",
				Type:      IntersectionExpr(userType("Countable"), userType("Iterator")),
				Modifiers: ModPrivate | ModStatic,
				Attributes: []AttributeMeta{
					{Name: "validate", Target: TargetProperty, Arguments: []Argument{{Name: "min", Value: IntLiteral(1)}}},
					{Name: "validate", Target: TargetProperty, Arguments: []Argument{{Name: "max", Value: IntLiteral(9)}}},
				},
			},
		},
		Methods: []MethodMeta{
			{Name: "untyped", Modifiers: ModPublic},
			{Name: "reset", Modifiers: ModPublic, ReturnType: builtin("void")},
			{
				Name:       "find",
				Modifiers:  ModPublic | ModStatic,
				ReturnType: UnionExpr(userType("shop.Order"), builtin("null")),
				Parameters: []ParameterMeta{
					{Name: "id", Type: builtin("int")},
					{Name: "any"},
				},
				Attributes: []AttributeMeta{{Name: "deprecated", Target: TargetMethod}},
			},
		},
	}
}

func newTestExtractor(p Provider, opts ...ExtractorOption) *Extractor {
	return NewExtractor(p, cache.New[*ObjectSignature](), opts...)
}

func TestReadSignature_ClassModifiers(t *testing.T) {
	e := newTestExtractor(newCountingProvider(orderFixture()))

	sig, err := e.ReadSignature(context.Background(), "shop.Order")
	require.NoError(t, err)
	assert.Equal(t, "shop.Order", sig.ObjectName)
	assert.True(t, sig.IsReadOnly)
	assert.True(t, sig.IsFinal)
}

func TestReadSignature_OrderPreserved(t *testing.T) {
	e := newTestExtractor(newCountingProvider(orderFixture()))
	sig, err := e.ReadSignature(context.Background(), "shop.Order")
	require.NoError(t, err)

	var props, methods, ctor []string
	for _, p := range sig.Properties {
		props = append(props, p.Parameter.Name)
	}
	for _, m := range sig.Methods {
		methods = append(methods, m.Name)
	}
	for _, p := range sig.ConstructorArguments {
		ctor = append(ctor, p.Name)
	}
	assert.Equal(t, []string{"id", "code", "items"}, props)
	assert.Equal(t, []string{"untyped", "reset", "find"}, methods)
	assert.Equal(t, []string{"id", "note"}, ctor)
}

func TestReadSignature_UnionAndIntersection(t *testing.T) {
	e := newTestExtractor(newCountingProvider(orderFixture()))
	sig, err := e.ReadSignature(context.Background(), "shop.Order")
	require.NoError(t, err)

	code, ok := sig.Property("code")
	require.True(t, ok)
	assert.Equal(t, []Type{Named("int", true), Named("string", true)}, code.Parameter.Types)

	items, ok := sig.Property("items")
	require.True(t, ok)
	require.Len(t, items.Parameter.Types, 1)
	require.True(t, items.Parameter.Types[0].IsIntersection())
	assert.Equal(t, []NamedType{
		{DataType: "Countable", IsBuiltin: false},
		{DataType: "Iterator", IsBuiltin: false},
	}, items.Parameter.Types[0].Intersection.NamedTypes)
}

func TestReadSignature_ReturnTypes(t *testing.T) {
	e := newTestExtractor(newCountingProvider(orderFixture()))
	sig, err := e.ReadSignature(context.Background(), "shop.Order")
	require.NoError(t, err)

	untyped, _ := sig.Method("untyped")
	assert.Nil(t, untyped.ReturnTypes, "no declared return type")
	assert.False(t, untyped.ReturnAllowsNull)

	reset, _ := sig.Method("reset")
	require.NotNil(t, reset.ReturnTypes)
	assert.Equal(t, []Type{Named("void", true)}, reset.ReturnTypes)
	assert.False(t, reset.ReturnAllowsNull)

	find, _ := sig.Method("find")
	assert.Equal(t, []Type{Named("shop.Order", false), Named("null", true)}, find.ReturnTypes)
	assert.True(t, find.ReturnAllowsNull)
	assert.True(t, find.IsStatic)
	assert.Equal(t, Public, find.Visibility)
	require.Len(t, find.Parameters, 2)
	assert.Empty(t, find.Parameters[1].Types, "untyped parameters are allowed")
	assert.NotNil(t, find.Parameters[1].Types)
	require.Len(t, find.Attributes, 1)
	assert.Equal(t, TargetMethod, find.Attributes[0].Target)
}

func TestReadSignature_DefaultBoxing(t *testing.T) {
	e := newTestExtractor(newCountingProvider(orderFixture()))
	sig, err := e.ReadSignature(context.Background(), "shop.Order")
	require.NoError(t, err)

	id := sig.ConstructorArguments[0]
	assert.False(t, id.HasDefault())
	assert.Nil(t, id.DefaultValue)

	note := sig.ConstructorArguments[1]
	require.True(t, note.HasDefault())
	assert.True(t, note.DefaultValue.Data.IsNull())
	assert.True(t, note.IsAllowsNull)
}

func TestReadSignature_Promotion(t *testing.T) {
	fixture := orderFixture()
	e := newTestExtractor(newCountingProvider(fixture))
	sig, err := e.ReadSignature(context.Background(), "shop.Order")
	require.NoError(t, err)

	assert.True(t, sig.ConstructorArguments[0].IsPromoted)
	assert.False(t, sig.ConstructorArguments[1].IsPromoted)
	for _, p := range sig.Properties {
		assert.False(t, p.Parameter.IsPromoted, p.Parameter.Name)
	}
}

func TestReadSignature_PropertyFacets(t *testing.T) {
	e := newTestExtractor(newCountingProvider(orderFixture()))
	sig, err := e.ReadSignature(context.Background(), "shop.Order")
	require.NoError(t, err)

	id, _ := sig.Property("id")
	require.NotNil(t, id.IsReadOnly)
	assert.True(t, *id.IsReadOnly)
	assert.Equal(t, Public, *id.Visibility)
	assert.False(t, *id.IsStatic)

	code, _ := sig.Property("code")
	assert.Nil(t, code.IsReadOnly, "read-only state unknown")
	assert.Equal(t, Protected, *code.Visibility)

	items, _ := sig.Property("items")
	assert.Equal(t, Private, *items.Visibility)
	assert.True(t, *items.IsStatic)
}

func TestReadSignature_Attributes(t *testing.T) {
	e := newTestExtractor(newCountingProvider(orderFixture()))
	sig, err := e.ReadSignature(context.Background(), "shop.Order")
	require.NoError(t, err)

	id, _ := sig.Property("id")
	require.Len(t, id.Parameter.Attributes, 1)
	assert.False(t, id.Parameter.Attributes[0].IsRepeated)

	items, _ := sig.Property("items")
	require.Len(t, items.Parameter.Attributes, 2)
	for _, a := range items.Parameter.Attributes {
		assert.True(t, a.IsRepeated)
		assert.Equal(t, "validate", a.Name)
	}
	assert.Equal(t, "min", items.Parameter.Attributes[0].Arguments[0].Name)
	assert.Equal(t, "max", items.Parameter.Attributes[1].Arguments[0].Name)
}

func TestReadSignature_CachedAfterFirstCall(t *testing.T) {
	p := newCountingProvider(orderFixture())
	e := newTestExtractor(p)
	ctx := context.Background()

	first, err := e.ReadSignature(ctx, "shop.Order")
	require.NoError(t, err)
	second, err := e.ReadSignature(ctx, "shop.Order")
	require.NoError(t, err)

	assert.Equal(t, int64(1), p.calls.Load())
	assert.Same(t, first, second)
	assert.True(t, e.Cache().Has(ctx, CacheKey("shop.Order")))
}

func TestReadSignature_ClearForcesFreshWalk(t *testing.T) {
	p := newCountingProvider(orderFixture())
	e := newTestExtractor(p)
	ctx := context.Background()

	first, err := e.ReadSignature(ctx, "shop.Order")
	require.NoError(t, err)
	e.Cache().Clear(ctx)
	second, err := e.ReadSignature(ctx, "shop.Order")
	require.NoError(t, err)

	assert.Equal(t, int64(2), p.calls.Load())
	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
}

func TestReadSignature_SharedTierAcrossExtractors(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "sig:")
	ctx := context.Background()

	p1 := newCountingProvider(orderFixture())
	first, err := NewExtractor(p1, cache.New[*ObjectSignature](cache.WithStore(store))).ReadSignature(ctx, "shop.Order")
	require.NoError(t, err)

	p2 := newCountingProvider(orderFixture())
	second, err := NewExtractor(p2, cache.New[*ObjectSignature](cache.WithStore(store))).ReadSignature(ctx, "shop.Order")
	require.NoError(t, err)

	assert.Equal(t, int64(0), p2.calls.Load(), "second process is served by the shared tier")
	assert.Equal(t, first, second)
}

func TestReadSignature_SharedTierTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "sig:")
	ctx := context.Background()

	e := NewExtractor(newCountingProvider(orderFixture()), cache.New[*ObjectSignature](cache.WithStore(store)), WithCacheTTL(time.Minute))
	_, err := e.ReadSignature(ctx, "shop.Order")
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))

	mr.FastForward(2 * time.Minute)
	assert.Empty(t, mr.Keys())
}

func TestReadSignature_ConcurrentMissesShareOneWalk(t *testing.T) {
	block := make(chan struct{})
	var calls atomic.Int64
	p := ProviderFunc(func(ctx context.Context, name string) (*ClassMeta, error) {
		calls.Add(1)
		<-block
		return orderFixture(), nil
	})
	e := newTestExtractor(p)

	var wg sync.WaitGroup
	var started atomic.Int64
	results := make([]*ObjectSignature, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Add(1)
			sig, err := e.ReadSignature(context.Background(), "shop.Order")
			assert.NoError(t, err)
			results[i] = sig
		}(i)
	}
	// let every goroutine reach the in-flight walk before it completes
	for calls.Load() == 0 || started.Load() < int64(len(results)) {
		runtime.Gosched()
	}
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestReadSignature_CancelledCallerDoesNotFailOthers(t *testing.T) {
	block := make(chan struct{})
	var calls atomic.Int64
	p := ProviderFunc(func(ctx context.Context, name string) (*ClassMeta, error) {
		calls.Add(1)
		<-block
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return orderFixture(), nil
	})
	e := newTestExtractor(p)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := e.ReadSignature(ctx, "shop.Order")
		firstErr <- err
	}()
	for calls.Load() == 0 {
		runtime.Gosched()
	}

	second := make(chan *ObjectSignature, 1)
	go func() {
		sig, err := e.ReadSignature(context.Background(), "shop.Order")
		assert.NoError(t, err)
		second <- sig
	}()

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, ErrorCode(err), "a cancelled caller is not a resolution failure")
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	time.Sleep(20 * time.Millisecond)
	close(block)
	select {
	case sig := <-second:
		require.NotNil(t, sig)
		assert.Equal(t, "shop.Order", sig.ObjectName)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestReadSignature_NilTypeMember(t *testing.T) {
	tests := map[string]*TypeExpr{
		"union":        {Kind: TypeUnion, Members: []*TypeExpr{builtin("int"), nil}},
		"intersection": {Kind: TypeIntersection, Members: []*TypeExpr{nil}},
	}
	for name, typ := range tests {
		t.Run(name, func(t *testing.T) {
			fixture := orderFixture()
			fixture.Properties[1].Type = typ
			e := newTestExtractor(newCountingProvider(fixture))

			_, err := e.ReadSignature(context.Background(), "shop.Order")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedDeclaration)
			assert.Equal(t, CodeUnsupportedTypeKind, ErrorCode(err))
		})
	}
}

func TestReadSignature_UnknownType(t *testing.T) {
	e := newTestExtractor(newCountingProvider())

	_, err := e.ReadSignature(context.Background(), "shop.Missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpected)
	assert.ErrorIs(t, err, ErrTypeNotFound)
	assert.Equal(t, CodeTypeResolution, ErrorCode(err))
}

func TestReadSignature_MissingVisibility(t *testing.T) {
	fixture := orderFixture()
	fixture.Methods[0].Modifiers = ModStatic
	e := newTestExtractor(newCountingProvider(fixture))

	_, err := e.ReadSignature(context.Background(), "shop.Order")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedDeclaration)
	assert.Equal(t, CodeMissingVisibility, ErrorCode(err))
}

func TestReadSignature_IntersectionOfUnionRejected(t *testing.T) {
	fixture := orderFixture()
	fixture.Properties[2].Type = IntersectionExpr(
		userType("Countable"),
		UnionExpr(builtin("int"), builtin("string")),
	)
	e := newTestExtractor(newCountingProvider(fixture))

	_, err := e.ReadSignature(context.Background(), "shop.Order")
	require.Error(t, err)
	assert.Equal(t, CodeIntersectionMember, ErrorCode(err))
}

func TestReadSignature_UnionContainingIntersection(t *testing.T) {
	fixture := orderFixture()
	fixture.Properties[1].Type = UnionExpr(
		IntersectionExpr(userType("A"), userType("B")),
		builtin("null"),
	)
	e := newTestExtractor(newCountingProvider(fixture))

	sig, err := e.ReadSignature(context.Background(), "shop.Order")
	require.NoError(t, err)
	code, _ := sig.Property("code")
	require.Len(t, code.Parameter.Types, 2)
	assert.True(t, code.Parameter.Types[0].IsIntersection())
	assert.Equal(t, "null", code.Parameter.Types[1].Named.DataType)
	assert.True(t, code.Parameter.IsAllowsNull)
	assert.Equal(t, "(A&B)|null", FormatTypes(code.Parameter.Types))
}

func TestReadSignature_UntypedPropertyPolicy(t *testing.T) {
	fixture := orderFixture()
	fixture.Properties[1].Type = nil

	_, err := newTestExtractor(newCountingProvider(fixture)).ReadSignature(context.Background(), "shop.Order")
	require.Error(t, err)
	assert.Equal(t, CodeUntypedProperty, ErrorCode(err))

	sig, err := newTestExtractor(newCountingProvider(fixture), WithUntypedProperties(AllowUntypedProperties)).
		ReadSignature(context.Background(), "shop.Order")
	require.NoError(t, err)
	code, _ := sig.Property("code")
	assert.Empty(t, code.Parameter.Types)
}

func TestReadSignature_FailedDefaultIsNotCached(t *testing.T) {
	fixture := orderFixture()
	fixture.Properties[0].Default = &DefaultMeta{
		Raw:     "oops",
		Resolve: func() (Literal, error) { return Literal{}, errors.New("not a number") },
	}
	p := newCountingProvider(fixture)
	e := newTestExtractor(p)
	ctx := context.Background()

	_, err := e.ReadSignature(ctx, "shop.Order")
	require.Error(t, err)
	assert.Equal(t, CodeDefaultResolution, ErrorCode(err))
	assert.False(t, e.Cache().Has(ctx, CacheKey("shop.Order")), "failed extraction must not be cached")

	_, err = e.ReadSignature(ctx, "shop.Order")
	require.Error(t, err)
	assert.Equal(t, int64(2), p.calls.Load())
}

func TestReadSignature_NoConstructor(t *testing.T) {
	fixture := orderFixture()
	fixture.Constructor = nil
	e := newTestExtractor(newCountingProvider(fixture))

	sig, err := e.ReadSignature(context.Background(), "shop.Order")
	require.NoError(t, err)
	assert.NotNil(t, sig.ConstructorArguments)
	assert.Empty(t, sig.ConstructorArguments)
}

type sample struct{}

func TestIdentify(t *testing.T) {
	const self = "github.com/olehluchkiv/gosignature/pkg/signature.sample"

	id, err := Identify("shop.Order")
	require.NoError(t, err)
	assert.Equal(t, "shop.Order", id)

	id, err = Identify(sample{})
	require.NoError(t, err)
	assert.Equal(t, self, id)

	id, err = Identify(&sample{})
	require.NoError(t, err)
	assert.Equal(t, self, id)

	id, err = Identify(reflect.TypeOf(sample{}))
	require.NoError(t, err)
	assert.Equal(t, self, id)

	id, err = Identify(errors.New("x"))
	require.NoError(t, err)
	assert.Equal(t, "errors.errorString", id)

	_, err = Identify([]int{1})
	assert.ErrorIs(t, err, ErrTypeNotFound)
	_, err = Identify(nil)
	assert.ErrorIs(t, err, ErrTypeNotFound)
	_, err = Identify("")
	assert.ErrorIs(t, err, ErrTypeNotFound)
}

func TestReadSignature_Instance(t *testing.T) {
	fixture := orderFixture()
	fixture.Name = "github.com/olehluchkiv/gosignature/pkg/signature.sample"
	e := newTestExtractor(newCountingProvider(fixture))

	sig, err := e.ReadSignature(context.Background(), &sample{})
	require.NoError(t, err)
	assert.Equal(t, fixture.Name, sig.ObjectName)
}

func TestIsAbstract(t *testing.T) {
	iface := &ClassMeta{
		Name:      "shop.Repository",
		Modifiers: ModAbstract,
		Methods:   []MethodMeta{{Name: "Find", Modifiers: ModPublic | ModAbstract}},
	}
	p := newCountingProvider(orderFixture(), iface)
	e := newTestExtractor(p)
	ctx := context.Background()

	abstract, err := e.IsAbstract(ctx, "shop.Repository")
	require.NoError(t, err)
	assert.True(t, abstract)

	abstract, err = e.IsAbstract(ctx, "shop.Order")
	require.NoError(t, err)
	assert.False(t, abstract)

	_, err = e.IsAbstract(ctx, "shop.Missing")
	assert.Equal(t, CodeTypeResolution, ErrorCode(err))

	_, _ = e.IsAbstract(ctx, "shop.Order")
	assert.Equal(t, int64(4), p.calls.Load(), "IsAbstract is never cached")
}
