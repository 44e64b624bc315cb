package signature

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/olehluchkiv/gosignature/pkg/cache"
)

// SignatureNamespace is the key-derivation namespace reserved for object
// signatures.
var SignatureNamespace = uuid.MustParse("aae38bab-40e9-4193-8e0b-d83154d8368c")

// UntypedPropertyPolicy decides what happens to properties without a
// declared type.
type UntypedPropertyPolicy int

const (
	// RejectUntypedProperties fails the extraction with
	// ErrMalformedDeclaration.
	RejectUntypedProperties UntypedPropertyPolicy = iota
	// AllowUntypedProperties records an empty type set.
	AllowUntypedProperties
)

// ParseUntypedPropertyPolicy parses "reject" or "allow".
func ParseUntypedPropertyPolicy(s string) (UntypedPropertyPolicy, error) {
	switch s {
	case "reject", "":
		return RejectUntypedProperties, nil
	case "allow":
		return AllowUntypedProperties, nil
	default:
		return 0, fmt.Errorf("unknown untyped property policy %q (valid: reject, allow)", s)
	}
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets the extractor's logger.
func WithLogger(l *slog.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// WithUntypedProperties sets the untyped property policy.
func WithUntypedProperties(p UntypedPropertyPolicy) ExtractorOption {
	return func(e *Extractor) { e.untyped = p }
}

// WithCacheTTL bounds how long signatures live in the shared cache tier.
// Zero keeps them until the cache is cleared.
func WithCacheTTL(ttl time.Duration) ExtractorOption {
	return func(e *Extractor) { e.ttl = ttl }
}

// Extractor builds ObjectSignatures from a Provider and memoizes them.
// It is safe for concurrent use; concurrent misses for the same type share
// one extraction.
type Extractor struct {
	provider Provider
	cache    *cache.Cache[*ObjectSignature]
	untyped  UntypedPropertyPolicy
	ttl      time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

// NewExtractor creates an Extractor. A nil cache gets a process-local one.
func NewExtractor(provider Provider, c *cache.Cache[*ObjectSignature], opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		provider: provider,
		cache:    c,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = cache.New[*ObjectSignature]()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	e.logger = e.logger.With("component", "extractor")
	return e
}

// Cache returns the cache the extractor reads from and writes to.
func (e *Extractor) Cache() *cache.Cache[*ObjectSignature] {
	return e.cache
}

// CacheKey returns the cache identifier used for a type identifier.
func CacheKey(identifier string) string {
	return cache.DeriveKey(identifier, SignatureNamespace.String())
}

// ReadSignature returns the signature of target, which is a type identifier
// string, a reflect.Type, or a value whose dynamic type is described.
//
// Cached signatures are returned as is, without checking them against the
// live type; Cache().Clear is the invalidation mechanism. The returned value
// is shared and must be treated as read-only.
func (e *Extractor) ReadSignature(ctx context.Context, target any) (*ObjectSignature, error) {
	identifier, err := Identify(target)
	if err != nil {
		return nil, unexpected(CodeTypeResolution, "", "identify target", err)
	}

	key := CacheKey(identifier)
	if sig, ok := e.cache.Read(ctx, key); ok && sig != nil {
		e.logger.Debug("signature cache hit", "type", identifier)
		return sig, nil
	}

	// The walk is shared by every caller waiting on key, so it must not be
	// cancelled by whichever caller happened to start it.
	ch := e.group.DoChan(key, func() (any, error) {
		walkCtx := context.WithoutCancel(ctx)
		sig, err := e.extract(walkCtx, identifier)
		if err != nil {
			return nil, err
		}
		e.cache.Write(walkCtx, key, sig, e.ttl)
		return sig, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			e.logger.Debug("signature extraction failed", "type", identifier, "error", res.Err)
			return nil, res.Err
		}
		e.logger.Debug("signature extracted", "type", identifier, "shared", res.Shared)
		return res.Val.(*ObjectSignature), nil
	}
}

// IsAbstract reports whether target's type cannot be instantiated directly.
// The answer is not cached.
func (e *Extractor) IsAbstract(ctx context.Context, target any) (bool, error) {
	identifier, err := Identify(target)
	if err != nil {
		return false, unexpected(CodeTypeResolution, "", "identify target", err)
	}
	class, err := e.resolve(ctx, identifier)
	if err != nil {
		return false, err
	}
	return class.Modifiers.Has(ModAbstract), nil
}

// Identify returns the type identifier of target: strings are returned
// unchanged, reflect.Types and values are named "<pkg path>.<Name>".
// Pointers are dereferenced.
func Identify(target any) (string, error) {
	switch t := target.(type) {
	case nil:
		return "", fmt.Errorf("%w: nil target", ErrTypeNotFound)
	case string:
		if t == "" {
			return "", fmt.Errorf("%w: empty identifier", ErrTypeNotFound)
		}
		return t, nil
	case reflect.Type:
		return TypeIdentifier(t)
	default:
		return TypeIdentifier(reflect.TypeOf(target))
	}
}

// TypeIdentifier names a reflect.Type. Unnamed types have no identifier.
func TypeIdentifier(t reflect.Type) (string, error) {
	for t != nil && t.Kind() == reflect.Pointer && t.Name() == "" {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "", fmt.Errorf("%w: unnamed type %v", ErrTypeNotFound, t)
	}
	if t.PkgPath() == "" {
		return t.Name(), nil
	}
	return t.PkgPath() + "." + t.Name(), nil
}

func (e *Extractor) resolve(ctx context.Context, identifier string) (*ClassMeta, error) {
	class, err := e.provider.Class(ctx, identifier)
	if err != nil {
		return nil, unexpected(CodeTypeResolution, identifier, "resolve type", err)
	}
	if class == nil {
		return nil, unexpected(CodeTypeResolution, identifier, "resolve type", ErrTypeNotFound)
	}
	return class, nil
}

func (e *Extractor) extract(ctx context.Context, identifier string) (*ObjectSignature, error) {
	class, err := e.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	w := walker{identifier: identifier, untyped: e.untyped}

	constructorArguments, err := w.constructorArguments(class)
	if err != nil {
		return nil, err
	}
	properties, err := w.properties(class)
	if err != nil {
		return nil, err
	}
	methods, err := w.methods(class)
	if err != nil {
		return nil, err
	}

	return &ObjectSignature{
		ObjectName:           identifier,
		IsReadOnly:           class.Modifiers.Has(ModReadOnly),
		IsFinal:              class.Modifiers.Has(ModFinal),
		ConstructorArguments: constructorArguments,
		Properties:           properties,
		Methods:              methods,
	}, nil
}
