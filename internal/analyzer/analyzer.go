// Package analyzer provides signature metadata from Go packages type-checked
// with go/types.
package analyzer

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/tools/go/packages"

	"github.com/olehluchkiv/gosignature/pkg/signature"
)

// Provider resolves "<import path>.<Name>" identifiers against loaded
// packages. Packages that were not part of the initial load are loaded on
// first use.
type Provider struct {
	dir    string
	opts   Options
	logger *slog.Logger
	fset   *token.FileSet

	mu    sync.Mutex
	pkgs  map[string]*loadedPackage
	roots []string
}

var _ signature.Provider = (*Provider)(nil)

// NewProvider loads the packages under dir.
func NewProvider(ctx context.Context, dir string, opts Options, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Provider{
		dir:    dir,
		opts:   opts,
		logger: logger.With("component", "analyzer"),
		fset:   token.NewFileSet(),
		pkgs:   make(map[string]*loadedPackage),
	}

	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	pkgs, err := p.load(ctx, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}
	for _, pkg := range pkgs {
		p.roots = append(p.roots, pkg.PkgPath)
	}

	if opts.IncludeStdlib {
		if _, err := p.load(ctx, stdlibPatterns...); err != nil {
			p.logger.Warn("failed to load stdlib packages", "error", err)
		}
	}

	p.logger.Info("packages loaded", "packages_count", len(p.pkgs))
	return p, nil
}

// load runs packages.Load and indexes the result. Callers other than
// NewProvider must hold p.mu.
func (p *Provider) load(ctx context.Context, patterns ...string) ([]*packages.Package, error) {
	cfg := &packages.Config{
		Mode:    loadMode,
		Dir:     p.dir,
		Context: ctx,
		Fset:    p.fset,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, err
	}
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			p.logger.Warn("package load error", "package", pkg.PkgPath, "error", e.Msg)
		}
		if pkg.Types == nil {
			continue
		}
		p.pkgs[pkg.PkgPath] = &loadedPackage{pkg: pkg, docs: indexDocs(pkg.Syntax)}
	}
	return pkgs, nil
}

// Class implements signature.Provider.
func (p *Provider) Class(ctx context.Context, name string) (*signature.ClassMeta, error) {
	pkgPath, typeName := splitIdentifier(name)

	var obj types.Object
	var scope *types.Scope
	if pkgPath == "" {
		obj = types.Universe.Lookup(typeName)
	} else {
		lp, err := p.lookupPackage(ctx, pkgPath)
		if err != nil {
			return nil, err
		}
		scope = lp.pkg.Types.Scope()
		obj = scope.Lookup(typeName)
	}

	tn, ok := obj.(*types.TypeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", signature.ErrTypeNotFound, name)
	}
	named, ok := types.Unalias(tn.Type()).(*types.Named)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not name a defined type", signature.ErrTypeNotFound, name)
	}

	p.logger.Debug("type resolved", "type", name, "source", p.sourceFile(tn))

	b := &classBuilder{
		p:          p,
		identifier: name,
		named:      named,
		scope:      scope,
	}
	return b.build()
}

// Identifiers lists the defined types of the initially loaded packages,
// filtered by the provider's options.
func (p *Provider) Identifiers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for _, path := range p.roots {
		lp := p.pkgs[path]
		if lp == nil {
			continue
		}
		scope := lp.pkg.Types.Scope()
		for _, name := range scope.Names() {
			if _, ok := scope.Lookup(name).(*types.TypeName); ok {
				ids = append(ids, path+"."+name)
			}
		}
	}
	return Filter(ids, p.opts)
}

func (p *Provider) lookupPackage(ctx context.Context, pkgPath string) (*loadedPackage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if lp, ok := p.pkgs[pkgPath]; ok {
		return lp, nil
	}
	p.logger.Debug("loading package on demand", "package", pkgPath)
	if _, err := p.load(ctx, pkgPath); err != nil {
		return nil, fmt.Errorf("loading package %s: %w", pkgPath, err)
	}
	lp, ok := p.pkgs[pkgPath]
	if !ok {
		return nil, fmt.Errorf("%w: package %s", signature.ErrTypeNotFound, pkgPath)
	}
	return lp, nil
}

// doc returns the doc comment of a declaration, if its package was loaded
// from source.
func (p *Provider) doc(obj types.Object) *ast.CommentGroup {
	if obj.Pkg() == nil {
		return nil
	}
	p.mu.Lock()
	lp := p.pkgs[obj.Pkg().Path()]
	p.mu.Unlock()
	if lp == nil {
		return nil
	}
	return lp.docs[obj.Pos()]
}

// sourceFile resolves the declaring file of obj relative to the provider's
// directory.
func (p *Provider) sourceFile(obj types.Object) string {
	if !obj.Pos().IsValid() {
		return ""
	}
	position := p.fset.Position(obj.Pos())
	if !position.IsValid() || position.Filename == "" {
		return ""
	}
	rel, err := filepath.Rel(p.dir, position.Filename)
	if err != nil {
		return position.Filename
	}
	return rel
}

// splitIdentifier splits "<import path>.<Name>" at the last dot of the last
// path element. Identifiers without one name a predeclared type.
func splitIdentifier(id string) (pkgPath, name string) {
	dot := strings.LastIndexByte(id, '.')
	if dot < 0 || dot < strings.LastIndexByte(id, '/') {
		return "", id
	}
	return id[:dot], id[dot+1:]
}

// indexDocs maps the name position of every function, field and interface
// method to its doc comment.
func indexDocs(files []*ast.File) map[token.Pos]*ast.CommentGroup {
	docs := make(map[token.Pos]*ast.CommentGroup)
	for _, f := range files {
		ast.Inspect(f, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.FuncDecl:
				if n.Doc != nil {
					docs[n.Name.Pos()] = n.Doc
				}
			case *ast.Field:
				if n.Doc == nil {
					return true
				}
				if len(n.Names) == 0 {
					if id := embeddedIdent(n.Type); id != nil {
						docs[id.Pos()] = n.Doc
					}
				}
				for _, name := range n.Names {
					docs[name.Pos()] = n.Doc
				}
			}
			return true
		})
	}
	return docs
}

// embeddedIdent returns the identifier go/types uses as the position of an
// embedded field.
func embeddedIdent(e ast.Expr) *ast.Ident {
	switch e := e.(type) {
	case *ast.Ident:
		return e
	case *ast.StarExpr:
		return embeddedIdent(e.X)
	case *ast.SelectorExpr:
		return e.Sel
	case *ast.IndexExpr:
		return embeddedIdent(e.X)
	case *ast.IndexListExpr:
		return embeddedIdent(e.X)
	}
	return nil
}
