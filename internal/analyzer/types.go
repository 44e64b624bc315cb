package analyzer

import (
	"go/ast"
	"go/token"

	"golang.org/x/tools/go/packages"
)

// Options controls which packages are loaded and listed.
type Options struct {
	Patterns          []string // load patterns, "./..." when empty
	Filter            string   // package path prefix filter for Identifiers
	IncludeStdlib     bool
	IncludeUnexported bool
}

// loadedPackage is a type-checked package with its doc comments indexed by
// declaration position.
type loadedPackage struct {
	pkg  *packages.Package
	docs map[token.Pos]*ast.CommentGroup
}

// stdlibPatterns are preloaded when stdlib types are requested.
var stdlibPatterns = []string{"fmt", "io", "io/fs", "encoding", "encoding/json", "sort", "hash", "context"}

const loadMode = packages.NeedName | packages.NeedTypes | packages.NeedSyntax |
	packages.NeedTypesInfo | packages.NeedImports
