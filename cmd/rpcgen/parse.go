package main

import (
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

const (
	rpcImport   = "github.com/yndnr/nodemesh-go/internal/rpc"
	proxyImport = "github.com/yndnr/nodemesh-go/internal/rpc/proxy"
	taskImport  = "github.com/yndnr/nodemesh-go/pkg/task"
)

var errNoPackage = errors.New("rpcgen: no package found")

// load type checks the package in dir.
func load(dir string) (*packages.Package, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
			packages.NeedTypes | packages.NeedTypesInfo,
		Dir: dir,
	}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		return nil, fmt.Errorf("rpcgen: load %s: %w", dir, err)
	}
	if len(pkgs) == 0 {
		return nil, errNoPackage
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return nil, fmt.Errorf("rpcgen: %s: %v", pkg.PkgPath, pkg.Errors[0])
	}
	return pkg, nil
}

// buildFile extracts the named interfaces of pkg.
func buildFile(pkg *packages.Package, names []string) (*File, error) {
	docs := collectDocs(pkg.Syntax)
	imports := map[string]bool{rpcImport: true, proxyImport: true, "reflect": true}
	qualifier := func(p *types.Package) string {
		if p == pkg.Types {
			return ""
		}
		imports[p.Path()] = true
		return p.Name()
	}

	generated := make(map[string]bool, len(names))
	for _, n := range names {
		generated[n] = true
	}

	file := &File{Package: pkg.Name}
	for _, name := range names {
		obj := pkg.Types.Scope().Lookup(name)
		if obj == nil {
			return nil, fmt.Errorf("rpcgen: type %s not found in %s", name, pkg.PkgPath)
		}
		iface, ok := obj.Type().Underlying().(*types.Interface)
		if !ok {
			return nil, fmt.Errorf("rpcgen: %s is not an interface", name)
		}

		var mk markers
		if err := applyMarkers(&mk, docs.types[name]); err != nil {
			return nil, fmt.Errorf("rpcgen: %s: %w", name, err)
		}
		gi := Interface{Name: name, Timeout: mk.timeout}

		for i := 0; i < iface.NumMethods(); i++ {
			fn := iface.Method(i)
			m, err := buildMethod(fn, docs.methods[fn.Pos()], generated, qualifier)
			if err != nil {
				return nil, fmt.Errorf("rpcgen: %s.%s: %w", name, fn.Name(), err)
			}
			if m.Timeout > 0 || mk.timeout > 0 {
				imports["time"] = true
			}
			if m.Context == "" && (m.Kind == KindSync || m.Kind == KindAsync) {
				imports["context"] = true
			}
			gi.Methods = append(gi.Methods, m)
		}
		file.Interfaces = append(file.Interfaces, gi)
	}

	for path := range imports {
		file.Imports = append(file.Imports, path)
	}
	sort.Strings(file.Imports)
	return file, nil
}

func buildMethod(fn *types.Func, doc *ast.CommentGroup, generated map[string]bool, q types.Qualifier) (Method, error) {
	sig := fn.Type().(*types.Signature)
	if sig.Variadic() {
		return Method{}, errors.New("variadic methods are not supported")
	}

	var mk markers
	if err := applyMarkers(&mk, doc); err != nil {
		return Method{}, err
	}

	m := Method{Name: fn.Name(), RemoteName: fn.Name(), Timeout: mk.timeout}
	for i := 0; i < sig.Params().Len(); i++ {
		v := sig.Params().At(i)
		name := v.Name()
		if name == "" || name == "_" {
			name = fmt.Sprintf("arg%d", i)
		}
		typ := types.TypeString(v.Type(), q)
		if i == 0 && isContext(v.Type()) {
			m.Context = name
		}
		m.Params = append(m.Params, Param{Name: name, Type: typ})
	}
	for i := 0; i < sig.Results().Len(); i++ {
		m.Results = append(m.Results, types.TypeString(sig.Results().At(i).Type(), q))
	}

	if mk.local {
		m.Kind = KindLocal
		return m, nil
	}

	res := sig.Results()
	switch res.Len() {
	case 0:
	case 1:
		t := res.At(0).Type()
		switch {
		case isError(t):
			m.ReturnsError = true
		case futureArg(t) != nil:
			m.Kind = KindAsync
			m.Result = types.TypeString(futureArg(t), q)
			m.RemoteName = strings.TrimSuffix(m.Name, "Async")
			if m.RemoteName == "" {
				m.RemoteName = m.Name
			}
		case chainTarget(t, generated) != "":
			m.Kind = KindChain
			m.Chain = chainTarget(t, generated)
		default:
			m.Result = types.TypeString(t, q)
		}
	case 2:
		if !isError(res.At(1).Type()) {
			return Method{}, errors.New("second result must be error")
		}
		m.Result = types.TypeString(res.At(0).Type(), q)
		m.ReturnsError = true
	default:
		return Method{}, errors.New("at most two results are supported")
	}

	if mk.noResult {
		if m.Kind != KindSync || m.Result != "" {
			return Method{}, errors.New("//rpc:noresult methods may only return error")
		}
		m.Kind = KindNoResult
	}
	if m.Kind == KindChain && m.Timeout > 0 {
		return Method{}, errors.New("//rpc:timeout has no effect on chain methods")
	}
	return m, nil
}

func applyMarkers(mk *markers, doc *ast.CommentGroup) error {
	if doc == nil {
		return nil
	}
	for _, c := range doc.List {
		if _, err := mk.parseMarker(c.Text); err != nil {
			return err
		}
	}
	return nil
}

type docIndex struct {
	types   map[string]*ast.CommentGroup
	methods map[token.Pos]*ast.CommentGroup
}

// collectDocs indexes the doc comments of interface declarations and their
// methods. Directive lines are kept, unlike CommentGroup.Text.
func collectDocs(files []*ast.File) docIndex {
	idx := docIndex{
		types:   make(map[string]*ast.CommentGroup),
		methods: make(map[token.Pos]*ast.CommentGroup),
	}
	for _, f := range files {
		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				it, ok := ts.Type.(*ast.InterfaceType)
				if !ok {
					continue
				}
				doc := ts.Doc
				if doc == nil && len(gd.Specs) == 1 {
					doc = gd.Doc
				}
				idx.types[ts.Name.Name] = doc
				for _, field := range it.Methods.List {
					if len(field.Names) == 0 || field.Doc == nil {
						continue
					}
					idx.methods[field.Names[0].Pos()] = field.Doc
				}
			}
		}
	}
	return idx
}

func isContext(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == "context" && obj.Name() == "Context"
}

func isError(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

// futureArg returns T when t is *task.Future[T].
func futureArg(t types.Type) types.Type {
	ptr, ok := t.(*types.Pointer)
	if !ok {
		return nil
	}
	named, ok := ptr.Elem().(*types.Named)
	if !ok {
		return nil
	}
	obj := named.Obj()
	if obj.Pkg() == nil || obj.Pkg().Path() != taskImport || obj.Name() != "Future" {
		return nil
	}
	if named.TypeArgs().Len() != 1 {
		return nil
	}
	return named.TypeArgs().At(0)
}

// chainTarget returns the name of a generated interface t refers to.
func chainTarget(t types.Type, generated map[string]bool) string {
	named, ok := t.(*types.Named)
	if !ok {
		return ""
	}
	if _, ok := named.Underlying().(*types.Interface); !ok {
		return ""
	}
	if !generated[named.Obj().Name()] {
		return ""
	}
	return named.Obj().Name()
}
