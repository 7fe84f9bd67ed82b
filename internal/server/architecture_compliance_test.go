package server

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"testing"
)

type registeredRoute struct {
	method  string
	path    string
	handler string
	authed  bool
}

type boundaryCalls struct {
	files       []string
	authService []string
	store       []string
}

func TestFileRoutesUseTransferBoundary(t *testing.T) {
	routes := parseRegisteredRoutes(t)
	methods := parseServerMethods(t)

	fileRoutes := make([]registeredRoute, 0)
	for _, route := range routes {
		if isFilePath(route.path) {
			fileRoutes = append(fileRoutes, route)
		}
	}
	if len(fileRoutes) == 0 {
		t.Fatal("no file routes discovered")
	}

	for _, route := range fileRoutes {
		if !route.authed {
			t.Fatalf("route %s %s is not wrapped in withAuth", route.method, route.path)
		}
		if _, ok := methods[route.handler]; !ok {
			t.Fatalf("handler %q for %s %s not found", route.handler, route.method, route.path)
		}
		calls := inspectBoundaryCalls(methods, route.handler)
		if len(calls.store) > 0 {
			t.Fatalf("handler %q (%s %s) reaches storage directly: %v", route.handler, route.method, route.path, calls.store)
		}
		if len(calls.authService) > 0 {
			t.Fatalf("handler %q (%s %s) calls the account service: %v", route.handler, route.method, route.path, calls.authService)
		}
		if len(calls.files) == 0 {
			t.Fatalf("handler %q (%s %s) does not call the transfer service", route.handler, route.method, route.path)
		}
	}
}

func TestAccountRoutesUseAuthBoundary(t *testing.T) {
	routes := parseRegisteredRoutes(t)
	methods := parseServerMethods(t)

	found := 0
	for _, route := range routes {
		if !strings.HasPrefix(route.path, "/api/auth/") {
			continue
		}
		found++
		if route.authed {
			t.Fatalf("route %s %s must not require a token", route.method, route.path)
		}
		calls := inspectBoundaryCalls(methods, route.handler)
		if len(calls.authService) == 0 {
			t.Fatalf("handler %q (%s %s) does not call the account service", route.handler, route.method, route.path)
		}
		if len(calls.files) > 0 || len(calls.store) > 0 {
			t.Fatalf("handler %q (%s %s) reaches file storage: %v %v", route.handler, route.method, route.path, calls.files, calls.store)
		}
	}
	if found == 0 {
		t.Fatal("no account routes discovered")
	}
}

func parseRegisteredRoutes(t *testing.T) []registeredRoute {
	t.Helper()

	routesPath := filepath.Join(serverPackageDir(t), "routes.go")
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, routesPath, nil, 0)
	if err != nil {
		t.Fatalf("parse routes.go: %v", err)
	}

	routes := make([]registeredRoute, 0)
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || (sel.Sel.Name != "HandleFunc" && sel.Sel.Name != "Handle") || len(call.Args) != 2 {
			return true
		}

		patternLit, ok := call.Args[0].(*ast.BasicLit)
		if !ok || patternLit.Kind != token.STRING {
			return true
		}
		pattern, err := strconv.Unquote(patternLit.Value)
		if err != nil {
			t.Fatalf("unquote route pattern %q: %v", patternLit.Value, err)
		}
		parts := strings.SplitN(pattern, " ", 2)
		if len(parts) != 2 {
			return true
		}

		handler, authed := resolveHandler(call.Args[1])
		if handler == "" {
			return true
		}
		routes = append(routes, registeredRoute{
			method:  strings.TrimSpace(parts[0]),
			path:    strings.TrimSpace(parts[1]),
			handler: handler,
			authed:  authed,
		})
		return true
	})

	return routes
}

// resolveHandler unwraps s.withAuth(http.HandlerFunc(s.handleX)) down to the
// handler method name.
func resolveHandler(expr ast.Expr) (string, bool) {
	switch e := expr.(type) {
	case *ast.SelectorExpr:
		recv, ok := e.X.(*ast.Ident)
		if !ok || recv.Name != "s" {
			return "", false
		}
		return e.Sel.Name, false
	case *ast.CallExpr:
		if len(e.Args) != 1 {
			return "", false
		}
		name, authed := resolveHandler(e.Args[0])
		if sel, ok := e.Fun.(*ast.SelectorExpr); ok && sel.Sel.Name == "withAuth" {
			authed = true
		}
		return name, authed
	}
	return "", false
}

func parseServerMethods(t *testing.T) map[string]*ast.FuncDecl {
	t.Helper()

	files, err := filepath.Glob(filepath.Join(serverPackageDir(t), "*.go"))
	if err != nil {
		t.Fatalf("glob server files: %v", err)
	}

	out := make(map[string]*ast.FuncDecl)
	fset := token.NewFileSet()
	for _, filePath := range files {
		if strings.HasSuffix(filePath, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filePath, nil, 0)
		if err != nil {
			t.Fatalf("parse %s: %v", filePath, err)
		}
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil || fn.Name == nil || fn.Body == nil {
				continue
			}
			if !isServerReceiver(fn.Recv) {
				continue
			}
			out[fn.Name.Name] = fn
		}
	}
	if len(out) == 0 {
		t.Fatal("no server methods found")
	}
	return out
}

// inspectBoundaryCalls collects s.<field>.<method> calls made by the named
// method and by any s.<helper> methods it calls.
func inspectBoundaryCalls(methods map[string]*ast.FuncDecl, name string) boundaryCalls {
	calls := boundaryCalls{}
	visited := map[string]bool{}
	var walk func(string)
	walk = func(name string) {
		fn, ok := methods[name]
		if !ok || visited[name] {
			return
		}
		visited[name] = true
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			selector, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			if recv, ok := selector.X.(*ast.Ident); ok && recv.Name == "s" {
				walk(selector.Sel.Name)
				return true
			}
			chain, ok := selector.X.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			recv, ok := chain.X.(*ast.Ident)
			if !ok || recv.Name != "s" {
				return true
			}

			switch chain.Sel.Name {
			case "files":
				calls.files = append(calls.files, selector.Sel.Name)
			case "authService":
				calls.authService = append(calls.authService, selector.Sel.Name)
			case "store", "chunks", "registry":
				calls.store = append(calls.store, selector.Sel.Name)
			}
			return true
		})
	}
	walk(name)
	calls.files = uniqueSorted(calls.files)
	calls.authService = uniqueSorted(calls.authService)
	calls.store = uniqueSorted(calls.store)
	return calls
}

func isFilePath(path string) bool {
	return path == "/api/upload" || strings.HasPrefix(path, "/api/files") || strings.HasPrefix(path, "/api/download/")
}

func isServerReceiver(recv *ast.FieldList) bool {
	if recv == nil || len(recv.List) != 1 {
		return false
	}
	star, ok := recv.List[0].Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	ident, ok := star.X.(*ast.Ident)
	return ok && ident.Name == "Server"
}

func serverPackageDir(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Dir(file)
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for value := range set {
		out = append(out, value)
	}
	slices.Sort(out)
	return out
}
