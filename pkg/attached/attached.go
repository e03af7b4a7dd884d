// Package attached computes derived analyses of a value.Value — the
// plug-in roster, symlink table, realpath resolver, and resolved-tree
// cache — and memoizes each on the Value's own metadata slot, so repeated
// calls against structurally-identical (hence pointer-identical) subtrees
// are free.
package attached

import (
	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/value"
)

const pluginDeclKey = "__plugin__"
const symlinkDeclKey = "__symlink__"

// PluginDecl is one entry in a Plugins() roster: the mount path relative
// to the scanned root, and the declaration mapping itself (the config
// handed to Init/UpdateConfig).
type PluginDecl struct {
	Path   path.Path
	Config *value.Value
}

const cachePlugins = "plugins"

// Plugins returns the ordered list of plug-in declarations reachable from
// v. A declaration is any mapping containing "__plugin__"; its descendants
// are not recursed into. Ordering is stable: mapping keys ascending,
// sequence indices in order, depth-first pre-order.
func Plugins(v *value.Value) []PluginDecl {
	if cached, ok := v.Meta().Get(cachePlugins); ok {
		return cached.([]PluginDecl)
	}
	result := pluginsUncached(v, nil)
	v.Meta().Set(cachePlugins, result)
	return result
}

func pluginsUncached(v *value.Value, prefix path.Path) []PluginDecl {
	if v.Kind() == value.KindMap {
		if v.Field(pluginDeclKey) != value.Absent {
			return []PluginDecl{{Path: append(path.Path{}, prefix...), Config: v}}
		}
		var out []PluginDecl
		for _, k := range v.Keys() {
			child := v.Field(k)
			if child.Kind() == value.KindMap || child.Kind() == value.KindList {
				out = append(out, pluginsUncached(child, prefix.Append(path.Key(k)))...)
			}
		}
		return out
	}
	if v.Kind() == value.KindList {
		var out []PluginDecl
		for i, child := range v.Items() {
			if child.Kind() == value.KindMap || child.Kind() == value.KindList {
				out = append(out, pluginsUncached(child, prefix.Append(path.Index(i)))...)
			}
		}
		return out
	}
	return nil
}

// Symlink reports whether v is itself a symbolic-link mapping
// (exactly one key, "__symlink__"). ok is false if v is not a symlink
// mapping at all; malformed is true if it is shaped like one but its
// target cannot be parsed as a path.
func Symlink(v *value.Value) (target path.Path, ok bool, malformed bool) {
	if v.Kind() != value.KindMap || v.Len() != 1 {
		return nil, false, false
	}
	keys := v.Keys()
	if keys[0] != symlinkDeclKey {
		return nil, false, false
	}
	dest := v.Field(symlinkDeclKey)
	p, valid := pathFromValue(dest)
	if !valid {
		return nil, true, true
	}
	return p, true, false
}

func pathFromValue(v *value.Value) (path.Path, bool) {
	switch v.Kind() {
	case value.KindString:
		return path.Parse(v.Str(), nil), true
	case value.KindList:
		p := make(path.Path, 0, v.Len())
		for _, e := range v.Items() {
			switch e.Kind() {
			case value.KindString:
				p = append(p, path.Key(e.Str()))
			case value.KindInt:
				p = append(p, path.Index(int(e.Int())))
			default:
				return nil, false
			}
		}
		return p, true
	default:
		return nil, false
	}
}

// SymlinkRef is one entry in a Symlinks() table.
type SymlinkRef struct {
	Location path.Path
	Target   path.Path
}

const cacheSymlinks = "symlinks"

// Symlinks returns the ordered list of (location, target) for every
// symlink reachable from v, descending into non-symlink containers only.
func Symlinks(v *value.Value) []SymlinkRef {
	if cached, ok := v.Meta().Get(cacheSymlinks); ok {
		return cached.([]SymlinkRef)
	}
	result := symlinksUncached(v, nil)
	v.Meta().Set(cacheSymlinks, result)
	return result
}

func symlinksUncached(v *value.Value, prefix path.Path) []SymlinkRef {
	if target, ok, malformed := Symlink(v); ok {
		if malformed {
			return nil
		}
		return []SymlinkRef{{Location: append(path.Path{}, prefix...), Target: target}}
	}
	var out []SymlinkRef
	switch v.Kind() {
	case value.KindMap:
		for _, k := range v.Keys() {
			child := v.Field(k)
			if child.Kind() == value.KindMap || child.Kind() == value.KindList {
				out = append(out, symlinksUncached(child, prefix.Append(path.Key(k)))...)
			}
		}
	case value.KindList:
		for i, child := range v.Items() {
			if child.Kind() == value.KindMap || child.Kind() == value.KindList {
				out = append(out, symlinksUncached(child, prefix.Append(path.Index(i)))...)
			}
		}
	}
	return out
}

// SymlinkInfoMap renders Symlinks(v) as formatted-location -> formatted-
// target, the shape published at sys.symlinks.
func SymlinkInfoMap(v *value.Value) map[string]string {
	refs := Symlinks(v)
	out := make(map[string]string, len(refs))
	for _, r := range refs {
		out[path.Format(r.Location)] = path.Format(r.Target)
	}
	return out
}

const cacheRealpath = "realpath"

// Realpath returns a function computing, for any location in v, the real
// location its symlink chain ultimately resolves to, or ok=false if the
// chain cycles.
func Realpath(v *value.Value) func(path.Path) (path.Path, bool) {
	if cached, ok := v.Meta().Get(cacheRealpath); ok {
		return cached.(func(path.Path) (path.Path, bool))
	}
	table := make(map[string]path.Path, 8)
	for _, r := range Symlinks(v) {
		table[path.Format(r.Location)] = r.Target
	}
	fn := func(location path.Path) (path.Path, bool) {
		return realpathImpl(table, location)
	}
	v.Meta().Set(cacheRealpath, fn)
	return fn
}

// realpathImpl walks location element by element, accumulating result;
// whenever result matches a declared symlink it is replaced by
// target++remaining and result resets to empty. A cycle is detected when
// the same accumulated result fires a symlink twice with a
// non-decreasing remaining-tail length.
func realpathImpl(table map[string]path.Path, location path.Path) (path.Path, bool) {
	remaining := append(path.Path{}, location...)
	var result path.Path
	fired := make(map[string]int)

	for len(remaining) > 0 {
		first := remaining[0]
		remaining = remaining[1:]
		result = result.Append(first)

		key := path.Format(result)
		dest, isSymlink := table[key]
		if !isSymlink {
			continue
		}
		if prevLen, seen := fired[key]; seen && len(remaining) >= prevLen {
			return nil, false
		}
		fired[key] = len(remaining)
		remaining = dest.Concat(remaining)
		result = path.Path{}
	}
	return result, true
}

const cacheResolveStep = "resolveStep"
const cacheResolveStepBack = "resolveStepBack"

// Resolved iteratively substitutes symlink destinations into their
// locations, up to maxSteps passes. The first maxBack passes use a "back"
// variant that tolerates self-ancestor targets (needed for convergence of
// nested references); later passes drop any symlink whose real destination
// is a prefix of its own location, which would otherwise make the target
// swallow the symlink.
func Resolved(v *value.Value, maxSteps, maxBack int) *value.Value {
	data := v
	for level := 0; level < maxSteps; level++ {
		var next *value.Value
		if level < maxBack {
			next = resolveStepBack(data)
		} else {
			next = resolveStep(data)
		}
		if next == data {
			break
		}
		data = next
	}
	return data
}

func resolveStep(data *value.Value) *value.Value {
	if cached, ok := data.Meta().Get(cacheResolveStep); ok {
		return cached.(*value.Value)
	}
	result := resolveStepUncached(data, false)
	data.Meta().Set(cacheResolveStep, result)
	return result
}

func resolveStepBack(data *value.Value) *value.Value {
	if cached, ok := data.Meta().Get(cacheResolveStepBack); ok {
		return cached.(*value.Value)
	}
	result := resolveStepUncached(data, true)
	data.Meta().Set(cacheResolveStepBack, result)
	return result
}

func resolveStepUncached(data *value.Value, allowBack bool) *value.Value {
	rp := Realpath(data)
	type replacement struct {
		loc  path.Path
		dest *value.Value
	}
	var replacements []replacement
	for _, ref := range Symlinks(data) {
		real, ok := rp(ref.Target)
		if !ok {
			continue
		}
		if !allowBack && ref.Location.HasPrefix(real) {
			// real destination is an ancestor of the symlink's own
			// location: substituting now would make the target swallow
			// the symlink. Only the back-resolve passes tolerate this.
			continue
		}
		replacements = append(replacements, replacement{loc: ref.Location, dest: value.GetAtPath(data, real)})
	}
	if len(replacements) == 0 {
		return data
	}
	out := data
	for _, r := range replacements {
		next, err := value.SetAtPath(out, r.loc, r.dest)
		if err != nil {
			continue
		}
		out = next
	}
	return out
}
