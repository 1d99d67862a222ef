package compiler

// Layout assigns storage for the declarations of a checked program. It
// augments env in place, so callers pass a clone.
//
// Classes record their instance size before any later declaration can use
// them. Fields are embedded by value: a scalar field takes one word and a
// class-typed field takes the nested class's size. A top-level variable
// takes one word, or the instance size of its class; an object alias takes
// nothing and shares the storage of the name it aliases.
func Layout(checked *Checked, env *GlobalEnv) error {
	for _, d := range checked.Program.Decls {
		switch d := d.(type) {
		case *ClassDef:
			if err := layoutClass(checked.Classes[d.Name], d, env); err != nil {
				return err
			}
		case *FuncDef:
			env.Funcs[d.Name] = checked.Funcs[d.Name].clone()
		case *VarDef:
			if err := layoutGlobal(d, env); err != nil {
				return err
			}
		}
	}
	if env.Offset*WordSize > env.HeapPointerAddr() {
		return typeErrorf(checked.Program.SpanVal,
			"out of global storage: %d words do not fit in %d memory pages", env.Offset, env.MemoryPages)
	}
	return nil
}

func layoutClass(checked *ClassInfo, d *ClassDef, env *GlobalEnv) error {
	if checked == nil {
		return internalErrorf(d.SpanVal, "class %s was not type checked", d.Name)
	}
	info := checked.clone()
	size := 0
	for i := range info.Fields {
		f := &info.Fields[i]
		f.Offset = size
		if !f.Type.IsClass() {
			size++
			continue
		}
		nested, ok := env.ClassSizes[f.Type.Name]
		if !ok {
			return internalErrorf(d.SpanVal, "size of class %s is not recorded", f.Type.Name)
		}
		size += nested
	}
	env.Classes[d.Name] = info
	env.ClassSizes[d.Name] = size
	return nil
}

func layoutGlobal(v *VarDef, env *GlobalEnv) error {
	env.Types[v.Name] = v.Type
	if alias, ok := v.Init.(*ObjectLit); ok {
		off, ok := env.Offsets[alias.Name]
		if !ok {
			return internalErrorf(alias.SpanVal, "alias target %q has no storage", alias.Name)
		}
		env.Offsets[v.Name] = off
		env.Aliases[v.Name] = alias.Name
		return nil
	}
	if _, shared := env.Aliases[v.Name]; shared {
		// A former alias gets storage of its own.
		delete(env.Aliases, v.Name)
	} else if _, redeclared := env.Offsets[v.Name]; redeclared {
		return nil
	}
	words := 1
	if v.Type.IsClass() {
		size, ok := env.ClassSizes[v.Type.Name]
		if !ok {
			return internalErrorf(v.SpanVal, "size of class %s is not recorded", v.Type.Name)
		}
		// An empty class still needs an address of its own.
		words = max(size, 1)
	}
	env.Offsets[v.Name] = env.Offset
	env.Offset += words
	return nil
}
