// validator.go: Compatibility Validator (C3).
//
// Same posture as config_validation.go's sentinel-error validators —
// a sequence of checks run in order — but returning a data verdict
// rather than an error, since an incompatible change is an expected
// outcome, not a failure (spec §4.3: "never throws").
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import "sort"

// Validate decides the Compatibility Verdict for a class transitioning
// from prior metadata to current metadata. prior is the zero value when
// this is the first observation of the class, which is unconditionally
// Compatible (spec §4.3).
func Validate(prior, current ClassMetadata) CompatibilityVerdict {
	if prior.ClassName == "" {
		return Compatible("first observation of class")
	}

	if prior.ClassName != current.ClassName {
		return Incompatible(ReasonHierarchyChanged, "class name changed: "+prior.ClassName+" -> "+current.ClassName)
	}
	if prior.Superclass != current.Superclass {
		return Incompatible(ReasonHierarchyChanged, "superclass changed: "+prior.Superclass+" -> "+current.Superclass)
	}
	if !sameStringSet(prior.Interfaces, current.Interfaces) {
		return Incompatible(ReasonInterfaceSetChanged, "interface set changed")
	}

	if verdict, ok := diffFields(prior.Fields, current.Fields); !ok {
		return verdict
	}
	if verdict, ok := diffMethods(prior.Methods, current.Methods); !ok {
		return verdict
	}

	return Compatible("method bodies changed only")
}

func diffFields(prior, current []ClassField) (CompatibilityVerdict, bool) {
	priorByName := make(map[string]ClassField, len(prior))
	for _, f := range prior {
		priorByName[f.Name] = f
	}
	currentByName := make(map[string]ClassField, len(current))
	for _, f := range current {
		currentByName[f.Name] = f
	}

	for name, pf := range priorByName {
		cf, ok := currentByName[name]
		if !ok {
			return Incompatible(ReasonFieldRemoved, name), false
		}
		if cf.Descriptor != pf.Descriptor || cf.Modifiers != pf.Modifiers {
			return Incompatible(ReasonFieldTypeChanged, name), false
		}
	}
	for name := range currentByName {
		if _, ok := priorByName[name]; !ok {
			return Incompatible(ReasonFieldAdded, name), false
		}
	}
	return CompatibilityVerdict{}, true
}

func diffMethods(prior, current []ClassMethod) (CompatibilityVerdict, bool) {
	priorSet := make(map[string]ClassMethod, len(prior))
	for _, m := range prior {
		priorSet[m.Name+m.Descriptor] = m
	}
	currentSet := make(map[string]ClassMethod, len(current))
	for _, m := range current {
		currentSet[m.Name+m.Descriptor] = m
	}

	for key, pm := range priorSet {
		cm, ok := currentSet[key]
		if !ok {
			return Incompatible(ReasonMethodAddedOrRemoved, pm.Name), false
		}
		if cm.Modifiers != pm.Modifiers {
			return Incompatible(ReasonMethodSignatureChanged, pm.Name), false
		}
	}
	for key, cm := range currentSet {
		if _, ok := priorSet[key]; !ok {
			return Incompatible(ReasonMethodAddedOrRemoved, cm.Name), false
		}
	}
	return CompatibilityVerdict{}, true
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
