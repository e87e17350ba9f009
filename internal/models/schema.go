// Reflection of the stored types into JSON Schemas.

package models

import (
	"sort"

	"github.com/invopop/jsonschema"
)

// Schemas returns the JSON Schema of every stored entity type, keyed by the
// on-disk file the type describes. Field descriptions come from the
// `jsonschema:"description=..."` struct tags.
//
// External tooling uses these to validate a data directory without importing
// this module.
func Schemas() map[string]*jsonschema.Schema {
	r := &jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	return map[string]*jsonschema.Schema{
		"chat.json":       r.Reflect(&Chat{}),
		"repository.json": r.Reflect(&Repository{}),
		"metadata.json":   r.Reflect(&RepositoryFile{}),
		"image.json":      r.Reflect(&GeneratedImage{}),
		"index.json":      r.Reflect(&IndexEntry{}),
		"SKILL.md":        r.Reflect(&Skill{}),
	}
}

// SchemaNames returns the keys of [Schemas] in sorted order.
func SchemaNames() []string {
	s := Schemas()
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
