// SPDX-License-Identifier: MPL-2.0

package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/encoding/toml"

	"github.com/Klinikumxd/cibuildwheel/internal/matrix"
)

// maxFileSize bounds how much of a pyproject.toml is read.
const maxFileSize = 4 << 20

//go:embed schema.cue
var configSchema string

type (
	// layer maps option names to string, int or environmentValue values.
	layer map[string]any

	// tableEntry is one row of a TOML environment table, kept in file order.
	tableEntry struct {
		Name  string
		Value string
	}

	// environmentValue holds the environment option in either form. Layers
	// merge only values of the same Go type, so both forms share one type.
	environmentValue struct {
		Text    string
		Table   []tableEntry
		IsTable bool
	}

	override struct {
		selectors []string
		options   layer
	}

	// fileLayers is the decoded [tool.cibuildwheel] table.
	fileLayers struct {
		global    layer
		platforms map[matrix.Platform]layer
		overrides []override
	}
)

// decodePyproject validates the [tool.cibuildwheel] table of a pyproject.toml
// against #Config and splits it into layers. A file without the table yields
// empty layers.
func decodePyproject(path string, data []byte) (*fileLayers, error) {
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxFileSize)
	}

	expr, err := toml.NewDecoder(path, bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, formatCUEError(err, path)
	}

	ctx := cuecontext.New()
	doc := ctx.BuildExpr(expr)
	if doc.Err() != nil {
		return nil, formatCUEError(doc.Err(), path)
	}

	out := &fileLayers{global: layer{}, platforms: map[matrix.Platform]layer{}}
	table := doc.LookupPath(cue.ParsePath("tool.cibuildwheel"))
	if !table.Exists() {
		return out, nil
	}

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}
	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(table)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err, path)
	}

	if out.global, err = layerFrom(unified, "linux", "macos", "windows", "overrides"); err != nil {
		return nil, formatCUEError(err, path)
	}
	for _, p := range []matrix.Platform{matrix.Linux, matrix.MacOS, matrix.Windows} {
		v := unified.LookupPath(cue.MakePath(cue.Str(string(p))))
		if !v.Exists() {
			continue
		}
		if out.platforms[p], err = layerFrom(v); err != nil {
			return nil, formatCUEError(err, path)
		}
	}

	overrides := unified.LookupPath(cue.ParsePath("overrides"))
	if overrides.Exists() {
		items, err := overrides.List()
		if err != nil {
			return nil, formatCUEError(err, path)
		}
		for items.Next() {
			item := items.Value()
			sel, err := listValue(item.LookupPath(cue.ParsePath("select")), " ")
			if err != nil {
				return nil, formatCUEError(err, path)
			}
			if _, err := matrix.NewSelector(sel, ""); err != nil {
				return nil, fmt.Errorf("%w: %s: overrides: %w", ErrInvalidConfig, path, err)
			}
			opts, err := layerFrom(item, "select")
			if err != nil {
				return nil, formatCUEError(err, path)
			}
			out.overrides = append(out.overrides, override{selectors: strings.Fields(sel), options: opts})
		}
	}
	return out, nil
}

func layerFrom(v cue.Value, skip ...string) (layer, error) {
	it, err := v.Fields()
	if err != nil {
		return nil, err
	}
	out := layer{}
next:
	for it.Next() {
		name := it.Selector().Unquoted()
		for _, s := range skip {
			if s == name {
				continue next
			}
		}
		val, err := optionValue(name, it.Value())
		if err != nil {
			return nil, err
		}
		out[name] = val
	}
	return out, nil
}

func optionValue(name string, v cue.Value) (any, error) {
	if name == "environment" {
		if v.Kind() == cue.StructKind {
			table, err := tableValue(v)
			return environmentValue{Table: table, IsTable: true}, err
		}
		text, err := v.String()
		return environmentValue{Text: text}, err
	}
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		n, err := v.Int64()
		return int(n), err
	case cue.ListKind:
		return listValue(v, listSeparator(name))
	default:
		return nil, fmt.Errorf("%s: unsupported value kind %s", name, v.Kind())
	}
}

// listValue joins a string or a list of strings.
func listValue(v cue.Value, sep string) (string, error) {
	if v.Kind() == cue.StringKind {
		return v.String()
	}
	items, err := v.List()
	if err != nil {
		return "", err
	}
	var parts []string
	for items.Next() {
		s, err := items.Value().String()
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep), nil
}

func tableValue(v cue.Value) ([]tableEntry, error) {
	it, err := v.Fields()
	if err != nil {
		return nil, err
	}
	var out []tableEntry
	for it.Next() {
		s, err := it.Value().String()
		if err != nil {
			return nil, err
		}
		out = append(out, tableEntry{Name: it.Selector().Unquoted(), Value: s})
	}
	return out, nil
}

// listSeparator returns how list-valued options are joined: shell commands
// run one after another, extras form a comma list, everything else is a
// whitespace-separated list.
func listSeparator(name string) string {
	switch name {
	case "before-all", "before-build", "repair-wheel-command", "test-command", "before-test":
		return " && "
	case "test-extras":
		return ","
	default:
		return " "
	}
}

// formatCUEError renders CUE errors as "<file>: <path>: <message>" lines.
func formatCUEError(err error, path string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}

	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		field := strings.Join(cueerrors.Path(e), ".")
		field = strings.TrimPrefix(field, "#Config.")
		msg := e.Error()
		if field != "" && strings.HasPrefix(msg, field) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, field), ":"))
		}
		if field != "" {
			msg = field + ": " + msg
		}
		lines = append(lines, msg)
	}
	if len(lines) == 1 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, path, lines[0])
	}
	return fmt.Errorf("%w: %s:\n  %s", ErrInvalidConfig, path, strings.Join(lines, "\n  "))
}
