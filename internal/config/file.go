package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/bootreplay/internal/ctxlog"
	"github.com/specialistvlad/bootreplay/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"gopkg.in/yaml.v3"
)

// FileExtensions lists the configuration file formats LoadFile understands.
var FileExtensions = []string{".hcl", ".yaml", ".yml"}

// fileRoot decodes the top level of an HCL configuration file. Anything
// other than config blocks is left in Remain and ignored.
type fileRoot struct {
	Namespaces []*namespaceBlock `hcl:"config,block"`
	Remain     hcl.Body          `hcl:",remain"`
}

type namespaceBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// LoadFiles reads every configuration file found under paths, in path
// order and then file name order. Paths that do not exist are skipped.
func LoadFiles(ctx context.Context, paths ...string) ([]Source, error) {
	logger := ctxlog.FromContext(ctx)

	var sources []Source
	seen := make(map[string]bool)
	for _, path := range paths {
		files, err := fsutil.FindFilesByExtension(path, FileExtensions...)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Debug("Config path does not exist, skipping.", "path", path)
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		for _, file := range files {
			if seen[file] {
				continue
			}
			seen[file] = true
			src, err := LoadFile(file)
			if err != nil {
				return nil, err
			}
			logger.Debug("Loaded config file.", "file", file, "keys", len(src.Values))
			sources = append(sources, src)
		}
	}
	return sources, nil
}

// LoadFile reads one HCL or YAML file into a source.
func LoadFile(path string) (Source, error) {
	var (
		values map[string]string
		err    error
	)
	switch ext := filepath.Ext(path); ext {
	case ".hcl":
		values, err = loadHCL(path)
	case ".yaml", ".yml":
		values, err = loadYAML(path)
	default:
		return Source{}, fmt.Errorf("unsupported config file type %q: %s", ext, path)
	}
	if err != nil {
		return Source{}, err
	}
	return FromMap(path, values), nil
}

func loadHCL(path string) (map[string]string, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	values := make(map[string]string)
	for _, block := range root.Namespaces {
		attrs, diags := block.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("config %q in %s: %w", block.Name, path, diags)
		}
		for name, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("config %q in %s: %w", block.Name, path, diags)
			}
			if val.IsNull() {
				continue
			}
			s, err := ctyToString(val)
			if err != nil {
				return nil, fmt.Errorf("config %q attribute %q in %s: %w", block.Name, name, path, err)
			}
			values[block.Name+"."+name] = s
		}
	}
	return values, nil
}

// ctyToString renders primitives as strings and collections of primitives
// as comma separated lists.
func ctyToString(val cty.Value) (string, error) {
	ty := val.Type()
	if ty.IsListType() || ty.IsTupleType() || ty.IsSetType() {
		var parts []string
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			s, err := ctyToString(elem)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("value of type %s cannot be used as a string", ty.FriendlyName())
	}
	return str.AsString(), nil
}

func loadYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read YAML file %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file %s: %w", path, err)
	}
	values := make(map[string]string)
	flatten("", doc, values)
	return values, nil
}

// flatten joins nested mapping keys with "." and lists with ",".
func flatten(prefix string, v any, out map[string]string) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch tv := v.(type) {
	case nil:
	case map[string]any:
		for k, child := range tv {
			flatten(join(k), child, out)
		}
	case map[any]any:
		for k, child := range tv {
			flatten(join(fmt.Sprint(k)), child, out)
		}
	case []any:
		parts := make([]string, 0, len(tv))
		for _, elem := range tv {
			parts = append(parts, fmt.Sprint(elem))
		}
		out[prefix] = strings.Join(parts, ",")
	default:
		out[prefix] = fmt.Sprint(tv)
	}
}
