package pipeline

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stats"
)

// masterPathKey is shared by every report_preprocessing function.
const masterPathKey = "master_path"

// Load reads and decodes a pipeline file. ${VAR} references in string
// values are replaced with environment values. Stages keep the order in
// which they are written, as do their functions.
func Load(path string) (*Pipeline, error) {
	fp := file.Provider(path)
	b, err := fp.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline %s: %w", path, err)
	}
	order, err := readKeyOrder(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pipeline %s: %w", path, err)
	}

	k := koanf.New(".")
	if err := k.Load(fp, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load pipeline %s: %w", path, err)
	}
	raw, _ := expandEnv(k.Raw()).(map[string]any)
	if raw == nil {
		raw = map[string]any{}
	}
	return build(path, raw, order)
}

func build(path string, raw map[string]any, order keyOrder) (*Pipeline, error) {
	p := &Pipeline{Path: path, keys: order.keys("", raw), raw: raw}

	if v, ok := raw[InputDatasetKey]; ok {
		in, err := DecodeInput(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", InputDatasetKey, err)
		}
		p.Input = in
	}

	writes := []struct {
		key string
		dst **Location
	}{
		{WriteIntermediateKey, &p.WriteIntermediate},
		{WriteMainKey, &p.WriteMain},
		{WriteStatsKey, &p.WriteStats},
	}
	for _, w := range writes {
		v, ok := raw[w.key]
		if !ok || v == nil {
			continue
		}
		loc, err := decodeLocation(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w.key, err)
		}
		*w.dst = loc
	}

	for _, key := range p.keys {
		if !IsStage(key) {
			continue
		}
		st, err := buildStage(key, raw[key], order)
		if err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, st)
	}
	return p, nil
}

func buildStage(name string, v any, order keyOrder) (Stage, error) {
	args, _, err := argMap(name, v)
	if err != nil {
		return Stage{}, err
	}
	st := Stage{Name: name, Args: args}

	switch name {
	case StatsGenerator:
		metrics, err := dataset.ParseColumnList(args["metric"])
		if err != nil {
			return Stage{}, fmt.Errorf("%s.metric: %w", name, err)
		}
		if metrics.IsAll() {
			metrics = stats.Metrics
		}
		metricArgs, _, err := argMap(name+".metric_args", args["metric_args"])
		if err != nil {
			return Stage{}, err
		}
		for _, m := range metrics {
			st.Steps = append(st.Steps, Step{Name: m, Args: metricArgs})
		}
	case ReportGeneration:
	case ReportPreprocessing:
		for _, key := range order.keys(name, args) {
			if key == masterPathKey {
				continue
			}
			stepArgs, ok, err := argMap(name+"."+key, args[key])
			if err != nil {
				return Stage{}, err
			}
			if !ok {
				continue
			}
			if mp, set := args[masterPathKey]; set {
				if _, own := stepArgs[masterPathKey]; !own {
					stepArgs = withKey(stepArgs, masterPathKey, mp)
				}
			}
			st.Steps = append(st.Steps, Step{Name: key, Args: stepArgs})
		}
	case Transformers:
		for _, group := range order.keys(name, args) {
			fns, ok, err := argMap(name+"."+group, args[group])
			if err != nil {
				return Stage{}, err
			}
			if !ok {
				continue
			}
			for _, fn := range order.keys(name+"."+group, fns) {
				fnArgs, ok, err := argMap(name+"."+group+"."+fn, fns[fn])
				if err != nil {
					return Stage{}, err
				}
				if ok {
					st.Steps = append(st.Steps, Step{Group: group, Name: fn, Args: fnArgs})
				}
			}
		}
	default:
		for _, key := range order.keys(name, args) {
			stepArgs, ok, err := argMap(name+"."+key, args[key])
			if err != nil {
				return Stage{}, err
			}
			if ok {
				st.Steps = append(st.Steps, Step{Name: key, Args: stepArgs})
			}
		}
	}
	return st, nil
}

// argMap normalizes a block value. Empty and true enable a function with
// its defaults; false disables it.
func argMap(path string, v any) (map[string]any, bool, error) {
	switch x := v.(type) {
	case nil:
		return map[string]any{}, true, nil
	case bool:
		return map[string]any{}, x, nil
	case map[string]any:
		return x, true, nil
	default:
		return nil, false, &ValidationError{Path: path, Message: fmt.Sprintf("expected a map of arguments, got %T", v)}
	}
}

func withKey(m map[string]any, key string, v any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, x := range m {
		out[k] = x
	}
	out[key] = v
	return out
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} in every string value. Unset variables are
// left as written.
func expandEnv(v any) any {
	switch x := v.(type) {
	case string:
		return envRef.ReplaceAllStringFunc(x, func(match string) string {
			if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
				return val
			}
			return match
		})
	case map[string]any:
		for k, inner := range x {
			x[k] = expandEnv(inner)
		}
		return x
	case []any:
		for i, inner := range x {
			x[i] = expandEnv(inner)
		}
		return x
	default:
		return v
	}
}

// keyOrder maps the dotted path of every mapping in the document to its
// keys in document order. The root mapping has the empty path.
type keyOrder map[string][]string

func readKeyOrder(b []byte) (keyOrder, error) {
	var doc yamlv3.Node
	if err := yamlv3.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	order := keyOrder{}
	if len(doc.Content) > 0 {
		order.walk(doc.Content[0], "")
	}
	return order, nil
}

func (o keyOrder) walk(n *yamlv3.Node, path string) {
	if n.Kind == yamlv3.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yamlv3.MappingNode {
		return
	}
	keys := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		keys = append(keys, key)
		child := key
		if path != "" {
			child = path + "." + key
		}
		o.walk(n.Content[i+1], child)
	}
	o[path] = keys
}

// keys returns the keys of m in document order. Keys the document walk did
// not see are appended sorted.
func (o keyOrder) keys(path string, m map[string]any) []string {
	out := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range o[path] {
		if _, ok := m[k]; ok && !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
