package file

import (
	"embed"
	"errors"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v2"
)

//go:embed builtin
var builtinFS embed.FS

// Library holds named configurations. Lookups return copies so callers may mutate them.
type Library struct {
	protocols   map[string]*ProtocolConfig
	networks    map[string]*NetworkConfig
	experiments map[string]*ExperimentConfig
	tests       map[string]*TestConfig
}

func NewLibrary() *Library {
	return &Library{
		protocols:   make(map[string]*ProtocolConfig),
		networks:    make(map[string]*NetworkConfig),
		experiments: make(map[string]*ExperimentConfig),
		tests:       make(map[string]*TestConfig),
	}
}

// Builtin returns the configurations compiled into the binary.
func Builtin() *Library {
	library := NewLibrary()
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		panic(err)
	}
	if err := library.Load(sub); err != nil {
		panic(err)
	}
	return library
}

// LoadLibrary layers the yaml files below dir over the builtins. An empty dir yields the builtins.
func LoadLibrary(dir string) (*Library, error) {
	library := Builtin()
	if dir == "" {
		return library, nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, eris.Wrapf(err, "library %v", dir)
	}
	if err := library.Load(os.DirFS(dir)); err != nil {
		return nil, err
	}
	return library, nil
}

// Load reads protocols/, networks/, experiments/ and tests/ from fsys. Missing directories are skipped.
func (l *Library) Load(fsys fs.FS) error {
	if err := loadDir(fsys, "protocols", l.protocols); err != nil {
		return err
	}
	if err := loadDir(fsys, "networks", l.networks); err != nil {
		return err
	}
	if err := loadDir(fsys, "experiments", l.experiments); err != nil {
		return err
	}
	return loadDir(fsys, "tests", l.tests)
}

func loadDir[T any](fsys fs.FS, dir string, into map[string]*T) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return eris.Wrapf(err, "reading %v", dir)
	}
	for _, entry := range entries {
		ext := path.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return eris.Wrapf(err, "reading %v", entry.Name())
		}
		value := new(T)
		if err := yaml.UnmarshalStrict(data, value); err != nil {
			return eris.Wrapf(ErrDecode, "%v/%v: %v", dir, entry.Name(), err)
		}
		into[strings.TrimSuffix(entry.Name(), ext)] = value
	}
	return nil
}

func (l *Library) AddProtocol(name string, protocol *ProtocolConfig) {
	l.protocols[name] = protocol
}

func (l *Library) AddNetwork(name string, network *NetworkConfig) {
	l.networks[name] = network
}

func (l *Library) AddExperiment(name string, experiment *ExperimentConfig) {
	l.experiments[name] = experiment
}

func (l *Library) AddTest(name string, test *TestConfig) {
	l.tests[name] = test
}

func (l *Library) Protocol(name string) (*ProtocolConfig, error) {
	p, ok := l.protocols[name]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "protocol %q", name)
	}
	return p.Clone(), nil
}

func (l *Library) Network(name string) (*NetworkConfig, error) {
	n, ok := l.networks[name]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "network %q", name)
	}
	return n.Clone(), nil
}

func (l *Library) Experiment(name string) (*ExperimentConfig, error) {
	e, ok := l.experiments[name]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "experiment %q", name)
	}
	c := *e
	c.Parameters = append([]RangeConfig(nil), e.Parameters...)
	c.Metrics = append([]string(nil), e.Metrics...)
	c.Asserts = append([]AssertConfig(nil), e.Asserts...)
	return &c, nil
}

func (l *Library) Test(name string) (*TestConfig, error) {
	t, ok := l.tests[name]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "test %q", name)
	}
	c := *t
	c.Asserts = append([]AssertConfig(nil), t.Asserts...)
	return &c, nil
}

func (l *Library) ProtocolNames() []string   { return sortedKeys(l.protocols) }
func (l *Library) NetworkNames() []string    { return sortedKeys(l.networks) }
func (l *Library) ExperimentNames() []string { return sortedKeys(l.experiments) }
func (l *Library) TestNames() []string       { return sortedKeys(l.tests) }

func sortedKeys[T any](m map[string]*T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
