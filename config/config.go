package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"dockwatch/target"

	"github.com/pkg/errors"
	"go.starlark.net/starlark"
)

// SessionDefaults carries the session-level watch settings that targets fall
// back to when their own watch spec leaves a field unset.
type SessionDefaults struct {
	Mode     target.WatchMode
	Interval int // milliseconds
	PostGoal string
	PostExec string

	KeepRunning   bool
	KeepContainer bool
	RemoveVolumes bool
}

// Config is the parsed dockwatch.star file.
type Config struct {
	Targets  map[string]*target.Target
	Defaults SessionDefaults
	Hooks    map[string]string
}

// ModuleCache is used to store loaded Starlark modules
type ModuleCache struct {
	modules map[string]starlark.StringDict
	mutex   sync.RWMutex
}

// NewModuleCache creates a new ModuleCache
func NewModuleCache() *ModuleCache {
	return &ModuleCache{
		modules: make(map[string]starlark.StringDict),
	}
}

// Get retrieves a module from the cache
func (mc *ModuleCache) Get(key string) (starlark.StringDict, bool) {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()
	module, ok := mc.modules[key]
	return module, ok
}

// Set stores a module in the cache
func (mc *ModuleCache) Set(key string, module starlark.StringDict) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.modules[key] = module
}

// LoadModule is a custom load function for Starlark that implements caching
func LoadModule(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	cache := thread.Local("moduleCache").(*ModuleCache)

	if cachedModule, ok := cache.Get(module); ok {
		return cachedModule, nil
	}

	filename := module
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(filepath.Dir(thread.Name), filename)
	}

	globals, err := starlark.ExecFile(thread, filename, nil, nil)
	if err != nil {
		return nil, err
	}

	cache.Set(module, globals)

	return globals, nil
}

// ParseStarlarkConfig loads a dockwatch.star file: a "config" dict of
// targets, an optional "defaults" dict of session settings, and an optional
// "hooks" dict naming post-goal commands.
func ParseStarlarkConfig(filename string) (*Config, error) {
	cache := NewModuleCache()
	thread := &starlark.Thread{
		Name: filename,
		Load: LoadModule,
	}
	thread.SetLocal("moduleCache", cache)

	globals, err := starlark.ExecFile(thread, filename, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Starlark script")
	}

	configValue, ok := globals["config"]
	if !ok {
		return nil, errors.New("global 'config' object not found in Starlark config")
	}

	configDict, ok := configValue.(*starlark.Dict)
	if !ok {
		return nil, errors.New("global 'config' object is not a dictionary")
	}

	cfg := &Config{
		Targets: make(map[string]*target.Target),
		Defaults: SessionDefaults{
			Mode:     target.ModeBoth,
			Interval: 5000,
		},
		Hooks: make(map[string]string),
	}

	if defaultsValue, ok := globals["defaults"]; ok {
		defaultsDict, ok := defaultsValue.(*starlark.Dict)
		if !ok {
			return nil, errors.New("global 'defaults' object is not a dictionary")
		}
		if err := parseDefaults(defaultsDict, &cfg.Defaults); err != nil {
			return nil, errors.Wrap(err, "failed to parse defaults")
		}
	}

	if hooksValue, ok := globals["hooks"]; ok {
		hooksDict, ok := hooksValue.(*starlark.Dict)
		if !ok {
			return nil, errors.New("global 'hooks' object is not a dictionary")
		}
		for _, item := range hooksDict.Items() {
			name, ok := item.Index(0).(starlark.String)
			if !ok {
				return nil, errors.Errorf("hook name %v is not a string", item.Index(0))
			}
			cmd, ok := item.Index(1).(starlark.String)
			if !ok {
				return nil, errors.Errorf("hook %s command is not a string", name.GoString())
			}
			cfg.Hooks[name.GoString()] = cmd.GoString()
		}
	}

	for _, item := range configDict.Items() {
		name := item.Index(0).(starlark.String).GoString()
		value := item.Index(1)
		if dict, ok := value.(*starlark.Dict); ok {
			t, err := parseTarget(name, dict)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse target %s", name)
			}

			cfg.Targets[name] = t
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	for name, t := range cfg.Targets {
		for _, dep := range t.DependsOn {
			if _, ok := cfg.Targets[dep]; !ok {
				return errors.Errorf("target %s depends on unknown target %s", name, dep)
			}
		}
		if t.Watch != nil && t.Watch.PostGoal != "" {
			if _, ok := cfg.Hooks[t.Watch.PostGoal]; !ok {
				return errors.Errorf("target %s references unknown hook %s", name, t.Watch.PostGoal)
			}
		}
		if t.Watch != nil && t.Watch.Interval < 0 {
			return errors.Errorf("target %s has negative watch interval", name)
		}
	}
	if cfg.Defaults.PostGoal != "" {
		if _, ok := cfg.Hooks[cfg.Defaults.PostGoal]; !ok {
			return errors.Errorf("defaults reference unknown hook %s", cfg.Defaults.PostGoal)
		}
	}
	if cfg.Defaults.Interval <= 0 {
		return errors.New("default watch interval must be positive")
	}
	return nil
}

func parseDefaults(dict *starlark.Dict, d *SessionDefaults) error {
	if mode, ok, err := getStringValue(dict, "mode"); err != nil {
		return err
	} else if ok {
		m, err := target.ParseWatchMode(mode)
		if err != nil {
			return err
		}
		if m != target.ModeUnset {
			d.Mode = m
		}
	}

	if interval, ok, err := getIntValue(dict, "interval"); err != nil {
		return err
	} else if ok {
		d.Interval = interval
	}

	if postGoal, ok, err := getStringValue(dict, "post_goal"); err != nil {
		return err
	} else if ok {
		d.PostGoal = postGoal
	}

	if postExec, ok, err := getStringValue(dict, "post_exec"); err != nil {
		return err
	} else if ok {
		d.PostExec = postExec
	}

	if keepRunning, ok, err := getBooleanValue(dict, "keep_running"); err != nil {
		return err
	} else if ok {
		d.KeepRunning = keepRunning
	}

	if keepContainer, ok, err := getBooleanValue(dict, "keep_container"); err != nil {
		return err
	} else if ok {
		d.KeepContainer = keepContainer
	}

	if removeVolumes, ok, err := getBooleanValue(dict, "remove_volumes"); err != nil {
		return err
	} else if ok {
		d.RemoveVolumes = removeVolumes
	}

	return nil
}

func parseTarget(name string, dict *starlark.Dict) (*target.Target, error) {
	t := &target.Target{Name: name}

	if description, ok, err := getStringValue(dict, "description"); err != nil {
		return nil, err
	} else if ok {
		t.Description = description
	}

	if image, ok, err := getStringValue(dict, "image"); err != nil {
		return nil, err
	} else if ok {
		t.Image = image
	}

	if dependsOn, ok, err := getStringList(dict, "depends_on"); err != nil {
		return nil, err
	} else if ok {
		t.DependsOn = dependsOn
	}

	if buildDict, ok, err := getDictValue(dict, "build"); err != nil {
		return nil, err
	} else if ok {
		build, err := parseBuild(buildDict)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse build spec")
		}
		t.Build = build
	}

	if runDict, ok, err := getDictValue(dict, "run"); err != nil {
		return nil, err
	} else if ok {
		run, err := parseRun(runDict)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse run spec")
		}
		t.Run = run
	}

	if watchDict, ok, err := getDictValue(dict, "watch"); err != nil {
		return nil, err
	} else if ok {
		watch, err := parseWatch(watchDict)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse watch spec")
		}
		t.Watch = watch
	}

	return t, nil
}

func parseBuild(dict *starlark.Dict) (*target.BuildSpec, error) {
	b := &target.BuildSpec{}

	if contextDir, ok, err := getStringValue(dict, "context"); err != nil {
		return nil, err
	} else if ok {
		b.ContextDir = contextDir
	}

	if dockerfile, ok, err := getStringValue(dict, "dockerfile"); err != nil {
		return nil, err
	} else if ok {
		b.Dockerfile = dockerfile
	}

	if assemblyDir, ok, err := getStringValue(dict, "assembly_dir"); err != nil {
		return nil, err
	} else if ok {
		b.AssemblyDir = assemblyDir
	}

	if patterns, ok, err := getStringList(dict, "assembly_patterns"); err != nil {
		return nil, err
	} else if ok {
		b.AssemblyPatterns = patterns
	}

	if baseDir, ok, err := getStringValue(dict, "base_dir"); err != nil {
		return nil, err
	} else if ok {
		b.BaseDir = baseDir
	}

	return b, nil
}

func parseRun(dict *starlark.Dict) (*target.RunSpec, error) {
	r := &target.RunSpec{}

	if ports, ok, err := getStringList(dict, "ports"); err != nil {
		return nil, err
	} else if ok {
		for _, spec := range ports {
			mapping, err := ParsePortMapping(spec)
			if err != nil {
				return nil, err
			}
			r.Ports = append(r.Ports, mapping)
		}
	}

	if preStop, ok, err := getStringValue(dict, "pre_stop"); err != nil {
		return nil, err
	} else if ok {
		r.PreStop = preStop
	}

	return r, nil
}

func parseWatch(dict *starlark.Dict) (*target.WatchSpec, error) {
	w := &target.WatchSpec{}

	if mode, ok, err := getStringValue(dict, "mode"); err != nil {
		return nil, err
	} else if ok {
		m, err := target.ParseWatchMode(mode)
		if err != nil {
			return nil, err
		}
		w.Mode = m
	}

	if interval, ok, err := getIntValue(dict, "interval"); err != nil {
		return nil, err
	} else if ok {
		w.Interval = interval
	}

	if postGoal, ok, err := getStringValue(dict, "post_goal"); err != nil {
		return nil, err
	} else if ok {
		w.PostGoal = postGoal
	}

	if postExec, ok, err := getStringValue(dict, "post_exec"); err != nil {
		return nil, err
	} else if ok {
		w.PostExec = postExec
	}

	return w, nil
}

// ParsePortMapping parses "host:container" or "host:container/proto" port
// specs. A host port of 0 lets the engine pick one.
func ParsePortMapping(spec string) (target.PortMapping, error) {
	mapping := target.PortMapping{Protocol: "tcp"}

	portPart := spec
	if idx := strings.LastIndex(spec, "/"); idx >= 0 {
		mapping.Protocol = spec[idx+1:]
		portPart = spec[:idx]
		if mapping.Protocol != "tcp" && mapping.Protocol != "udp" {
			return mapping, errors.Errorf("unknown protocol in port spec %q", spec)
		}
	}

	parts := strings.Split(portPart, ":")
	if len(parts) != 2 {
		return mapping, errors.Errorf("invalid port spec %q, expected host:container", spec)
	}

	if parts[0] != "" {
		hostPort, err := strconv.Atoi(parts[0])
		if err != nil {
			return mapping, errors.Wrapf(err, "invalid host port in %q", spec)
		}
		mapping.HostPort = hostPort
	}

	containerPort, err := strconv.Atoi(parts[1])
	if err != nil {
		return mapping, errors.Wrapf(err, "invalid container port in %q", spec)
	}
	mapping.ContainerPort = containerPort

	return mapping, nil
}

func getDictValue(dict *starlark.Dict, key string) (*starlark.Dict, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return nil, false, err
	}

	dictValue, ok := value.(*starlark.Dict)
	if !ok {
		return nil, false, fmt.Errorf("expected dict for key %s, got %T", key, value)
	}

	return dictValue, true, nil
}

func getBooleanValue(dict *starlark.Dict, key string) (bool, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return false, false, err
	}

	boolValue, ok := value.(starlark.Bool)
	if !ok {
		return false, false, fmt.Errorf("expected bool for key %s, got %T", key, value)
	}

	return bool(boolValue), true, nil
}

func getIntValue(dict *starlark.Dict, key string) (int, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return 0, false, err
	}

	intValue, ok := value.(starlark.Int)
	if !ok {
		return 0, false, fmt.Errorf("expected int for key %s, got %T", key, value)
	}

	i, ok := intValue.Int64()
	if !ok {
		return 0, false, fmt.Errorf("int value for key %s out of range", key)
	}

	return int(i), true, nil
}

func getStringValue(dict *starlark.Dict, key string) (string, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return "", false, err
	}

	strValue, ok := value.(starlark.String)
	if !ok {
		return "", false, fmt.Errorf("expected string for key %s, got %T", key, value)
	}

	return strValue.GoString(), true, nil
}

func getStringList(dict *starlark.Dict, key string) ([]string, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return nil, false, err
	}

	list, ok := value.(*starlark.List)
	if !ok {
		return nil, false, fmt.Errorf("expected list for key %s, got %T", key, value)
	}

	var result []string
	iter := list.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		str, ok := x.(starlark.String)
		if !ok {
			return nil, false, fmt.Errorf("expected string in list for key %s, got %T", key, x)
		}
		result = append(result, str.GoString())
	}

	return result, true, nil
}
