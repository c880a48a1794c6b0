// Package addon lists the addons installed on the sketch server. Bundled
// core addons are copied into the addons directory once at startup; the
// directory is rescanned on every listing so addons dropped in by hand
// appear without a restart.
package addon

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/glog"

	"sketchbook/internal/sketch/api"
)

// ConfigFile is the per-addon metadata file. Only its descriptive ADDON_*
// variables are read. The addon's name is always its directory name.
const ConfigFile = "addon_config.mk"

type Options struct {
	Dir     string
	CoreDir string
}

type Service struct {
	opts Options
}

func New(opts Options) *Service {
	return &Service{opts: opts}
}

// Setup creates the addons directory and installs every core addon that is
// not there yet. Installed core files are made read-only.
func (s *Service) Setup() error {
	if s.opts.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create addons dir: %w", err)
	}
	core, err := s.coreNames()
	if err != nil {
		return err
	}
	for _, name := range core {
		target := filepath.Join(s.opts.Dir, name)
		if _, err := os.Stat(target); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return err
		}
		glog.Infof("[addon] installing core addon %s", name)
		if err := os.CopyFS(target, os.DirFS(filepath.Join(s.opts.CoreDir, name))); err != nil {
			return fmt.Errorf("install core addon %s: %w", name, err)
		}
		if err := makeReadOnly(target); err != nil {
			glog.Warningf("[addon] %s: %v", name, err)
		}
	}
	return nil
}

// List returns the installed addons by name. A missing directory is empty.
func (s *Service) List(ctx context.Context) ([]api.Addon, error) {
	if s.opts.Dir == "" {
		return []api.Addon{}, nil
	}
	names, err := addonDirs(s.opts.Dir)
	if err != nil {
		return nil, err
	}
	core, err := s.coreNames()
	if err != nil {
		return nil, err
	}
	isCore := make(map[string]bool, len(core))
	for _, name := range core {
		isCore[name] = true
	}

	out := make([]api.Addon, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := api.Addon{Name: name, Core: isCore[name]}
		raw, err := os.ReadFile(filepath.Join(s.opts.Dir, name, ConfigFile))
		switch {
		case err == nil:
			applyConfig(&a, raw)
		case !os.IsNotExist(err):
			glog.Warningf("[addon] read %s config: %v", name, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Service) coreNames() ([]string, error) {
	if s.opts.CoreDir == "" {
		return nil, nil
	}
	return addonDirs(s.opts.CoreDir)
}

// addonDirs lists the visible subdirectories of dir in name order.
func addonDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list addons: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// applyConfig reads "KEY = value" and "KEY += value" lines. Section headers
// such as "meta:" are ignored.
func applyConfig(a *api.Addon, raw []byte) {
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		appendValue := strings.HasSuffix(key, "+")
		key = strings.TrimSpace(strings.TrimSuffix(key, "+"))
		value = strings.TrimSpace(value)
		switch key {
		case "ADDON_DESCRIPTION":
			a.Description = unquote(value)
		case "ADDON_AUTHOR":
			a.Author = unquote(value)
		case "ADDON_URL":
			a.URL = unquote(value)
		case "ADDON_TAGS":
			if !appendValue {
				a.Tags = nil
			}
			a.Tags = append(a.Tags, splitTags(value)...)
		}
	}
}

// splitTags accepts both `"a" "b c"` and `a b`.
func splitTags(value string) []string {
	var out []string
	for value = strings.TrimSpace(value); value != ""; value = strings.TrimSpace(value) {
		if value[0] == '"' {
			end := strings.IndexByte(value[1:], '"')
			if end < 0 {
				out = append(out, value[1:])
				break
			}
			if tag := value[1 : end+1]; tag != "" {
				out = append(out, tag)
			}
			value = value[end+2:]
			continue
		}
		tag, rest, _ := strings.Cut(value, " ")
		out = append(out, tag)
		value = rest
	}
	return out
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

func makeReadOnly(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		return os.Chmod(path, 0o444)
	})
}
