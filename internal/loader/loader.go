// Package loader holds the embedded app ELF images the kernel can start
// by name. Grounded on los-lab's task/loader.rs (AppLoader, AppInfo), with
// the packed-blob table's 4-word per-app shape (start, end, name pointer,
// entry) collapsed into a plain Go map, since this module has no linker
// producing a real _app_data section for a table walk to read — matching
// spec.md's Open Question (c) decision to follow the newer, entry-carrying
// blob layout's contract rather than reimplement a binary table walk. The
// older 3-word shape (start, end, name pointer — no entry word) is not
// implemented either; every app's entry point comes from its own ELF
// header (internal/elfimg), and every app is looked up by name.
package loader

import "sort"

// App is one embedded application image, as internal/demoapps.Apps
// supplies it to cmd/kernel.
type App struct {
	Name string
	ELF  []byte
}

// AppLoader looks up an app's ELF bytes by name, matching
// AppLoader::get_app_info plus the name-keyed lookup task/manager.rs's
// load_app performs against it.
type AppLoader struct {
	apps map[string][]byte
}

// New builds a loader from apps, matching AppLoader::new's walk of the
// packed app table (here, a plain slice supplied by the caller instead
// of an `_app_data` linker symbol).
func New(apps []App) *AppLoader {
	l := &AppLoader{apps: make(map[string][]byte, len(apps))}
	for _, a := range apps {
		l.apps[a.Name] = a.ELF
	}
	return l
}

// ELF returns name's ELF bytes, matching load_app_elf.
func (l *AppLoader) ELF(name string) ([]byte, bool) {
	b, ok := l.apps[name]
	return b, ok
}

// Names lists every loadable app name in sorted order, matching
// task.rs::print_apps / list_apps (SUPPLEMENTED FEATURES #3).
func (l *AppLoader) Names() []string {
	names := make([]string, 0, len(l.apps))
	for name := range l.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
