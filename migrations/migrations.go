// Package migrations embeds the bookkeeping schema.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Up returns the forward migrations in apply order.
func Up() ([]string, error) {
	return list(func(name string) bool { return !strings.HasSuffix(name, ".down.sql") })
}

// Down returns the rollback migrations in apply order.
func Down() ([]string, error) {
	names, err := list(func(name string) bool { return strings.HasSuffix(name, ".down.sql") })
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Read returns the SQL of one migration.
func Read(name string) (string, error) {
	data, err := files.ReadFile(name)
	return string(data), err
}

func list(keep func(string) bool) ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if keep(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
