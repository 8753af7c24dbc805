package repo

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// VersionedTable is a `{prefix}_v{N}` table discovered in the database.
type VersionedTable struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

func validIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

// VersionedTables lists the `{prefix}_v{N}` tables ordered by numeric version.
func (r Repo) VersionedTables(ctx context.Context, prefix string) ([]VersionedTable, error) {
	if err := validIdent(prefix); err != nil {
		return nil, err
	}
	rows, err := r.conn().QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []VersionedTable
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if v, ok := parseVersion(prefix, name); ok {
			res = append(res, VersionedTable{Name: name, Version: v})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Version < res[j].Version })
	return res, nil
}

func parseVersion(prefix, name string) (int, bool) {
	suffix, ok := strings.CutPrefix(name, prefix+"_v")
	if !ok || suffix == "" {
		return 0, false
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ResolveLatestVersion returns the highest N among `{prefix}_v{N}` tables, or 0.
// Versions compare numerically, so v10 beats v9.
func (r Repo) ResolveLatestVersion(ctx context.Context, prefix string) (int, error) {
	tables, err := r.VersionedTables(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(tables) == 0 {
		return 0, nil
	}
	return tables[len(tables)-1].Version, nil
}

// LatestVersionName returns the newest `{prefix}_v{N}` table, or "" if none exists.
func (r Repo) LatestVersionName(ctx context.Context, prefix string) (string, error) {
	v, err := r.ResolveLatestVersion(ctx, prefix)
	if err != nil || v == 0 {
		return "", err
	}
	return VersionName(prefix, v), nil
}

// NextVersionName returns the name the next versioned table should take.
func (r Repo) NextVersionName(ctx context.Context, prefix string) (string, error) {
	v, err := r.ResolveLatestVersion(ctx, prefix)
	if err != nil {
		return "", err
	}
	return VersionName(prefix, v+1), nil
}

func VersionName(prefix string, v int) string {
	return fmt.Sprintf("%s_v%d", prefix, v)
}
