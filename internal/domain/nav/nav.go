// Package nav computes which console menu entries a session may see.
package nav

import (
	domainauth "github.com/target/ledger-console/internal/domain/auth"
)

// Entry is one static navigation item.
type Entry struct {
	Label        string
	Path         string
	Icon         string
	Submenu      []Entry
	RequiredRole domainauth.Role
}

// HasSubmenu reports whether the entry has children.
func (e Entry) HasSubmenu() bool { return len(e.Submenu) > 0 }

// Visible returns the subset of tree the snapshot may see. Nothing is visible
// unless the snapshot is authenticated; admin entries need IsAdmin. Submenus
// are filtered recursively and a pathless parent left with no children is
// dropped. The input tree is never modified.
func Visible(tree []Entry, snap domainauth.Snapshot) []Entry {
	if !snap.Authenticated() {
		return nil
	}
	return filter(tree, snap.User)
}

func filter(entries []Entry, user *domainauth.User) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !user.Satisfies(e.RequiredRole) {
			continue
		}
		if e.HasSubmenu() {
			e.Submenu = filter(e.Submenu, user)
			if len(e.Submenu) == 0 && e.Path == "" {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// Find returns the entry whose path matches, searching submenus.
func Find(tree []Entry, path string) (Entry, bool) {
	for _, e := range tree {
		if e.Path == path {
			return e, true
		}
		if found, ok := Find(e.Submenu, path); ok {
			return found, true
		}
	}
	return Entry{}, false
}

// DefaultTree is the console's menu.
func DefaultTree() []Entry {
	return []Entry{
		{Label: "Dashboard", Path: "/", Icon: "home"},
		{Label: "Transactions", Path: "/transactions", Icon: "list"},
		{Label: "Banks", Path: "/banks", Icon: "bank"},
		{Label: "Categories", Path: "/categories", Icon: "tag"},
		{
			Label: "Reports",
			Path:  "/reports",
			Icon:  "chart",
			Submenu: []Entry{
				{Label: "Monthly", Path: "/reports/monthly"},
				{Label: "By category", Path: "/reports/categories"},
			},
		},
		{Label: "OFX import", Path: "/import", Icon: "upload"},
		{
			Label:        "Administration",
			Icon:         "shield",
			RequiredRole: domainauth.RoleAdmin,
			Submenu: []Entry{
				{Label: "Auth activity", Path: "/admin/activity", RequiredRole: domainauth.RoleAdmin},
				{Label: "Approvals", Path: "/admin/approvals", RequiredRole: domainauth.RoleAdmin},
			},
		},
	}
}
