// Package nav holds the client route table and the registration guard.
package nav

import (
	"strings"
)

// RouteName identifies a page of the client.
type RouteName string

const (
	RouteStart     RouteName = "start"
	RouteList      RouteName = "list"
	RouteSettings  RouteName = "settings"
	RouteDashboard RouteName = "dashboard"
	RouteExplore   RouteName = "explore"
	RouteCreate    RouteName = "create"
	RouteNote      RouteName = "note"
	RouteNotFound  RouteName = "not_found"
)

// Paths of the fixed routes.
const (
	StartPath     = "/"
	ListPath      = "/index"
	SettingsPath  = "/settings"
	DashboardPath = "/dashboard"
	ExplorePath   = "/explore"
	CreatePath    = "/note/new"
	notePrefix    = "/note/"
)

// NotePath returns the page path of a note.
func NotePath(id string) string {
	return notePrefix + id
}

// Route is a resolved route.
type Route struct {
	Name RouteName `json:"name"`
	Path string    `json:"path"`
	// NoteID is set for RouteNote.
	NoteID string `json:"noteId,omitempty"`
}

// Protected reports whether the route requires a registered user.
func (r Route) Protected() bool {
	return r.Name != RouteStart && r.Name != RouteNotFound
}

var fixed = map[string]RouteName{
	StartPath:     RouteStart,
	ListPath:      RouteList,
	SettingsPath:  RouteSettings,
	DashboardPath: RouteDashboard,
	ExplorePath:   RouteExplore,
	CreatePath:    RouteCreate,
}

// Match maps a path to its route. Unknown paths match RouteNotFound.
func Match(path string) Route {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		path = StartPath
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if name, ok := fixed[path]; ok {
		return Route{Name: name, Path: path}
	}
	if id, ok := strings.CutPrefix(path, notePrefix); ok && id != "" && !strings.Contains(id, "/") {
		return Route{Name: RouteNote, Path: path, NoteID: id}
	}
	return Route{Name: RouteNotFound, Path: path}
}

// Resolution is the outcome of navigating to a path.
type Resolution struct {
	Route Route `json:"route"`
	// Redirect is set when the guard sends the user elsewhere.
	Redirect string `json:"redirect,omitempty"`
}

// Resolve applies the guard: protected routes redirect to the start page
// until the user is registered, and a registered user skips the start page.
func Resolve(path string, registered bool) Resolution {
	r := Match(path)
	switch {
	case r.Protected() && !registered:
		return Resolution{Route: Match(StartPath), Redirect: StartPath}
	case r.Name == RouteStart && registered:
		return Resolution{Route: Match(ListPath), Redirect: ListPath}
	}
	return Resolution{Route: r}
}
