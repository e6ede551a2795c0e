// Package plugin provides the plugin contract, discovery sources, and
// the registry that drives the Discovered → Initialized → ShutDown
// lifecycle.
//
// Discovery is pluggable: a Source yields plugin factories, and the
// registry instantiates and tracks one plugin per distinct name. The
// built-in sources are StaticSource (compile-time registration of Go
// plugins) and DirSource (Lua-scripted plugins discovered on disk).
// Broken sources and candidates are logged and skipped; a failing
// plugin never aborts the lifecycle of the others.
package plugin
