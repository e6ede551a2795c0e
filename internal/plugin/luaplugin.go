package plugin

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/bsundem/Heimdall/internal/event"
)

// LuaPlugin hosts one scripted plugin inside its own Lua state.
//
// gopher-lua's LState is not goroutine-safe, so every entry into the
// state (lifecycle calls and event handler invocations) is serialized
// through the plugin's mutex. The mutex is not reentrant: a script
// handler that synchronously publishes an event type the same plugin
// subscribes to would deadlock on itself.
type LuaPlugin struct {
	manifest *Manifest

	mu     sync.Mutex
	state  *lua.LState
	host   *Context
	logger *zap.Logger
	subs   []*event.Subscription
	closed bool
}

// NewLuaPlugin creates a plugin for the given manifest. The Lua state
// is created lazily in Initialize.
func NewLuaPlugin(manifest *Manifest) *LuaPlugin {
	return &LuaPlugin{manifest: manifest}
}

// Name implements Plugin.
func (p *LuaPlugin) Name() string {
	return p.manifest.Name
}

// Manifest returns the plugin's manifest.
func (p *LuaPlugin) Manifest() *Manifest {
	return p.manifest
}

// Initialize implements Plugin. It creates the sandboxed Lua state,
// installs the host API, runs the entry script, and calls the script's
// initialize() function if one is defined.
func (p *LuaPlugin) Initialize(ctx *Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != nil {
		return fmt.Errorf("plugin %s: already initialized", p.manifest.Name)
	}

	p.host = ctx
	p.logger = ctx.Logger
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	p.state = L
	p.installHostAPI(L)

	if err := L.DoFile(p.manifest.MainPath()); err != nil {
		L.Close()
		p.state = nil
		return fmt.Errorf("plugin %s: loading %s: %w", p.manifest.Name, p.manifest.Main, err)
	}

	if err := p.callGlobal(L, "initialize"); err != nil {
		L.Close()
		p.state = nil
		return fmt.Errorf("plugin %s: initialize(): %w", p.manifest.Name, err)
	}
	return nil
}

// Shutdown implements Plugin. It calls the script's shutdown()
// function if one is defined, cancels the plugin's subscriptions, and
// closes the Lua state.
func (p *LuaPlugin) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.state == nil {
		p.closed = true
		return nil
	}
	p.closed = true

	err := p.callGlobal(p.state, "shutdown")

	for _, sub := range p.subs {
		sub.Cancel()
	}
	p.subs = nil

	p.state.Close()
	p.state = nil
	if err != nil {
		return fmt.Errorf("plugin %s: shutdown(): %w", p.manifest.Name, err)
	}
	return nil
}

// openSafeLibraries opens only safe Lua standard libraries.
// io, os, debug, and package stay closed.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// callGlobal invokes a no-argument global function if it exists.
func (p *LuaPlugin) callGlobal(L *lua.LState, name string) error {
	fn := L.GetGlobal(name)
	if fn == lua.LNil {
		return nil
	}
	return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
}

// installHostAPI exposes the host facilities to the script as the
// global "heimdall" table.
func (p *LuaPlugin) installHostAPI(L *lua.LState) {
	api := L.NewTable()

	logFn := func(log func(msg string, fields ...zap.Field)) lua.LGFunction {
		return func(L *lua.LState) int {
			log(L.CheckString(1))
			return 0
		}
	}
	L.SetField(api, "log_info", L.NewFunction(logFn(p.logger.Info)))
	L.SetField(api, "log_warn", L.NewFunction(logFn(p.logger.Warn)))
	L.SetField(api, "log_error", L.NewFunction(logFn(p.logger.Error)))

	L.SetField(api, "publish", L.NewFunction(p.luaPublish))
	L.SetField(api, "subscribe", L.NewFunction(p.luaSubscribe))
	L.SetField(api, "config_get", L.NewFunction(p.luaConfigGet))
	L.SetField(api, "plugin_name", lua.LString(p.manifest.Name))

	L.SetGlobal("heimdall", api)
}

// luaPublish publishes an event: heimdall.publish(type, payload_table).
func (p *LuaPlugin) luaPublish(L *lua.LState) int {
	evType := L.CheckString(1)

	var payload map[string]any
	if L.GetTop() >= 2 {
		if tbl, ok := luaToGo(L.CheckTable(2)).(map[string]any); ok {
			payload = tbl
		}
	}

	ev := event.New(event.Type(evType), payload, "plugin:"+p.manifest.Name)
	if err := p.host.Bus.Publish(context.Background(), ev); err != nil {
		L.RaiseError("publish %s: %v", evType, err)
	}
	return 0
}

// luaSubscribe registers a Lua handler:
// heimdall.subscribe(type, fn [, priority]).
func (p *LuaPlugin) luaSubscribe(L *lua.LState) int {
	evType := L.CheckString(1)
	fn := L.CheckFunction(2)
	priority := event.PriorityNormal
	if L.GetTop() >= 3 {
		priority = event.Priority(L.CheckInt(3))
	}

	handler := event.HandlerFunc(func(_ context.Context, ev event.Event) error {
		return p.invokeHandler(fn, ev)
	})

	sub, err := p.host.Bus.Subscribe(event.Type(evType), handler, event.WithPriority(priority))
	if err != nil {
		L.RaiseError("subscribe %s: %v", evType, err)
		return 0
	}
	p.subs = append(p.subs, sub)
	return 0
}

// invokeHandler calls a subscribed Lua function with the event. The
// plugin mutex serializes the call against lifecycle operations.
func (p *LuaPlugin) invokeHandler(fn *lua.LFunction, ev event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.state == nil {
		return nil
	}

	L := p.state
	tbl := L.NewTable()
	L.SetField(tbl, "type", lua.LString(string(ev.Type)))
	L.SetField(tbl, "id", lua.LString(ev.Metadata.ID))
	L.SetField(tbl, "source", lua.LString(ev.Metadata.Source))
	L.SetField(tbl, "payload", goToLua(L, ev.Payload))

	return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, tbl)
}

// luaConfigGet reads a config value:
// heimdall.config_get(section, key [, default]).
func (p *LuaPlugin) luaConfigGet(L *lua.LState) int {
	section := L.CheckString(1)
	key := L.CheckString(2)
	var def any
	if L.GetTop() >= 3 {
		def = luaToGoValue(L.Get(3))
	}

	v := p.host.Config.Get(section, key, def)
	L.Push(goToLua(L, v))
	return 1
}
