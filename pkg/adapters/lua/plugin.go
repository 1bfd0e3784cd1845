package lua

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/plugin"
)

// Plugin adapts a compiled Lua module to plugin.Plugin.
type Plugin struct {
	module *Module
	info   plugin.Info

	mu   sync.Mutex
	host plugin.Host
}

var _ plugin.Plugin = (*Plugin)(nil)

// NewPlugin compiles source and wraps it as a plugin. The plugin name comes
// from the module's "plugin" table and defaults to moduleID.
func (c *Compiler) NewPlugin(source, moduleID string, refs []string) (*Plugin, error) {
	p := &Plugin{}
	m, err := c.compile(source, moduleID, refs, p.install)
	if err != nil {
		return nil, err
	}
	p.module = m
	p.info = readInfo(m, moduleID)
	return p, nil
}

// CompilePlugin is NewPlugin behind the plugin.Plugin interface.
func (c *Compiler) CompilePlugin(source, moduleID string, refs []string) (plugin.Plugin, error) {
	p, err := c.NewPlugin(source, moduleID, refs)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func readInfo(m *Module, moduleID string) plugin.Info {
	info := plugin.Info{Name: moduleID}
	t, ok := m.L.GetGlobal("plugin").(*lua.LTable)
	if !ok {
		return info
	}
	if s, ok := t.RawGetString("name").(lua.LString); ok && s != "" {
		info.Name = string(s)
	}
	if s, ok := t.RawGetString("version").(lua.LString); ok {
		info.Version = string(s)
	}
	if s, ok := t.RawGetString("description").(lua.LString); ok {
		info.Description = string(s)
	}
	return info
}

// Module returns the compiled module behind the plugin.
func (p *Plugin) Module() *Module { return p.module }

// Info returns the metadata declared by the module.
func (p *Plugin) Info() plugin.Info { return p.info }

// OnLoad exposes the host to the module and calls on_load.
func (p *Plugin) OnLoad(_ context.Context, h plugin.Host) error {
	p.mu.Lock()
	p.host = h
	p.mu.Unlock()
	if !p.module.HasEntryPoint("on_load") {
		return nil
	}
	res, err := p.module.Invoke("on_load")
	if err != nil {
		return err
	}
	if b, ok := res.(bool); ok && !b {
		return fmt.Errorf("on_load returned false")
	}
	return nil
}

// OnUnload calls on_unload and closes the module.
func (p *Plugin) OnUnload(context.Context) error {
	var err error
	if p.module.HasEntryPoint("on_unload") {
		_, err = p.module.Invoke("on_unload")
	}
	p.mu.Lock()
	p.host = nil
	p.mu.Unlock()
	if cerr := p.module.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the module without calling on_unload. The engine uses it when
// registration fails.
func (p *Plugin) Close() error { return p.module.Close() }

// OnEvent forwards the event to on_event.
func (p *Plugin) OnEvent(_ context.Context, name string, payload any) error {
	if !p.module.HasEntryPoint("on_event") {
		return nil
	}
	_, err := p.module.Invoke("on_event", name, payload)
	return err
}

func (p *Plugin) currentHost(L *lua.LState) plugin.Host {
	p.mu.Lock()
	h := p.host
	p.mu.Unlock()
	if h == nil {
		L.RaiseError("weft is only available once the plugin is loaded")
	}
	return h
}

// install adds the weft table to the module's globals.
func (p *Plugin) install(L *lua.LState) {
	api := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"get": func(L *lua.LState) int {
			v, _ := p.currentHost(L).GetVariable(L.CheckString(1))
			L.Push(toLua(L, v))
			return 1
		},
		"set": func(L *lua.LState) int {
			h := p.currentHost(L)
			ctx := L.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			h.SetVariable(ctx, L.CheckString(1), toGo(L.Get(2)))
			return 0
		},
		"log": func(L *lua.LState) int {
			p.currentHost(L).Logger().Info(L.CheckString(1))
			return 0
		},
		"register_function": func(L *lua.LState) int {
			h := p.currentHost(L)
			name, fn := L.CheckString(1), L.CheckFunction(2)
			h.RegisterFunction(name, func(args string) (string, error) {
				res, err := p.module.call(fn, args)
				if err != nil {
					return "", err
				}
				return convert.ToString(res), nil
			})
			return 0
		},
		"register_command": func(L *lua.LState) int {
			h := p.currentHost(L)
			name, fn := L.CheckString(1), L.CheckFunction(2)
			h.RegisterCommand(name, func(_ context.Context, node *domain.HandlerNode, sender any) bool {
				res, err := p.module.call(fn, node.Attrs, convert.ToString(sender))
				if err != nil {
					h.Logger().Error("lua command failed", "command", name, "err", err)
					return false
				}
				if b, ok := res.(bool); ok {
					return b
				}
				return true
			})
			return 0
		},
	})
	L.SetGlobal("weft", api)
}
