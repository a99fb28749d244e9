// Package hostcall defines the registry the CPU consults when it executes
// SysLit. The specification deliberately leaves the host-call mechanism
// unimplemented - this package exists only as the hook a future caller could
// populate; this repository registers no handlers.
package hostcall

// Func is a host-call handler. k is the literal byte SysLit was assembled
// with.
type Func func(k byte)

// Table is a registry of host-call handlers keyed by the SysLit literal
// byte. The zero value is a valid, empty table: SysLit then has no visible
// effect beyond consuming its operand, which is exactly today's behavior.
type Table struct {
	handlers map[byte]Func
}

// NewTable returns an empty registry.
func NewTable() *Table {
	return &Table{handlers: make(map[byte]Func)}
}

// Register installs fn as the handler for literal k, overwriting any
// previous handler.
func (t *Table) Register(k byte, fn Func) {
	if t.handlers == nil {
		t.handlers = make(map[byte]Func)
	}
	t.handlers[k] = fn
}

// Dispatch invokes the handler registered for k, if any. It is always safe
// to call, including on the zero value of Table.
func (t *Table) Dispatch(k byte) {
	if t == nil || t.handlers == nil {
		return
	}
	if fn, ok := t.handlers[k]; ok {
		fn(k)
	}
}
