// Package contract exposes every contract function under its contract name so
// transports can invoke them with positional JSON arguments.
package contract

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"agrichain/pkg/ledger"
)

var (
	ErrArity           = ledger.NewError(ledger.KindValidation, 3, "incorrect number of arguments")
	ErrArgument        = ledger.NewError(ledger.KindValidation, 4, "malformed argument")
	ErrUnknownContract = ledger.NewError(ledger.KindNotFound, 5, "unknown contract")
	ErrUnknownFunction = ledger.NewError(ledger.KindNotFound, 6, "unknown function")
)

// Args are the positional arguments of a call.
type Args []json.RawMessage

// String decodes argument i as a string.
func (a Args) String(i int) (string, error) {
	var s string
	if err := json.Unmarshal(a[i], &s); err != nil {
		return "", ledger.Invalid(ErrArgument.Code, "argument %d: expected string", i)
	}
	return s, nil
}

// Uint decodes argument i as an unsigned integer. Both JSON numbers and
// strings with a "u" prefix such as "u52560" are accepted.
func (a Args) Uint(i int) (uint64, error) {
	var n uint64
	if err := json.Unmarshal(a[i], &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(a[i], &s); err == nil {
		if v, err := strconv.ParseUint(strings.TrimPrefix(s, "u"), 10, 64); err == nil {
			return v, nil
		}
	}
	return 0, ledger.Invalid(ErrArgument.Code, "argument %d: expected unsigned integer", i)
}

// Bool decodes argument i as a boolean.
func (a Args) Bool(i int) (bool, error) {
	var b bool
	if err := json.Unmarshal(a[i], &b); err != nil {
		return false, ledger.Invalid(ErrArgument.Code, "argument %d: expected bool", i)
	}
	return b, nil
}

// Principal decodes and validates argument i.
func (a Args) Principal(i int) (ledger.Principal, error) {
	s, err := a.String(i)
	if err != nil {
		return "", err
	}
	return ledger.ParsePrincipal(s)
}

// Handler runs one contract function.
type Handler func(ctx context.Context, tx ledger.Tx, args Args) (any, error)

// Function describes a callable contract function.
type Function struct {
	Name  string
	Arity int
	// Write functions change state; they answer true instead of a value.
	Write   bool
	Handler Handler
}

// Result is the response envelope of a successful call.
type Result struct {
	Success bool   `json:"success"`
	Value   any    `json:"value"`
	TxID    string `json:"tx-id,omitempty"`
}

// Registry maps contract name to function name to Function.
type Registry struct {
	contracts map[string]map[string]Function
}

func NewRegistry() *Registry {
	return &Registry{contracts: make(map[string]map[string]Function)}
}

// Register adds fn to contract, replacing any function with the same name.
func (r *Registry) Register(contract string, fn Function) {
	fns, ok := r.contracts[contract]
	if !ok {
		fns = make(map[string]Function)
		r.contracts[contract] = fns
	}
	fns[fn.Name] = fn
}

// Contracts lists the registered contract names in order.
func (r *Registry) Contracts() []string {
	names := make([]string, 0, len(r.contracts))
	for name := range r.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Functions lists the functions of contract in name order.
func (r *Registry) Functions(contract string) []Function {
	fns := r.contracts[contract]
	out := make([]Function, 0, len(fns))
	for _, fn := range fns {
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke checks the arity, runs the handler and wraps its outcome.
func (r *Registry) Invoke(ctx context.Context, tx ledger.Tx, contract, function string, args []json.RawMessage) (Result, error) {
	fns, ok := r.contracts[contract]
	if !ok {
		return Result{}, &ledger.Error{Kind: ledger.KindNotFound, Code: ErrUnknownContract.Code, Message: "unknown contract " + contract}
	}
	fn, ok := fns[function]
	if !ok {
		return Result{}, &ledger.Error{Kind: ledger.KindNotFound, Code: ErrUnknownFunction.Code, Message: "unknown function " + contract + "." + function}
	}
	if len(args) != fn.Arity {
		return Result{}, ledger.Invalid(ErrArity.Code, "incorrect number of arguments: expecting %d", fn.Arity)
	}
	v, err := fn.Handler(ctx, tx, Args(args))
	if err != nil {
		return Result{}, err
	}
	if fn.Write {
		return Result{Success: true, Value: true, TxID: tx.TxID}, nil
	}
	return Result{Success: true, Value: v}, nil
}
