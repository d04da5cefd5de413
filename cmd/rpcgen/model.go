package main

import (
	"fmt"
	"strings"
	"time"
)

// MethodKind selects how a generated method sends its call.
type MethodKind int

const (
	// KindSync waits for the reply.
	KindSync MethodKind = iota
	// KindNoResult sends without waiting; marked //rpc:noresult.
	KindNoResult
	// KindAsync returns a *task.Future.
	KindAsync
	// KindChain returns a client whose calls run on this call's result.
	KindChain
	// KindLocal delegates to the hand written <Iface>Local value.
	KindLocal
)

func (k MethodKind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindNoResult:
		return "noresult"
	case KindAsync:
		return "async"
	case KindChain:
		return "chain"
	case KindLocal:
		return "local"
	default:
		return fmt.Sprintf("MethodKind(%d)", int(k))
	}
}

// Param is one Go parameter.
type Param struct {
	Name string
	Type string
}

// Method is one interface method to generate.
type Method struct {
	Name       string
	RemoteName string
	Kind       MethodKind
	Params     []Param
	// Context names the leading context.Context parameter, if any.
	Context string
	// Results is the Go result list as written in the signature.
	Results []string
	// Result is the value type sent back by the remote side: R for (R) and
	// (R, error), T for *task.Future[T].
	Result       string
	ReturnsError bool
	Timeout      time.Duration
	// Chain names the interface a chain method returns.
	Chain string
}

// WireParams are the parameters sent over the wire.
func (m Method) WireParams() []Param {
	if m.Context == "" {
		return m.Params
	}
	return m.Params[1:]
}

// Interface is one remote interface.
type Interface struct {
	Name    string
	Timeout time.Duration
	Methods []Method
}

// HasLocal reports whether any method delegates to <Name>Local.
func (i Interface) HasLocal() bool {
	for _, m := range i.Methods {
		if m.Kind == KindLocal {
			return true
		}
	}
	return false
}

// File is the content of one generated file.
type File struct {
	Package    string
	Imports    []string
	Interfaces []Interface
}

type markers struct {
	noResult bool
	local    bool
	timeout  time.Duration
}

// parseMarker reads one "//rpc:<name> [arg]" comment. ok is false for
// comments that are not markers.
func (mk *markers) parseMarker(comment string) (ok bool, err error) {
	text := strings.TrimSpace(strings.TrimPrefix(comment, "//"))
	if !strings.HasPrefix(text, "rpc:") {
		return false, nil
	}
	fields := strings.Fields(strings.TrimPrefix(text, "rpc:"))
	if len(fields) == 0 {
		return true, fmt.Errorf("empty marker %q", comment)
	}

	switch fields[0] {
	case "noresult":
		mk.noResult = true
	case "local":
		mk.local = true
	case "timeout":
		if len(fields) != 2 {
			return true, fmt.Errorf("marker %q: want //rpc:timeout <duration>", comment)
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil || d <= 0 {
			return true, fmt.Errorf("marker %q: invalid duration", comment)
		}
		mk.timeout = d
	default:
		return true, fmt.Errorf("unknown marker %q", comment)
	}
	return true, nil
}
