// Package greet is the rpcgen test fixture.
package greet

import (
	"context"

	"github.com/yndnr/nodemesh-go/pkg/task"
)

// Greeter greets.
//
//rpc:timeout 3s
type Greeter interface {
	Hello(ctx context.Context, name string) (string, error)
	//rpc:noresult
	Wave(ctx context.Context, times int32) error
	//rpc:timeout 500ms
	CountAsync(ctx context.Context) *task.Future[int64]
	Room(id string) Room
	//rpc:local
	Describe() string
	Ping()
}

// Room lists members.
type Room interface {
	Members(ctx context.Context) ([]string, error)
}

// GreeterLocal computes Describe without a round trip.
type GreeterLocal struct {
	Remote Greeter
}

func (GreeterLocal) Describe() string { return "greeter" }

// Broken uses an unknown marker.
type Broken interface {
	//rpc:sometimes
	Call() error
}
