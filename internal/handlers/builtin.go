// Package handlers holds the message handlers shipped with the worker
// binary. Applications embedding the worker register their own.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ayl/internal/message"
	"ayl/internal/worker"
)

const (
	Echo      = "echo"
	Sleep     = "sleep"
	Terminate = "terminate"
)

// Register adds the built-in handlers to r.
func Register(r *message.Registry) {
	r.Register(Echo, echo)
	r.Register(Sleep, sleep)
	r.Register(Terminate, terminate)
}

func echo(ctx context.Context, args json.RawMessage) error {
	slog.InfoContext(ctx, "echo", "args", string(args))
	return nil
}

type sleepArgs struct {
	Seconds float64 `json:"seconds"`
}

func sleep(ctx context.Context, args json.RawMessage) error {
	var a sleepArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return worker.Bury(fmt.Sprintf("sleep: bad args: %v", err))
	}
	time.Sleep(time.Duration(a.Seconds * float64(time.Second)))
	return nil
}

type terminateArgs struct {
	Code int `json:"code"`
}

func terminate(ctx context.Context, args json.RawMessage) error {
	var a terminateArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return worker.Bury(fmt.Sprintf("terminate: bad args: %v", err))
		}
	}
	return worker.Terminate(a.Code)
}
