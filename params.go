package flow

import (
	"context"
	"encoding/json"
	"fmt"

	"pipelined.dev/flow/pmt"
)

// AddParam declares a parameter with initial value. Declaring existing
// parameter resets its value.
func (b *Block) AddParam(name string, v pmt.Value) {
	b.paramMu.Lock()
	defer b.paramMu.Unlock()
	if _, ok := b.params[name]; !ok {
		b.paramOrder = append(b.paramOrder, name)
	}
	b.params[name] = v
}

// Param returns current parameter value. Kernels use it inside work.
func (b *Block) Param(name string) (pmt.Value, bool) {
	b.paramMu.Lock()
	defer b.paramMu.Unlock()
	v, ok := b.params[name]
	return v, ok
}

// Params returns names of declared parameters in declaration order.
func (b *Block) Params() []string {
	b.paramMu.Lock()
	defer b.paramMu.Unlock()
	return append([]string(nil), b.paramOrder...)
}

// OnParameterChange applies the change. It's called by the scheduler
// between work calls or inline when the block is not running.
func (b *Block) OnParameterChange(name string, v pmt.Value) error {
	b.paramMu.Lock()
	_, ok := b.params[name]
	b.paramMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	if pc, ok := b.kernel.(ParamChanger); ok {
		if err := pc.ParamChanged(name, v); err != nil {
			return fmt.Errorf("param %s rejected: %w", name, err)
		}
	}
	b.paramMu.Lock()
	b.params[name] = v
	b.paramMu.Unlock()
	b.logger.Debugf("param %s set to %v", name, v)
	return nil
}

// OnParameterQuery reads the parameter. It's called by the scheduler
// between work calls or inline when the block is not running.
func (b *Block) OnParameterQuery(name string) (pmt.Value, error) {
	v, ok := b.Param(name)
	if !ok {
		return pmt.Value{}, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	return v, nil
}

// RequestParameterChange changes the parameter from any goroutine. If the
// block is running, the change is executed by its scheduler between work
// calls. When wait is true, the call returns after the change is applied,
// ctx is done or the scheduler is torn down with ErrNotApplied.
func (b *Block) RequestParameterChange(ctx context.Context, name string, v pmt.Value, wait bool) error {
	s, running := b.scheduler()
	if !running {
		return b.OnParameterChange(name, v)
	}
	if !wait {
		s.Post(ParamChange{Block: b.id, Name: name, Value: v})
		return nil
	}
	done := make(chan error, 1)
	s.Post(ParamChange{
		Block: b.id,
		Name:  name,
		Value: v,
		Done: func(err error) {
			done <- err
		},
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestParameterQuery reads the parameter from any goroutine. If the block
// is running, the value is read by its scheduler between work calls, so it
// reflects every change requested before.
func (b *Block) RequestParameterQuery(ctx context.Context, name string) (pmt.Value, error) {
	s, running := b.scheduler()
	if !running {
		return b.OnParameterQuery(name)
	}
	type result struct {
		v   pmt.Value
		err error
	}
	done := make(chan result, 1)
	s.Post(ParamQuery{
		Block: b.id,
		Name:  name,
		Done: func(v pmt.Value, err error) {
			done <- result{v: v, err: err}
		},
	})
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return pmt.Value{}, ctx.Err()
	}
}

type blockJSON struct {
	Name       string            `json:"name"`
	Alias      string            `json:"alias"`
	Parameters map[string]string `json:"parameters"`
}

// MarshalJSON encodes block parameters. Values are base64 encoded binary
// form of pmt values.
func (b *Block) MarshalJSON() ([]byte, error) {
	b.paramMu.Lock()
	defer b.paramMu.Unlock()
	j := blockJSON{
		Name:       b.name,
		Alias:      b.alias,
		Parameters: make(map[string]string, len(b.params)),
	}
	for k, v := range b.params {
		j.Parameters[k] = pmt.EncodeBase64(v)
	}
	return json.Marshal(j)
}

// UnmarshalJSON applies parameters encoded by MarshalJSON. Parameters must
// be declared by the block.
func (b *Block) UnmarshalJSON(data []byte) error {
	var j blockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	for k, s := range j.Parameters {
		v, err := pmt.DecodeBase64(s)
		if err != nil {
			return fmt.Errorf("param %s: %w", k, err)
		}
		if err := b.OnParameterChange(k, v); err != nil {
			return err
		}
	}
	return nil
}
