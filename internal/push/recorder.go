package push

import (
	"context"
	"sync"
)

// Recorder is a scriptable in-memory Sender for tests. Each call pops the
// next scripted outcome; with nothing scripted, every token succeeds.
type Recorder struct {
	mu       sync.Mutex
	scripted []func(tokens []string) (*Result, error)

	Calls []Call
}

// Call is one recorded SendMulticast invocation.
type Call struct {
	Tokens  []string
	Payload Payload
}

// Script appends an outcome for a future call.
func (r *Recorder) Script(fn func(tokens []string) (*Result, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripted = append(r.scripted, fn)
}

// ScriptCodes appends an outcome where tokens at the given indexes fail
// with the given error code and all others succeed.
func (r *Recorder) ScriptCodes(codes map[int]string) {
	r.Script(func(tokens []string) (*Result, error) {
		res := &Result{Responses: make([]Response, len(tokens))}
		for i := range tokens {
			if code, ok := codes[i]; ok {
				res.Responses[i].ErrorCode = code
			} else {
				res.Responses[i].Success = true
				res.SuccessCount++
			}
		}
		return res, nil
	})
}

// ScriptError appends a call that fails entirely.
func (r *Recorder) ScriptError(err error) {
	r.Script(func([]string) (*Result, error) { return nil, err })
}

// SendMulticast records the call and returns the next scripted outcome.
func (r *Recorder) SendMulticast(ctx context.Context, tokens []string, p Payload) (*Result, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, Call{Tokens: append([]string(nil), tokens...), Payload: p})
	var fn func([]string) (*Result, error)
	if len(r.scripted) > 0 {
		fn = r.scripted[0]
		r.scripted = r.scripted[1:]
	}
	r.mu.Unlock()

	if fn != nil {
		return fn(tokens)
	}
	res := &Result{SuccessCount: len(tokens), Responses: make([]Response, len(tokens))}
	for i := range res.Responses {
		res.Responses[i].Success = true
	}
	return res, nil
}
