package envplan

import (
	"fmt"
	"os"
)

// Environment is a mutable set of environment variables.
type Environment interface {
	LookupEnv(key string) (string, bool)
	Setenv(key, value string) error
	Unsetenv(key string) error
}

// ProcessEnv is the environment of the running process.
type ProcessEnv struct{}

// LookupEnv implements Environment.
func (ProcessEnv) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// Setenv implements Environment.
func (ProcessEnv) Setenv(key, value string) error { return os.Setenv(key, value) }

// Unsetenv implements Environment.
func (ProcessEnv) Unsetenv(key string) error { return os.Unsetenv(key) }

type previous struct {
	key   string
	value string
	set   bool
}

// Materialize applies vars to env. Every assignment is validated first; if
// any is invalid nothing is written. If a write fails part-way, the
// assignments already made are reverted before the error is returned.
// It reports whether all assignments were applied.
func Materialize(env Environment, vars Vars) (bool, error) {
	for _, a := range vars.items {
		if err := Validate(a); err != nil {
			return false, err
		}
	}

	var undo []previous
	for _, a := range vars.items {
		old, set := env.LookupEnv(a.Key)
		if err := env.Setenv(a.Key, a.Value); err != nil {
			rollback(env, undo)
			return false, invalid(a.Key, "could not set variable", err)
		}
		undo = append(undo, previous{key: a.Key, value: old, set: set})
	}
	return true, nil
}

func rollback(env Environment, undo []previous) {
	for i := len(undo) - 1; i >= 0; i-- {
		p := undo[i]
		if p.set {
			_ = env.Setenv(p.key, p.value)
		} else {
			_ = env.Unsetenv(p.key)
		}
	}
}

// Environ renders vars as KEY=VALUE strings, in order.
func (v Vars) Environ() []string {
	out := make([]string, len(v.items))
	for i, a := range v.items {
		out[i] = fmt.Sprintf("%s=%s", a.Key, a.Value)
	}
	return out
}
