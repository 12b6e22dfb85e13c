package hook

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

type mockExecutor struct {
	commands    []string
	ExecuteFunc func(name string, arg ...string) ([]byte, error)
}

func (m *mockExecutor) Execute(name string, arg ...string) ([]byte, error) {
	m.commands = append(m.commands, name+" "+strings.Join(arg, " "))
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(name, arg...)
	}
	return nil, nil
}

func TestInvokeRunsRegisteredCommand(t *testing.T) {
	exec := &mockExecutor{}
	r := NewRunner(exec, map[string]string{"verify": "make verify"})

	if err := r.Invoke("verify"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exec.commands) != 1 || exec.commands[0] != "sh -c make verify" {
		t.Errorf("commands %v", exec.commands)
	}
}

func TestInvokeUnknownHook(t *testing.T) {
	r := NewRunner(&mockExecutor{}, map[string]string{})

	err := r.Invoke("ghost")
	if err == nil {
		t.Fatal("expected error for unregistered hook")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error should name the hook: %v", err)
	}
}

func TestInvokeFailureCarriesOutput(t *testing.T) {
	exec := &mockExecutor{
		ExecuteFunc: func(string, ...string) ([]byte, error) {
			return []byte("make: *** [verify] Error 2\n"), errors.New("exit status 2")
		},
	}
	r := NewRunner(exec, map[string]string{"verify": "make verify"})

	err := r.Invoke("verify")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Error 2") {
		t.Errorf("error should carry command output: %v", err)
	}
}
