package commandstructure

import (
	"errors"
	"testing"
)

func TestCommandInvoker_EmptyCommandList(t *testing.T) {
	invoker := NewCommandInvoker([]Command{})
	testData := []byte("test data")
	result, err := invoker.Execute(testData)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if string(result) != string(testData) {
		t.Error("Expected result to match input for empty command list")
	}
}

func TestCommandInvoker_RunsInOrder(t *testing.T) {
	invoker := NewCommandInvoker([]Command{
		newAppendCommand("First", "-1"),
		newAppendCommand("Second", "-2"),
	})

	result, err := invoker.Execute([]byte("img"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(result) != "img-1-2" {
		t.Errorf("Expected 'img-1-2', got '%s'", result)
	}
}

func TestCommandInvoker_StopsOnError(t *testing.T) {
	sentinel := errors.New("boom")
	called := false
	invoker := NewCommandInvoker([]Command{
		newMockCommandWithError("Failing", sentinel),
		&mockCommand{name: "After", executeFunc: func(data []byte) ([]byte, error) {
			called = true
			return data, nil
		}},
	})

	_, err := invoker.Execute([]byte("img"))
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected wrapped sentinel error, got %v", err)
	}
	if called {
		t.Error("Expected pipeline to stop after the failing command")
	}
}
