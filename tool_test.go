package sentinel

import (
	"context"
	"encoding/json"
	"testing"
)

func TestToolRegistryDispatch(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(&echoTool{reply: "hello"})

	result, err := reg.Execute(context.Background(), "echo", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "hello" {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestToolRegistryUnknownTool(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(&echoTool{})

	result, err := reg.Execute(context.Background(), "missing", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if result.Error != "unknown tool: missing" {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestToolRegistryAllDefinitions(t *testing.T) {
	reg := NewToolRegistry()
	if defs := reg.AllDefinitions(); len(defs) != 0 {
		t.Errorf("empty registry returned %d defs", len(defs))
	}

	reg.Add(&echoTool{})
	defs := reg.AllDefinitions()
	if len(defs) != 1 || defs[0].Name != "echo" {
		t.Errorf("defs = %+v", defs)
	}
}
