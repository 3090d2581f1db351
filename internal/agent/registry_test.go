package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kalambet/hivemind/internal/herrors"
)

type echoParams struct {
	Message string `json:"message" jsonschema:"required,description=text to echo"`
}

func newEchoTool() *Tool {
	return NewTool("echo", "Echoes the input message.", "test",
		func(ctx context.Context, p echoParams) (any, error) {
			return p.Message, nil
		})
}

func TestRegistryRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(newEchoTool()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	out, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if out != "hi" {
		t.Errorf("Execute() = %v, want %q", out, "hi")
	}
}

func TestRegistryExecuteMissingRequiredField(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(newEchoTool()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	_, err := r.Execute(context.Background(), "echo", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("Execute() error = nil, want validation error for missing required field")
	}
	if !herrors.OfKind(err, herrors.KindValidation) {
		t.Errorf("Execute() error kind = %v, want validation", err)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "does_not_exist", nil)
	if !herrors.OfKind(err, herrors.KindNotFound) {
		t.Errorf("Execute() error kind = %v, want not_found", err)
	}
}

func TestRegistryRejectsDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(newEchoTool()); err != nil {
		t.Fatalf("first Register() error: %v", err)
	}
	if err := r.Register(newEchoTool()); err == nil {
		t.Fatal("second Register() error = nil, want duplicate-name rejection")
	}
}

func TestRegistryUnregisterRemovesTool(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(newEchoTool()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	r.Unregister("echo")

	if _, ok := r.Get("echo"); ok {
		t.Fatal("Get() found the tool after Unregister()")
	}
}

func TestRegistryExportProducesToolSpecPerTool(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(newEchoTool()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	specs := r.Export()
	if len(specs) != 1 {
		t.Fatalf("len(Export()) = %d, want 1", len(specs))
	}
	if specs[0].Name != "echo" {
		t.Errorf("Export()[0].Name = %q, want echo", specs[0].Name)
	}
	if len(specs[0].Parameters) == 0 {
		t.Error("Export()[0].Parameters is empty, want a JSON schema")
	}
}

func TestRegistryListIsSortedByName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewTool("zeta", "z", "", func(context.Context, struct{}) (any, error) { return nil, nil })); err != nil {
		t.Fatalf("Register(zeta) error: %v", err)
	}
	if err := r.Register(NewTool("alpha", "a", "", func(context.Context, struct{}) (any, error) { return nil, nil })); err != nil {
		t.Fatalf("Register(alpha) error: %v", err)
	}

	list := r.List()
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Errorf("List() = %+v, want sorted [alpha, zeta]", list)
	}
}
