package domain

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	recipient := NewRecipient(
		[]string{"telefono", "Nombre", "DEUDA"},
		[]string{"3001234567", "Ana", "120000"},
	)

	tests := []struct {
		name     string
		template string
		want     string
		missing  []string
	}{
		{name: "single placeholder", template: "Hola {NOMBRE}", want: "Hola Ana"},
		{name: "case insensitive name", template: "Hola {nombre}, debe {Deuda}", want: "Hola Ana, debe 120000"},
		{name: "padded name", template: "Hola { NOMBRE }", want: "Hola Ana"},
		{name: "escaped braces", template: "{{literal}} {NOMBRE}", want: "{literal} Ana"},
		{name: "unterminated brace kept", template: "precio {NOMBRE", want: "precio {NOMBRE"},
		{name: "lone closing brace kept", template: "a } b", want: "a } b"},
		{name: "empty placeholder kept", template: "x {} y", want: "x {} y"},
		{name: "multi line", template: "Hola {NOMBRE}\nGracias", want: "Hola Ana\nGracias"},
		{name: "missing field", template: "Hola {NOMBRE} {APELLIDO}", missing: []string{"APELLIDO"}},
		{name: "several missing fields", template: "{CEDULA} {apellido} {CEDULA}", missing: []string{"APELLIDO", "CEDULA"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := RenderTemplate(tt.template, recipient)
			if len(tt.missing) > 0 {
				if !errors.Is(err, ErrTemplateFieldMissing) {
					t.Fatalf("RenderTemplate() error = %v, want ErrTemplateFieldMissing", err)
				}
				if !strings.HasSuffix(err.Error(), strings.Join(tt.missing, ", ")) {
					t.Fatalf("RenderTemplate() error = %q, want missing %v", err, tt.missing)
				}
				return
			}
			if err != nil {
				t.Fatalf("RenderTemplate() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("RenderTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderTemplateMissingFieldScenario(t *testing.T) {
	t.Parallel()

	recipient := NewRecipient([]string{"TELEFONO"}, []string{"3001234567"})
	_, err := RenderTemplate("Hola {NOMBRE}", recipient)
	if !errors.Is(err, ErrTemplateFieldMissing) {
		t.Fatalf("RenderTemplate() error = %v, want ErrTemplateFieldMissing", err)
	}
	if IsFatal(err) {
		t.Fatal("missing template field must not be fatal")
	}
}

func TestTemplateFields(t *testing.T) {
	t.Parallel()

	got := TemplateFields("{nombre} {{x}} {DEUDA} {Nombre} {")
	want := []string{"DEUDA", "NOMBRE"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TemplateFields() = %v, want %v", got, want)
	}

	if got := TemplateFields("sin variables"); got != nil {
		t.Fatalf("TemplateFields() = %v, want nil", got)
	}
}
