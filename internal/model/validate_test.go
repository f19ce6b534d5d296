package model

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateScannedCode(t *testing.T) {
	valid := func() *ScannedCode {
		return &ScannedCode{Payload: "590123412345", Symbology: SymbologyEAN13, StoreScope: "Cherechiu"}
	}

	for _, tc := range []struct {
		name      string
		mutate    func(c *ScannedCode)
		wantField string
	}{
		{name: "Valid", mutate: func(*ScannedCode) {}},
		{name: "EmptyPayload", mutate: func(c *ScannedCode) { c.Payload = "" }, wantField: "payload"},
		{name: "HugePayload", mutate: func(c *ScannedCode) { c.Payload = strings.Repeat("x", 5000) }, wantField: "payload"},
		{name: "BadUTF8", mutate: func(c *ScannedCode) { c.Payload = "\xff\xfe" }, wantField: "payload"},
		{name: "MissingScope", mutate: func(c *ScannedCode) { c.StoreScope = " " }, wantField: "store_scope"},
		{name: "SpaceInSymbology", mutate: func(c *ScannedCode) { c.Symbology = "qr code" }, wantField: "symbology"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := ValidateScannedCode(c)
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if ve.Errors[0].Field != tc.wantField {
				t.Errorf("field = %q, want %q", ve.Errors[0].Field, tc.wantField)
			}
		})
	}
}

func TestValidateScope(t *testing.T) {
	for _, tc := range []struct {
		scope   string
		wantErr bool
	}{
		{"Valea lui Mihai", false},
		{"Adoni", false},
		{"", true},
		{"\t", true},
		{"bad\x00scope", true},
		{strings.Repeat("s", 129), true},
	} {
		err := ValidateScope(tc.scope)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateScope(%q) error = %v, wantErr %v", tc.scope, err, tc.wantErr)
		}
	}
}
