package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/clinicsched/libs/auth"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "migrate", "healthcheck", "token"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %q not registered: %v", name, err)
		}
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--sub", "pa", "--role", "dentist"})
	if err := root.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}

	claims, err := auth.NewVerifier("dev-secret", nil).Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if claims.Subject != "pa" || claims.Role != "dentist" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	root = newRootCommand()
	root.SetArgs([]string{"token", "--sub", "pa", "--role", "root"})
	if err := root.Execute(); err == nil {
		t.Fatalf("unknown role should fail")
	}
}
