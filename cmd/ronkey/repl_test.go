package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codefionn/ronkey/internal/client"
	"github.com/codefionn/ronkey/internal/config"
	"github.com/codefionn/ronkey/internal/logger"
	"github.com/codefionn/ronkey/internal/protocol"
	"github.com/codefionn/ronkey/internal/server"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestREPL(t *testing.T) {
	color.NoColor = true

	srv := server.NewServer(config.DefaultConfig(),
		server.WithLogger(logger.NewWithWriter(logger.LevelNone, io.Discard, "")))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Stop()

	c, err := client.Dial(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http")+"/eval")
	require.NoError(t, err)
	defer c.Close()

	input := strings.Join([]string{
		"let x = 5;",
		"",
		"x * 2",
		"let y 1;",
		"y",
	}, "\n")

	var out bytes.Buffer
	in := &scannerReader{scanner: bufio.NewScanner(strings.NewReader(input))}
	require.NoError(t, repl(context.Background(), c, in, &out))

	assert.Equal(t, strings.Join([]string{
		"null",
		"10",
		"\texpected next token to be =, got INT instead",
		"ERROR: identifier not found: y",
		"",
	}, "\n"), out.String())
}

func TestPrintResponse(t *testing.T) {
	color.NoColor = true
	okColor := color.New(color.FgGreen)
	errColor := color.New(color.FgRed)

	tests := []struct {
		name string
		resp protocol.Response
		want string
	}{
		{"ok", protocol.OK("42"), "42\n"},
		{"errors", protocol.Err([]string{"first", "second"}), "\tfirst\n\tsecond\n"},
		{"no errors", protocol.Err(nil), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			printResponse(&out, tt.resp, okColor, errColor)
			assert.Equal(t, tt.want, out.String())
		})
	}
}
