// Copyright (C) 2025  The popfilter authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package management

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popfilter/popfilter/internal/config"
	"github.com/popfilter/popfilter/internal/mediatypes"
	"github.com/popfilter/popfilter/internal/textproto"
)

type harness struct {
	t       *testing.T
	conn    net.Conn
	reader  *bufio.Reader
	runtime *config.Runtime
	done    chan struct{}
}

func startAdmin(t *testing.T) *harness {
	media := mediatypes.NewSet()
	require.NoError(t, media.Add("image/png"))

	runtime := config.NewRuntime(false, "", "Part replaced.", media)

	admin := New(&config.Settings{
		ManagementUser: "admin",
		ManagementPass: "secret",
	}, runtime)

	clientSide, adminSide := net.Pipe()
	t.Cleanup(func() { clientSide.Close() })

	done := make(chan struct{})

	go func() {
		defer close(done)
		defer adminSide.Close()

		admin.Handle(context.Background(), textproto.Wrap(adminSide))
	}()

	h := &harness{
		t:       t,
		conn:    clientSide,
		reader:  bufio.NewReader(clientSide),
		runtime: runtime,
		done:    done,
	}

	h.expect("POP3 Proxy Management Server.")
	return h
}

func (h *harness) send(line string) {
	h.t.Helper()

	_, err := h.conn.Write([]byte(line + "\n"))
	require.NoError(h.t, err)
}

func (h *harness) expect(line string) {
	h.t.Helper()

	got, err := h.reader.ReadString('\n')
	require.NoError(h.t, err)
	assert.Equal(h.t, line, strings.TrimRight(got, "\n"))
}

func (h *harness) login() {
	h.t.Helper()

	h.send("USER admin")
	h.expect("+OK Welcome")

	h.send("PASS secret")
	h.expect("+OK Logged in.")
}

func (h *harness) quit() {
	h.t.Helper()

	h.send("QUIT")
	h.expect("+OK Goodbye.")

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		h.t.Fatal("connection did not close in time")
	}

	_, err := h.reader.ReadString('\n')
	assert.ErrorIs(h.t, err, io.EOF)
}

func TestAdminLogin(t *testing.T) {
	h := startAdmin(t)
	h.login()
	h.quit()
}

func TestAdminAuthenticationFailure(t *testing.T) {
	h := startAdmin(t)

	h.send("USER admin")
	h.expect("+OK Welcome")

	h.send("PASS wrong")
	h.expect("-ERR Authentication failed. Try again.")

	// a failed password returns to the user stage
	h.send("PASS secret")
	h.expect("-ERR command not recognized.")

	h.login()
	h.quit()
}

func TestAdminUnknownCommands(t *testing.T) {
	h := startAdmin(t)

	h.send("HELO")
	h.expect("-ERR command not recognized.")

	h.send("USER")
	h.expect("-ERR wrong command or wrong number of arguments.")

	h.login()

	h.send("FROBNICATE")
	h.expect("-ERR command not recognized.")

	h.send("LIST extra")
	h.expect("-ERR wrong command or wrong number of arguments.")

	h.send("BAN")
	h.expect("-ERR wrong command or wrong number of arguments.")
}

func TestAdminToggleFilter(t *testing.T) {
	h := startAdmin(t)
	h.login()

	h.send("CMD")
	h.expect("+OK External transformations activated.")

	enabled, _ := h.runtime.Filter()
	assert.True(t, enabled)

	h.send("CMD")
	h.expect("+OK External transformations deactivated.")

	enabled, _ = h.runtime.Filter()
	assert.False(t, enabled)
}

func TestAdminFilterCommand(t *testing.T) {
	h := startAdmin(t)
	h.login()

	h.send("CMD cat -A")
	h.expect("+OK Done.")

	_, command := h.runtime.Filter()
	assert.Equal(t, "cat -A", command)
}

func TestAdminReplacementMessage(t *testing.T) {
	h := startAdmin(t)
	h.login()

	h.send("MSG Attachment removed by policy.")
	h.expect("+OK Done.")

	assert.Equal(t, "Attachment removed by policy.",
		h.runtime.ReplacementMessage())

	h.send("MSG")
	h.expect("-ERR wrong command or wrong number of arguments.")
}

func TestAdminMediaTypes(t *testing.T) {
	h := startAdmin(t)
	h.login()

	h.send("BAN application/pdf")
	h.expect("+OK type banned")

	h.send("BAN bogus")
	h.expect("-ERR wrong media type.")

	h.send("LIST")
	h.expect("+OK application/pdf")
	h.expect("image/png")

	h.send("UNBAN application/pdf")
	h.expect("+OK type unbanned")

	h.send("LIST")
	h.expect("+OK image/png")

	assert.False(t, h.runtime.MediaTypes().Contains("application/pdf"))
	assert.True(t, h.runtime.MediaTypes().Contains("image/png"))
}

func TestAdminStats(t *testing.T) {
	h := startAdmin(t)
	h.login()

	h.send("STATS")
	h.expect("+OK ")
	h.expect("Metrics")

	for _, prefix := range []string{
		"Concurrent connections: ",
		"Historical Access: ",
		"Transfered Bytes: ",
		"Retrieved Messages: ",
	} {
		line, err := h.reader.ReadString('\n')
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(line, prefix),
			"expected %q to start with %q", line, prefix)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line string
		verb string
		arg  string
		argc int
	}{
		{"", "", "", 0},
		{"   ", "", "", 0},
		{"QUIT", "QUIT", "", 1},
		{"USER admin", "USER", "admin", 2},
		{"CMD cat -A", "CMD", "cat -A", 2},
		{"MSG  spaced  out ", "MSG", "spaced  out", 2},
	}

	for _, test := range tests {
		t.Run(test.line, func(t *testing.T) {
			verb, arg, argc := splitCommand(test.line)
			assert.Equal(t, test.verb, verb)
			assert.Equal(t, test.arg, arg)
			assert.Equal(t, test.argc, argc)
		})
	}
}
