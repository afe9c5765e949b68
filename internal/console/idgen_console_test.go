package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idgen_server/core/service/idgen"
	"idgen_server/pkg/crypto"
	"idgen_server/pkg/logger"
	"idgen_server/pkg/snowflake"
)

func newTestConsole(t *testing.T, input string) (*Console, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true

	enc, err := crypto.NewEncryptor([]byte("console-key"))
	require.NoError(t, err)
	svc, err := idgen.NewService(idgen.Config{Defaults: snowflake.DefaultConfig(), MaxBatchSize: 50},
		idgen.WithLogger(logger.New(logger.Config{Backend: logger.BackendNone})),
		idgen.WithEncryptor(enc.URLSafe()))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return New(svc, Options{In: strings.NewReader(input), Out: out, JWTSecret: "console-secret"}), out
}

func run(t *testing.T, c *Console, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	require.NoError(t, c.Execute(context.Background(), line))
	return strings.TrimSpace(out.String())
}

func TestConsole_RunLoop(t *testing.T) {
	c, out := newTestConsole(t, "next\n\nbogus\nexit\nnext\n")
	require.NoError(t, c.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "default node 1")
	assert.Contains(t, text, "node=1")
	assert.Contains(t, text, "error:")
	// Commands after exit are not run.
	assert.Equal(t, 1, strings.Count(text, "node=1"))
}

func TestConsole_RunStopsAtEOF(t *testing.T) {
	c, _ := newTestConsole(t, "next --node 3")
	require.NoError(t, c.Run(context.Background()))
	assert.Len(t, c.service.Generators(), 1)
}

func TestConsole_IDCommands(t *testing.T) {
	c, out := newTestConsole(t, "")

	id := run(t, c, out, "next -n 4")
	fields := strings.Fields(id)
	require.Len(t, fields, 2)
	assert.Equal(t, "node=4", fields[1])

	decoded := run(t, c, out, "decode "+fields[0]+" --node 4")
	assert.Contains(t, decoded, "node:      4")

	summary := run(t, c, out, "batch 10 -q")
	assert.Contains(t, summary, "10 ids from node 1")

	require.Error(t, c.Execute(context.Background(), "batch 0"))
	require.Error(t, c.Execute(context.Background(), "batch 51"))
	require.Error(t, c.Execute(context.Background(), "decode xyz"))

	list := run(t, c, out, "generators")
	assert.Contains(t, list, "node=1")
	assert.Contains(t, list, "node=4")

	assert.Contains(t, run(t, c, out, "remove 4"), "removed node 4")
	assert.Contains(t, run(t, c, out, "remove 4"), "no generator")

	token := run(t, c, out, "opaque 987654321")
	assert.Equal(t, "987654321", run(t, c, out, "opaque -- "+token))
}

func TestConsole_CryptoCommands(t *testing.T) {
	c, out := newTestConsole(t, "")

	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", run(t, c, out, "hash md5 hello"))
	assert.Equal(t, crypto.HashSHA256("hello world"), run(t, c, out, "hash sha256 hello world"))
	require.Error(t, c.Execute(context.Background(), "hash crc32 x"))

	for _, alg := range []string{"aes", "des", "3des"} {
		cipherText := run(t, c, out, "encrypt "+alg+" secret snowflake ids")
		assert.Equal(t, "snowflake ids", run(t, c, out, "decrypt "+alg+" secret "+cipherText), alg)
	}

	withIV := run(t, c, out, "encrypt aes secret text --iv abcdefghijklmnop")
	plain := run(t, c, out, "encrypt aes secret text")
	assert.NotEqual(t, withIV, plain)

	require.Error(t, c.Execute(context.Background(), "encrypt rot13 k v"))
}

func TestConsole_Token(t *testing.T) {
	c, out := newTestConsole(t, "")

	raw := run(t, c, out, "token --subject ops --ttl 10m")
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return []byte("console-secret"), nil })
	require.NoError(t, err)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "ops", claims["sub"])
	assert.Equal(t, "admin", claims["role"])
}

func TestConsole_Clear(t *testing.T) {
	c, out := newTestConsole(t, "")
	require.NoError(t, c.Execute(context.Background(), "clear"))
	assert.Equal(t, "\033[H\033[2J", out.String())
}
