package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/repository"
	"github.com/vladislavdragonenkov/storefront/internal/storage/local"
)

type cliEnv struct {
	state  string
	remote string
	extra  []string
}

func newCLIEnv(t *testing.T, remote string) cliEnv {
	t.Helper()
	dir := t.TempDir()
	return cliEnv{
		state:  filepath.Join(dir, "device.json"),
		remote: filepath.Join(dir, "remote.json"),
		extra:  []string{"-remote", remote},
	}
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append([]string{"-state", e.state, "-remote-path", e.remote}, e.extra...)
	full = append(full, args...)
	var out bytes.Buffer
	err := run(context.Background(), full, &out)
	return out.String(), err
}

func TestCLI_Usage(t *testing.T) {
	env := newCLIEnv(t, remoteNone)

	_, err := env.run(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = env.run(t, "dance")
	assert.ErrorIs(t, err, errUsage)

	err = run(context.Background(), []string{"-state", env.state, "-remote", "redis", "show"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported remote backend")
}

func TestCLI_LocalOnlyCartSurvivesRestart(t *testing.T) {
	env := newCLIEnv(t, remoteNone)

	out, err := env.run(t, "add", "-id", "1", "-name", "Mug", "-price", "29.99")
	require.NoError(t, err)
	assert.Contains(t, out, "cart (local mode): 1 items, total 29.99")

	_, err = env.run(t, "add", "-id", "1", "-name", "Mug", "-price", "29.99")
	require.NoError(t, err)
	out, err = env.run(t, "add", "-id", "2", "-name", "Tee", "-price", "12.99")
	require.NoError(t, err)
	assert.Contains(t, out, "3 items, total 72.97")

	out, err = env.run(t, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "3 items, total 72.97")

	out, err = env.run(t, "qty", "-id", "1", "-n", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "1 items, total 12.99")

	out, err = env.run(t, "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "0 items, total 0.00")
}

func TestCLI_AnonymousAddRequiresLoginWhenRemoteConfigured(t *testing.T) {
	env := newCLIEnv(t, remoteFile)

	_, err := env.run(t, "add", "-id", "1", "-name", "Mug", "-price", "29.99")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestCLI_SignInUsesRemoteCartAndBootstrapsUser(t *testing.T) {
	env := newCLIEnv(t, remoteFile)

	out, err := env.run(t, "signin", "-user", "u1", "-email", "u1@example.com", "-name", "Ann")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as u1 (remote mode)")

	_, err = env.run(t, "add", "-id", "1", "-name", "Mug", "-price", "29.99")
	require.NoError(t, err)

	remote, err := local.Open(env.remote)
	require.NoError(t, err)
	email, err := repository.NewUsers(remote).Email(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", email)

	saved, err := repository.NewCarts(remote).Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Count())

	out, err = env.run(t, "signout")
	require.NoError(t, err)
	assert.Contains(t, out, "cart (local mode): 0 items", "carts of different identities never merge")

	out, err = env.run(t, "signin", "-user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 items, total 29.99")

	_, err = env.run(t, "signin")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCLI_CheckoutLeavesCartUntouched(t *testing.T) {
	var payload checkout.SessionPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_ = json.NewEncoder(w).Encode(checkout.SessionResult{URL: "https://pay.example/cs_1", SessionID: "cs_1"})
	}))
	defer srv.Close()

	env := newCLIEnv(t, remoteFile)
	env.extra = append(env.extra, "-api", srv.URL, "-id-token", "tok-u1")

	_, err := env.run(t, "signin", "-user", "u1", "-email", "u1@example.com")
	require.NoError(t, err)
	_, err = env.run(t, "add", "-id", "1", "-name", "Mug", "-price", "29.99")
	require.NoError(t, err)

	out, err := env.run(t, "checkout")
	require.NoError(t, err)
	assert.Contains(t, out, "open to pay: https://pay.example/cs_1")
	assert.Equal(t, "Bearer tok-u1", auth)
	assert.Equal(t, "u1", payload.UserID)
	require.Len(t, payload.Items, 1)

	out, err = env.run(t, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "1 items")
}

func TestCLI_CheckoutFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(checkout.ErrorBody{Error: "payment processor is not configured"})
	}))
	defer srv.Close()

	env := newCLIEnv(t, remoteNone)
	env.extra = append(env.extra, "-api", srv.URL)

	_, err := env.run(t, "checkout")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = env.run(t, "signin", "-user", "u1")
	require.NoError(t, err)
	_, err = env.run(t, "checkout")
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = env.run(t, "add", "-id", "1", "-name", "Mug", "-price", "29.99")
	require.NoError(t, err)
	_, err = env.run(t, "checkout")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCheckoutFailed))
	assert.True(t, strings.Contains(err.Error(), "payment processor is not configured"))
}
