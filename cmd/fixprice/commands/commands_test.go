package commands

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/fixprice/pkg/fixprice"
)

func TestDescribe(t *testing.T) {
	challenge := &fixprice.WarmupError{Stage: "navigate", Attempts: 3}
	challenge.Diagnostic.Challenge = "ddos-guard"

	tests := []struct {
		name string
		err  error
		hint string
	}{
		{"challenge", challenge, "--headless=false"},
		{"city", fixprice.ErrCityRequired, "--city"},
		{"retries", &fixprice.RetryExhaustedError{Method: "GET", URL: "u", Attempts: 3}, "--retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describe(tt.err)
			assert.Contains(t, got.Error(), tt.hint)
			assert.True(t, errors.Is(got, tt.err), "describe must keep the original error")
		})
	}

	plain := errors.New("boom")
	assert.Same(t, plain, describe(plain))
}

func TestImageCommand_SavesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-data"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.jpg")
	rootCmd.SetArgs([]string{"image", srv.URL + "/images/origin/cup.jpg", "--output", path, "--quiet"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-data", string(data))
}

func TestProductsCommand_RejectsArgs(t *testing.T) {
	rootCmd.SetArgs([]string{"products", "a", "b", "c"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	assert.Error(t, rootCmd.Execute())
}
