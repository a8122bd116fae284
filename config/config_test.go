package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, `{"pin": 17, "activehigh": true, "freq": 1000}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 17, cfg.Pin)
	assert.True(t, cfg.ActiveHigh)
	assert.Equal(t, 1000, cfg.Freq)
	assert.Nil(t, cfg.IODev)
}

func TestLoadWithIODev(t *testing.T) {
	path := writeTemp(t, `{"pin": 1, "activehigh": false, "freq": 100, "iodev": 2}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.IODev)
	assert.Equal(t, 2, *cfg.IODev)
}

func TestLoadMissingKeyIsDataError(t *testing.T) {
	path := writeTemp(t, `{"activehigh": true, "freq": 1000}`)
	_, err := Load(path)
	assertDataError(t, err)
}

func TestLoadOddFreqIsDataError(t *testing.T) {
	path := writeTemp(t, `{"pin": 1, "activehigh": true, "freq": 1001}`)
	_, err := Load(path)
	assertDataError(t, err)
}

func TestLoadFreqOutOfRangeIsDataError(t *testing.T) {
	for _, freq := range []int{8, 120002} {
		path := writeTemp(t, `{"pin": 1, "activehigh": true, "freq": `+strconv.Itoa(freq)+`}`)
		_, err := Load(path)
		assertDataError(t, err)
	}
}

func TestLoadMissingFileIsIOError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ExitIO, cfgErr.Category)
}

func assertDataError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ExitData, cfgErr.Category)
}
