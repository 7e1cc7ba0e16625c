package cli

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSelectLevel(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		quiet   bool
		want    zerolog.Level
	}{
		{"default", false, false, zerolog.InfoLevel},
		{"verbose", true, false, zerolog.DebugLevel},
		{"quiet", false, true, zerolog.WarnLevel},
		{"verbose wins over quiet", true, true, zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectLevel(tt.verbose, tt.quiet))
		})
	}
}

func TestInitLoggerWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLoggerWithWriter(false, true, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestInitLoggerWithWriter_FlagsSensitiveData(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLoggerWithWriter(false, false, &buf)

	logger.Info().Msg("using key sk-ant-REDACTED")

	assert.Contains(t, buf.String(), "contains_filtered_data")
}

func TestAppHome_EnvOverride(t *testing.T) {
	t.Setenv("MARIECODER_HOME", "/custom/home")

	home, err := AppHome()
	assert.NoError(t, err)
	assert.Equal(t, "/custom/home", home)
}

func TestLogFilePath(t *testing.T) {
	t.Setenv("MARIECODER_HOME", "/custom/home")

	path, err := LogFilePath()
	assert.NoError(t, err)
	assert.Equal(t, "/custom/home/logs/mariecoder.log", path)
}
