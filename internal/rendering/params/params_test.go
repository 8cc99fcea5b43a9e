package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		hostname string
		port     string
		schema   string
		want     string
	}{
		{
			name:     "hostname and port",
			format:   "--rest ${rest_hostname}:${rest_port}",
			hostname: "localhost",
			port:     "3000",
			schema:   "schema",
			want:     "--rest localhost:3000",
		},
		{
			name:     "all placeholders",
			format:   "--rest ${rest_hostname}:${rest_port} --rest-schema ${rest_schema}",
			hostname: "localhost",
			port:     "3000",
			schema:   "schema",
			want:     "--rest localhost:3000 --rest-schema schema",
		},
		{
			name:     "repeated placeholder",
			format:   "${rest_port} ${rest_port}",
			hostname: "h",
			port:     "8080",
			schema:   "s",
			want:     "8080 8080",
		},
		{
			name:     "no placeholders",
			format:   "--plain --flags",
			hostname: "h",
			port:     "1",
			schema:   "s",
			want:     "--plain --flags",
		},
		{
			name:     "unknown placeholder untouched",
			format:   "${rest_unknown} ${rest_port}",
			hostname: "h",
			port:     "9",
			schema:   "s",
			want:     "${rest_unknown} 9",
		},
		{
			name:   "empty format",
			format: "",
			want:   "",
		},
		{
			name:     "unterminated placeholder",
			format:   "--rest ${rest_hostname",
			hostname: "localhost",
			port:     "1",
			schema:   "s",
			want:     "--rest ${rest_hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.format, tt.hostname, tt.port, tt.schema)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSinglePass(t *testing.T) {
	// Replacement values containing placeholders must not be expanded again.
	got := Format("${rest_hostname}", "${rest_port}", "3000", "s")
	assert.Equal(t, "${rest_port}", got)

	got = Format("${rest_schema}", "h", "p", "${rest_hostname}:${rest_port}")
	assert.Equal(t, "${rest_hostname}:${rest_port}", got)
}
