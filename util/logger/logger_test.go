package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kind string

func (k kind) String() string { return string(k) }

func TestAuditLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(&buf, false)
	audit.AuditEventSent(1, 4, kind("PrePrepare"), "b7", "view 0", 120)
	audit.AuditEventReceived(4, 1, kind("PrePrepare"), "b7", "", 170)

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "time ; nodeId ; eventType ; from->to ; id ; text", lines[0])
	assert.Equal(t, "120 ; 1 ; PrePrepare ; 1->4 ; b7 ; view 0", lines[1])
	assert.Equal(t, "170 ; 4 ; PrePrepare ; 1->4 ; b7 ; ", lines[2])
}

func TestNilAuditLoggerIsSilent(t *testing.T) {
	var audit *AuditLogger
	assert.NotPanics(t, func() { audit.Audit(0, kind("x"), "", "", 0) })
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerWritesToFile(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false, zerolog.WarnLevel)
	log.Info().Msg("hidden")
	log.Warn().Int("run", 3).Msg("visible")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"run":3`)
}
