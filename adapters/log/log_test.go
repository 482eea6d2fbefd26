package stdlogadapter_test

import (
	"bytes"
	"log"
	"testing"

	stdlogadapter "github.com/emmanueltaiwo/limitly/adapters/log"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/stretchr/testify/assert"
)

var _ ratelimiter.Logger = (*stdlogadapter.StdLogger)(nil)

func TestStdLogger_Prefixes(t *testing.T) {
	var buf bytes.Buffer
	l := stdlogadapter.New(log.New(&buf, "", 0), false).Named("store")

	l.Debugf("hidden")
	l.Infof("connected")
	l.Warnf("retrying %d", 2)
	l.Errorf("gave up")

	assert.Equal(t, "[INFO] store: connected\n[WARN] store: retrying 2\n[ERROR] store: gave up\n", buf.String())
}

func TestStdLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	l := stdlogadapter.New(log.New(&buf, "", 0), true)

	l.Debugf("key %s", "rate_limit:x")

	assert.Equal(t, "[DEBUG] key rate_limit:x\n", buf.String())
}
