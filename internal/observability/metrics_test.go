package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundPort(t *testing.T) {
	assert.Equal(t, 43121, boundPort("[::]:43121", 0))
	assert.Equal(t, 9100, boundPort("not-an-addr", 9100))
	assert.Equal(t, defaultMetricsPort, boundPort("", 0))
}
