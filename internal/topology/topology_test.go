package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsReplicated(t *testing.T) {
	assert.True(t, IsReplicated(2))
	assert.True(t, IsReplicated(20))
	assert.False(t, IsReplicated(1))
	assert.False(t, IsReplicated(19))
}

func TestHomeSite(t *testing.T) {
	assert.Equal(t, SiteID(2), HomeSite(1))
	assert.Equal(t, SiteID(10), HomeSite(19))
	assert.Equal(t, SiteID(4), HomeSite(3))
}

func TestHostsVar(t *testing.T) {
	for s := SiteID(1); s <= NumSites; s++ {
		assert.True(t, HostsVar(s, 4), "every site hosts replicated x4")
	}
	home := HomeSite(5)
	for s := SiteID(1); s <= NumSites; s++ {
		assert.Equal(t, s == home, HostsVar(s, 5))
	}
}

func TestInitialValue(t *testing.T) {
	assert.Equal(t, 10, InitialValue(1))
	assert.Equal(t, 200, InitialValue(20))
}
