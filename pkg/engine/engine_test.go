package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twharvest/twharvest/pkg/browserscrape"
	"github.com/twharvest/twharvest/pkg/config"
	"github.com/twharvest/twharvest/pkg/logger"
	"github.com/twharvest/twharvest/pkg/xclient"
)

func TestNewSelectsGraphQLByDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.Name = ""
	scraper := New(cfg, logger.GetLogger())
	_, ok := scraper.(*xclient.Client)
	assert.True(t, ok, "expected a *xclient.Client for an unrecognized/empty engine name")
}

func TestNewSelectsPlaywright(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.Name = "playwright"
	scraper := New(cfg, logger.GetLogger())
	_, ok := scraper.(*browserscrape.Client)
	assert.True(t, ok, "expected a *browserscrape.Client for engine name \"playwright\"")
}

func TestNamesAndValidate(t *testing.T) {
	assert.ElementsMatch(t, []string{"graphql", "playwright"}, Names())
	require.NoError(t, Validate("graphql"))
	require.Error(t, Validate("nonsense"))
}
