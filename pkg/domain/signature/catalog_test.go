package signature_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwpsec/guard/pkg/domain/signature"
	"github.com/openwpsec/guard/pkg/logger"
)

func TestNewCatalog(t *testing.T) {
	log := logger.NewNop()

	t.Run("compiles valid definitions in order", func(t *testing.T) {
		defs := []signature.Definition{
			{Pattern: `eval\s*\(`, Severity: signature.SeverityCritical, Description: "eval call", Kind: signature.KindMalicious},
			{Pattern: `base64_decode`, Severity: signature.SeverityHigh, Description: "base64 decode", Kind: signature.KindObfuscation},
		}

		catalog := signature.NewCatalog(defs, log)

		require.Equal(t, 2, catalog.Len())
		active := catalog.Active()
		assert.Equal(t, `eval\s*\(`, active[0].Name())
		assert.Equal(t, `base64_decode`, active[1].Name())
	})

	t.Run("excludes patterns that fail to compile", func(t *testing.T) {
		defs := []signature.Definition{
			{Pattern: `[unclosed`, Severity: signature.SeverityHigh, Description: "broken", Kind: signature.KindMalicious},
			{Pattern: `shell_exec`, Severity: signature.SeverityHigh, Description: "shell exec", Kind: signature.KindMalicious},
		}

		catalog := signature.NewCatalog(defs, log)

		require.Equal(t, 1, catalog.Len())
		assert.Equal(t, `shell_exec`, catalog.Active()[0].Name())
	})

	t.Run("unknown severity defaults to medium", func(t *testing.T) {
		defs := []signature.Definition{
			{Pattern: `passthru`, Severity: "urgent", Description: "passthru call", Kind: signature.KindMalicious},
		}

		catalog := signature.NewCatalog(defs, log)

		require.Equal(t, 1, catalog.Len())
		assert.Equal(t, signature.SeverityMedium, catalog.Active()[0].Severity)
	})

	t.Run("built-in definitions all compile", func(t *testing.T) {
		catalog := signature.NewCatalog(signature.DefaultDefinitions(), log)
		assert.Equal(t, len(signature.DefaultDefinitions()), catalog.Len())
	})
}

func TestCatalogSubsets(t *testing.T) {
	log := logger.NewNop()
	defs := []signature.Definition{
		{Pattern: `eval\s*\(`, Severity: signature.SeverityCritical, Description: "eval call", Kind: signature.KindMalicious},
		{Pattern: `gzinflate`, Severity: signature.SeverityMedium, Description: "compressed payload", Kind: signature.KindObfuscation},
		{Pattern: `<iframe[^>]*hidden`, Severity: signature.SeverityHigh, Description: "hidden iframe", Kind: signature.KindDatabase},
		{Pattern: `<script[^>]*src=`, Severity: signature.SeverityLow, Description: "injected script tag", Kind: signature.KindDatabase},
	}
	catalog := signature.NewCatalog(defs, log)

	t.Run("ByKind preserves declaration order", func(t *testing.T) {
		dbSigs := catalog.ByKind(signature.KindDatabase)
		require.Len(t, dbSigs, 2)
		assert.Equal(t, `<iframe[^>]*hidden`, dbSigs[0].Name())
		assert.Equal(t, `<script[^>]*src=`, dbSigs[1].Name())
	})

	t.Run("HighSeverity keeps high and critical only", func(t *testing.T) {
		high := catalog.HighSeverity()
		require.Len(t, high, 2)
		for _, sig := range high {
			assert.GreaterOrEqual(t, sig.Severity.Rank(), signature.SeverityHigh.Rank())
		}
	})
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, signature.SeverityCritical.Rank(), signature.SeverityHigh.Rank())
	assert.Greater(t, signature.SeverityHigh.Rank(), signature.SeverityMedium.Rank())
	assert.Greater(t, signature.SeverityMedium.Rank(), signature.SeverityLow.Rank())
	assert.Greater(t, signature.SeverityLow.Rank(), signature.SeverityInfo.Rank())
	assert.Equal(t, 0, signature.Severity("bogus").Rank())
	assert.False(t, signature.Severity("bogus").IsValid())
}
