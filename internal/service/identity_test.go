package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/councilgen/internal/domain"
)

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func TestIdentityGeneratorGenerate(t *testing.T) {
	text := newFakeText()
	text.reply = identityReply
	g := NewIdentityGenerator(text, seeded())

	identity, err := g.Generate(context.Background(), IdentityOptions{
		Region:     "yorkshire",
		Theme:      "mining_legacy",
		Population: domain.PopulationSmall,
	})
	require.NoError(t, err)
	require.NoError(t, identity.Validate())

	assert.Equal(t, "Harbourside Council", identity.Name)
	assert.Equal(t, "By the Sea", identity.Motto)
	assert.Equal(t, "yorkshire", identity.RegionKey)
	assert.Equal(t, "mining_legacy", identity.ThemeKey)
	assert.Equal(t, domain.PopulationSmall, identity.PopulationRange)
	assert.GreaterOrEqual(t, identity.PopulationEstimate, 15000)
	assert.LessOrEqual(t, identity.PopulationEstimate, 40000)
	assert.Zero(t, identity.PopulationEstimate%100)

	prompts := text.calls()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Yorkshire and the Humber")
	assert.Contains(t, prompts[0], "Former mining community")
}

func TestIdentityGeneratorRandomChoicesAreValid(t *testing.T) {
	text := newFakeText()
	text.reply = identityReply
	g := NewIdentityGenerator(text, seeded())

	for i := 0; i < 20; i++ {
		identity, err := g.Generate(context.Background(), IdentityOptions{})
		require.NoError(t, err)
		assert.NoError(t, identity.Validate())
	}
}

func TestIdentityGeneratorFallsBackToDefault(t *testing.T) {
	testCases := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "backend error", err: errors.New("unavailable")},
		{name: "no JSON", reply: "I cannot help with that."},
		{name: "missing name", reply: `{"motto": "Onwards"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			text := newFakeText()
			if tc.err != nil {
				text.fail["Invent"] = tc.err
			} else {
				reply := tc.reply
				text.reply = func(string) string { return reply }
			}
			g := NewIdentityGenerator(text, seeded())

			identity, err := g.Generate(context.Background(), IdentityOptions{Region: "wales", Theme: "cathedral_city"})
			require.NoError(t, err)
			fallback := domain.DefaultIdentity()
			assert.Equal(t, fallback.Name, identity.Name)
			assert.Equal(t, fallback.FlavourKeywords, identity.FlavourKeywords)
			assert.Equal(t, "wales", identity.RegionKey)
			assert.Equal(t, "cathedral_city", identity.ThemeKey)
		})
	}
}

func TestIdentityGeneratorRejectsUnknownKeys(t *testing.T) {
	g := NewIdentityGenerator(newFakeText(), seeded())

	_, err := g.Generate(context.Background(), IdentityOptions{Region: "mars"})
	assert.EqualError(t, err, `unknown region "mars"`)

	_, err = g.Generate(context.Background(), IdentityOptions{Theme: "space_port"})
	assert.EqualError(t, err, `unknown theme "space_port"`)

	_, err = g.Generate(context.Background(), IdentityOptions{Population: "huge"})
	assert.EqualError(t, err, `unknown population range "huge"`)
}
