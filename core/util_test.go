package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bytedeck/deck/core"
)

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Hello", core.CleanString("  Hello \n"))
	assert.Equal(t, "hello", core.CleanString("  Hello \n", true))
	assert.Equal(t, "", core.CleanString(" \t "))
}

func TestIsAbsoluteURL(t *testing.T) {
	tests := map[string]bool{
		"https://school.deck.test":      true,
		"http://localhost:8000/":        true,
		"":                              false,
		"school.deck.test":              false,
		"/notifications/":               false,
		"ftp://school.deck.test":        false,
		"https://":                      false,
		"://missing-scheme.deck.test/x": false,
	}
	for in, want := range tests {
		assert.Equal(t, want, core.IsAbsoluteURL(in), "%q", in)
	}
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://a.test/quests/1/", core.JoinURL("https://a.test", "/quests/1/"))
	assert.Equal(t, "https://a.test/quests/1/", core.JoinURL("https://a.test/", "/quests/1/"))
	assert.Equal(t, "https://a.test/quests/1/", core.JoinURL("https://a.test/", "quests/1/"))
}

func TestSchema(t *testing.T) {
	tests := []struct {
		schema core.Schema
		valid  bool
	}{
		{"school", true},
		{"hacker_space", true},
		{"_private", true},
		{"public", true},
		{"School", false},
		{"hacker-space", false},
		{"9lives", false},
		{"", false},
		{"a; DROP TABLE users", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.valid, tc.schema.Valid(), "%q", tc.schema)
	}
	assert.True(t, core.PublicSchema.IsPublic())
	assert.False(t, core.Schema("school").IsPublic())
}

func TestDBOrdering(t *testing.T) {
	assert.Equal(t, "created_at DESC", core.DBOrdering{Field: "created_at"}.String())
	assert.Equal(t, "id ASC", core.DBOrdering{Field: "id", Ascending: true}.String())
}

func TestConfig_DefaultFrom(t *testing.T) {
	conf := &core.Config{AppName: "Deck", DefaultFromEmail: "Deck <noreply@deck.test>"}
	assert.Equal(t, "noreply@deck.test", conf.DefaultFrom().Address)
	assert.Equal(t, "Deck", conf.DefaultFrom().Name)

	conf.DefaultFromEmail = "not an address"
	assert.Equal(t, "not an address", conf.DefaultFrom().Address)
}

func TestShutdownError(t *testing.T) {
	err := core.NewShutdownError("integrity issue")
	assert.True(t, core.IsShutdown(err))
	assert.False(t, core.IsShutdown(assert.AnError))
}
