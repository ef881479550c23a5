package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatterFormatDomain(t *testing.T) {
	cases := []struct {
		syntax Syntax
		want   string
	}{
		{SyntaxAdblock, "‖ads.example.com^"},
		{SyntaxHostsLocal, "127.0.0.1 ads.example.com"},
		{SyntaxPlain, "ads.example.com"},
		{SyntaxDnsmasq, "local=/ads.example.com/"},
		{SyntaxDnsmasqOld, "server=/ads.example.com/"},
		{SyntaxUnbound, `local-zone: "ads.example.com." always_null`},
		{SyntaxPrivoxy, "{ +block } .ads.example.com"},
		{SyntaxPihole, `(^|\.)ads\.example\.com$`},
	}

	for _, tc := range cases {
		t.Run(string(tc.syntax), func(t *testing.T) {
			f := NewFormatter(tc.syntax, "")
			assert.Equal(t, tc.want, f.FormatDomain("ads.example.com"))
		})
	}
}

func TestFormatterHostsCustomIP(t *testing.T) {
	f := NewFormatter(SyntaxHostsLocal, "0.0.0.0")
	assert.Equal(t, "0.0.0.0 ads.example.com", f.FormatDomain("ads.example.com"))
}

func TestFormatterAdblockRulesWithTypes(t *testing.T) {
	f := NewFormatter(SyntaxAdblockRules, "")

	t.Run("no types falls back to bare rule", func(t *testing.T) {
		assert.Equal(t, "‖ads.example.com^", f.FormatDomainWithTypes("ads.example.com", nil))
	})

	t.Run("sorted, comma-joined type list", func(t *testing.T) {
		got := f.FormatDomainWithTypes("ads.example.com", []string{"xhr", "script", "image"})
		assert.Equal(t, "‖ads.example.com^$image,script,xhr", got)
	})
}

func TestFormatterOtherSyntaxesIgnoreTypes(t *testing.T) {
	f := NewFormatter(SyntaxPlain, "")
	assert.Equal(t, "ads.example.com", f.FormatDomainWithTypes("ads.example.com", []string{"script"}))
}

func TestIsCommentLine(t *testing.T) {
	assert.True(t, IsCommentLine("! source"))
	assert.True(t, IsCommentLine("   ! indented"))
	assert.False(t, IsCommentLine("ads.example.com"))
}
