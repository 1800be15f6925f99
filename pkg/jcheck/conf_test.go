package jcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/pkg/census"
)

const sampleConf = `
[general]
project=jdk
version=17

[checks]
error=author,reviewers,whitespace,issues
warning=issuestitle,binary

[census]
version=0
domain=openjdk.org

[repository]
tags=jdk-17\+[0-9]+
branches=master|dev

[checks "reviewers"]
reviewers=1
committers=1
ignore=duke

[checks "whitespace"]
files=.*\.java|.*\.cpp

[checks "issues"]
pattern=^([0-9]+): (\S.*)$
`

func TestParseConf(t *testing.T) {
	conf, err := Parse([]byte(sampleConf))
	require.NoError(t, err)

	assert.Equal(t, "jdk", conf.Project)
	assert.Equal(t, "17", conf.Version)
	assert.Equal(t, []string{"author", "reviewers", "whitespace", "issues"}, conf.ErrorChecks)
	assert.Equal(t, []string{"issuestitle", "binary"}, conf.WarningChecks)
	assert.Equal(t, "0", conf.CensusVersion)
	assert.Equal(t, "openjdk.org", conf.CensusDomain)

	require.NotNil(t, conf.TagPattern)
	assert.True(t, conf.TagPattern.MatchString("jdk-17+33"))
	assert.False(t, conf.TagPattern.MatchString("v1.0"))

	assert.Equal(t, 1, conf.Reviewers.Counts[census.RoleReviewer])
	assert.Equal(t, 1, conf.Reviewers.Counts[census.RoleCommitter])
	assert.True(t, conf.Reviewers.Ignored("duke"))

	require.NotNil(t, conf.WhitespaceFiles)
	assert.True(t, conf.WhitespaceFiles.MatchString("src/Foo.java"))
	assert.False(t, conf.WhitespaceFiles.MatchString("README.md"))

	assert.True(t, conf.IssuePattern.MatchString("8291234: Fix it"))
	assert.NotEmpty(t, conf.Hash())
}

func TestParseConfLegacyMinimum(t *testing.T) {
	conf, err := Parse([]byte(`
[general]
project=jdk

[checks]
error=reviewers

[checks "reviewers"]
minimum=2
role=committer
`))
	require.NoError(t, err)
	assert.Equal(t, 2, conf.Reviewers.Counts[census.RoleCommitter])
}

func TestParseConfMissingProject(t *testing.T) {
	_, err := Parse([]byte("[general]\nversion=17\n"))
	assert.Error(t, err)
}

func TestParseConfInvalidPattern(t *testing.T) {
	_, err := Parse([]byte(`
[general]
project=jdk

[repository]
tags=jdk-[
`))
	assert.Error(t, err)
}

func TestCheckEnabled(t *testing.T) {
	conf, err := Parse([]byte(sampleConf))
	require.NoError(t, err)

	severity, enabled := conf.CheckEnabled("whitespace")
	assert.True(t, enabled)
	assert.Equal(t, SeverityError, severity)

	severity, enabled = conf.CheckEnabled("issuestitle")
	assert.True(t, enabled)
	assert.Equal(t, SeverityWarning, severity)

	_, enabled = conf.CheckEnabled("executable")
	assert.False(t, enabled)
}

func TestConfHashDiffers(t *testing.T) {
	a, err := Parse([]byte("[general]\nproject=a\n"))
	require.NoError(t, err)
	b, err := Parse([]byte("[general]\nproject=b\n"))
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), b.Hash())
}
