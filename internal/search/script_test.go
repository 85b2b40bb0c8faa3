package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectScriptEmptyOrPunctuationOnly(t *testing.T) {
	for _, q := range []string{"", "   ", "!!! ... ???"} {
		d := DetectScript(q)
		require.Equal(t, ScriptUnknown, d.Primary, q)
		require.Equal(t, 0.0, d.Confidence, q)
	}
}

func TestDetectScriptLatin(t *testing.T) {
	d := DetectScript("hello world quantum computing")
	require.Equal(t, ScriptLatin, d.Primary)
	require.Greater(t, d.Confidence, 0.9)
	require.False(t, d.Mixed)
}

func TestDetectScriptMixed(t *testing.T) {
	// Roughly half Latin, half Han -> both exceed the 20% share threshold.
	d := DetectScript("helloworld你好世界测试汉字")
	require.True(t, d.Mixed)
	require.Equal(t, ScriptMixed, d.Primary)
}

func TestDetectScriptCJKDominant(t *testing.T) {
	d := DetectScript("你好世界这是一个测试句子")
	require.Equal(t, ScriptHan, d.Primary)
	require.False(t, d.Mixed)
}
