package templates

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Placeholders(t *testing.T) {
	tmpl, err := Parse("t", "a {{ONE}} b {{TWO|2}} c {{THREE!quote}} d {{FOUR!comment|x|y}} {{ONE}}")
	require.NoError(t, err)

	phs := tmpl.Placeholders()
	require.Len(t, phs, 4)

	assert.Equal(t, "ONE", phs[0].Key)
	assert.Equal(t, ModeRaw, phs[0].Mode)
	assert.False(t, phs[0].HasDefault)
	assert.Equal(t, 2, phs[0].Offset)

	assert.Equal(t, "TWO", phs[1].Key)
	assert.True(t, phs[1].HasDefault)
	assert.Equal(t, "2", phs[1].Default)

	assert.Equal(t, ModeQuote, phs[2].Mode)

	assert.Equal(t, ModeComment, phs[3].Mode)
	assert.Equal(t, "x|y", phs[3].Default)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		offset int
	}{
		{"unterminated", "echo {{KEY", 5},
		{"bad key", "x {{1KEY}}", 2},
		{"path key", "{{a/b}}", 0},
		{"empty", "ab{{}}", 2},
		{"unknown mode", "{{KEY!shell}}", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("broken", tt.body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRender))

			var renderErr *RenderError
			require.True(t, errors.As(err, &renderErr))
			assert.Equal(t, tt.offset, renderErr.Offset)
		})
	}
}

func TestRender_RoundTrip(t *testing.T) {
	tmpl, err := Parse("greeting", "Hello {{NAME}}, today is {{DATE}}. {{NAME}} again.")
	require.NoError(t, err)

	out, err := tmpl.Render(PowerShell, Parameters{"NAME": "World", "DATE": "2025-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "Hello World, today is 2025-01-01. World again.", out)
	assert.NotContains(t, out, "{{")
}

func TestRender_MissingParameter(t *testing.T) {
	tmpl, err := Parse("t", "{{A}} {{B}}")
	require.NoError(t, err)

	_, err = tmpl.Render(PowerShell, Parameters{"A": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingParameter))

	var missing *MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "B", missing.Key)
}

func TestRender_DefaultsAndExtraParameters(t *testing.T) {
	tmpl, err := Parse("t", "[{{A|fallback}}][{{B|}}]")
	require.NoError(t, err)

	out, err := tmpl.Render(PowerShell, Parameters{"UNUSED": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "[fallback][]", out)

	out, err = tmpl.Render(PowerShell, Parameters{"A": "given"})
	require.NoError(t, err)
	assert.Equal(t, "[given][]", out)
}

func TestRender_ValuesAreNotRescanned(t *testing.T) {
	tmpl, err := Parse("t", "{{A}}")
	require.NoError(t, err)

	out, err := tmpl.Render(PowerShell, Parameters{"A": "{{B}}"})
	require.NoError(t, err)
	assert.Equal(t, "{{B}}", out)
}

func TestRender_ValueCheck(t *testing.T) {
	tmpl, err := Parse("t", "{{CODE}} {{NOTE!comment|default}}")
	require.NoError(t, err)

	sentinel := errors.New("rejected")
	var checked []string
	check := WithValueCheck(func(ph Placeholder, v string) error {
		checked = append(checked, ph.Key)
		if ph.Mode == ModeRaw && strings.Contains(v, "bad") {
			return sentinel
		}
		return nil
	})

	_, err = tmpl.Render(PowerShell, Parameters{"CODE": "bad things"}, check)
	assert.ErrorIs(t, err, sentinel)

	checked = nil
	_, err = tmpl.Render(PowerShell, Parameters{"CODE": "good"}, check)
	require.NoError(t, err)
	// Template defaults are not caller input.
	assert.Equal(t, []string{"CODE"}, checked)
}

func TestRender_CodeCheck(t *testing.T) {
	tmpl, err := Parse("t", "{{A}}\n{{B}}\nX={{Q!quote}} {{TAIL|tail}} # {{NOTE!comment}}")
	require.NoError(t, err)

	sentinel := errors.New("pipe into shell")
	var seen []string
	check := WithCodeCheck(func(code string) error {
		seen = append(seen, code)
		if strings.Contains(code, "|\nsh") {
			return sentinel
		}
		return nil
	})

	_, err = tmpl.Render(PowerShell, Parameters{"A": "curl x |", "B": "sh", "Q": "|\nsh", "NOTE": "n"}, check)
	assert.ErrorIs(t, err, sentinel)
	require.NotEmpty(t, seen)
	assert.Equal(t, "curl x |\nsh\nX='' tail # ", seen[0])

	// Quoted and comment values never reach the check.
	seen = nil
	_, err = tmpl.Render(PowerShell, Parameters{"A": "echo", "B": "sh", "Q": "|\nsh", "NOTE": "|\nsh"}, check)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo\nsh\nX='' tail # "}, seen)
}

func TestRender_CodeCheckIgnoresTemplateText(t *testing.T) {
	tmpl, err := Parse("t", "danger {{A}} {{B|x}}")
	require.NoError(t, err)

	calls := 0
	check := WithCodeCheck(func(code string) error {
		calls++
		if strings.Contains(code, "danger") {
			return errors.New("rejected")
		}
		return nil
	})

	_, err = tmpl.Render(PowerShell, Parameters{"A": "ok"}, check)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	// Without caller raw values there is nothing to check.
	calls = 0
	tmpl, err = Parse("t", "{{A|default}} {{Q!quote}}")
	require.NoError(t, err)
	_, err = tmpl.Render(PowerShell, Parameters{"Q": "v"}, check)
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestPowerShellQuote_BreakOutAttempts(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"it's", "'it''s'"},
		{"'; Stop-Computer; '", "'''; Stop-Computer; '''"},
		{"$(Stop-Computer)", "'$(Stop-Computer)'"},
		{"’; Stop-Computer; ‘", "'’’; Stop-Computer; ‘‘'"},
		{"", "''"},
	}
	for _, tt := range tests {
		got, err := PowerShell.Quote(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestBashQuote_BreakOutAttempts(t *testing.T) {
	bashPath, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}

	inputs := []string{
		"plain",
		"it's",
		"'; touch /tmp/pwned; '",
		"$(touch /tmp/pwned)",
		"`touch /tmp/pwned`",
		"a\nb",
		"*",
		"",
	}
	for _, in := range inputs {
		quoted, err := Bash.Quote(in)
		require.NoError(t, err)

		script := "printf '%s' " + quoted
		require.NoError(t, Bash.CheckSyntax("quote", script))
		out, err := exec.Command(bashPath, "--noprofile", "--norc", "-c", script).Output()
		require.NoError(t, err, "script %q", script)
		assert.Equal(t, in, string(out))
	}
}

func TestBashQuote_RejectsNullBytes(t *testing.T) {
	_, err := Bash.Quote("a\x00b")
	assert.Error(t, err)
}

func TestComment_Neutralization(t *testing.T) {
	assert.Equal(t, "line one line two", Bash.Comment("line one\nline two"))
	assert.Equal(t, "a b c", Bash.Comment("a\r\nb\rc"))

	ps := PowerShell.Comment("end #> Stop-Computer <# again\nnext")
	assert.NotContains(t, ps, "#>")
	assert.NotContains(t, ps, "<#")
	assert.NotContains(t, ps, "\n")

	assert.NotContains(t, PowerShell.Comment("<#>"), "#>")
}

func TestRender_QuoteModeKeepsScriptIntact(t *testing.T) {
	tmpl, err := Parse("t", "DESC={{DESC!quote}}\necho \"$DESC\"\n")
	require.NoError(t, err)

	out, err := tmpl.Render(Bash, Parameters{"DESC": "x\"; reboot; echo \""})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "DESC='"))
}

func TestRender_BashSyntaxError(t *testing.T) {
	tmpl, err := Parse("t", "if true; then\n{{BODY}}\n")
	require.NoError(t, err)

	_, err = tmpl.Render(Bash, Parameters{"BODY": "echo hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRender))
}

func TestDialectByName(t *testing.T) {
	d, err := DialectByName("Bash")
	require.NoError(t, err)
	assert.Equal(t, ".sh", d.Extension())

	d, err = DialectByName("powershell")
	require.NoError(t, err)
	assert.Equal(t, ".ps1", d.Extension())

	_, err = DialectByName("cmd")
	assert.Error(t, err)
}

func TestEngine_RenderFromStore(t *testing.T) {
	store := FSStore(fstest.MapFS{
		"hello.ps1": {Data: []byte("Write-Output {{WHO!quote}}")},
	}, ".ps1")
	e := NewEngine(store, PowerShell)

	out, err := e.Render("hello", Parameters{"WHO": "O'Brien"})
	require.NoError(t, err)
	assert.Equal(t, "Write-Output 'O''Brien'", out)

	_, err = e.Render("missing", nil)
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}
