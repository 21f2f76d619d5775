// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package validator

// cmdStart matches the position where a command word may begin: start of
// line, whitespace, a shell separator or an opening quote. RE2 has no
// look-behind, so the separator is consumed.
const cmdStart = `(?:^|[\s;&|(){}"'])`

// cmdHead is stricter than cmdStart: only the first word of a pipeline
// element, so short aliases used as argument values do not match.
const cmdHead = `(?:^|[;&|(){}="'])\s*`

// psArgs spans the rest of a PowerShell command, including lines joined by
// a trailing backtick.
const psArgs = "(?:[^\n;|]|`\r?\n)*"

// psRecurseOrForce matches -Recurse and -Force and every prefix PowerShell
// accepts for them.
const psRecurseOrForce = `\s-(?:r(?:e(?:c(?:u(?:r(?:s(?:e)?)?)?)?)?)?|f(?:o(?:r(?:c(?:e)?)?)?)?)\b`

// DefaultRules returns the built-in denylist. It covers PowerShell/cmd.exe
// spellings as well as POSIX shell ones. Order matters: the first match is
// reported.
func DefaultRules() []Rule {
	return []Rule{
		// rm with a short option cluster containing r or f, or --recursive/--force
		{RecursiveDelete, `\brm\s+(?:[^\s;&|]+\s+)*(?:-[a-z]*[rf]|--(?:recursive|force)\b)`},
		{RecursiveDelete, `(?:\bRemove-Item|` + cmdHead + `(?:ri|rmdir|rd|del|erase))\b` + psArgs + psRecurseOrForce},
		{RecursiveDelete, `\b(?:rd|rmdir|del|erase)\s+(?:[^\s;&|]+\s+)*/[sq]\b`},
		{RecursiveDelete, `\bfind\b[^\n;|]*\s-delete\b`},

		{Format, cmdStart + `format\s+[a-z]:`},
		{Format, `\b(?:Format-Volume|Clear-Disk|Initialize-Disk)\b`},
		{Format, `\bmkfs(?:\.\w+)?\b`},
		{Format, `\b(?:wipefs|diskpart)\b`},
		{Format, `\bdd\b[^\n;|]*\bof=/dev/`},

		{Power, `\b(?:Stop-Computer|Restart-Computer)\b`},
		{Power, cmdStart + `(?:shutdown|reboot|poweroff|halt)\b`},
		{Power, `(?:^|\s)/(?:usr/)?s?bin/(?:shutdown|reboot|poweroff|halt)\b`},
		{Power, `\bsystemctl\s+(?:[^\s;&|]+\s+)*(?:reboot|poweroff|halt|kexec)\b`},
		{Power, cmdStart + `(?:init|telinit)\s+[06]\b`},

		{Service, `\b(?:New|Set|Start|Stop|Restart|Suspend|Remove)-Service\b`},
		{Service, `\bsc(?:\.exe)?\s+(?:create|config|delete|start|stop)\b`},
		{Service, `\bnet\s+(?:start|stop)\b`},
		{Service, `\bsystemctl\s+(?:[^\s;&|]+\s+)*(?:start|stop|restart|reload|enable|disable|mask|kill)\b`},
		{Service, cmdStart + `service\s+\S+\s+(?:start|stop|restart)\b`},

		{Account, `\bnet\s+(?:user|localgroup)\b`},
		{Account, `\b(?:New|Set|Remove|Enable|Disable|Rename)-LocalUser\b`},
		{Account, `\b(?:Add|Remove)-LocalGroupMember\b`},
		{Account, cmdStart + `(?:useradd|usermod|userdel|adduser|deluser|groupadd|groupmod|groupdel|chpasswd|passwd)(?:\s|$)`},

		{DynamicEval, `\bInvoke-Expression\b`},
		{DynamicEval, `\biex\b`},
		{DynamicEval, `\[ScriptBlock\]::Create\b`},
		// -EncodedCommand and its prefixes, plus the -e and -ec short forms
		{DynamicEval, `\b(?:powershell|pwsh)(?:\.exe)?\b[^\n;|]*\s[-/](?:e|ec|en[a-z]*)\b`},
		{DynamicEval, cmdStart + `eval\b`},
		{DynamicEval, `\b(?:ba|z|da|k)?sh\s+-c\b`},
		{DynamicEval, `\|\s*(?:ba|z|da|k)?sh\b`},
	}
}
