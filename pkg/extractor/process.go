package extractor

import (
	"os/exec"
	"runtime"
)

// KillStrayProcesses terminates any extractor processes left over from
// a previous run. Called before starting a fresh fetch so at most one
// subprocess is ever alive. Errors are ignored; no match is the common
// case.
func KillStrayProcesses() {
	name := executableName()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("taskkill", "/F", "/IM", name)
	} else {
		cmd = exec.Command("pkill", "-f", name)
	}

	_ = cmd.Run()
}
