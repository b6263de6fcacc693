// Package logging provides the progress display and status lines for
// the generator cli.  Everything here is fire and forget; nothing is
// on a correctness path.
package logging

import (
	"fmt"
	"os"
	"sync"
)

const progressBarWidth = 40

var (
	mutex sync.Mutex

	progressActive bool
	progressLabel  string
)

func StartProgress(format string, args ...any) {
	mutex.Lock()
	defer mutex.Unlock()

	progressActive = true
	progressLabel = fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "%s\n", progressLabel)
}

func UpdateProgress(current int, max int) {
	mutex.Lock()
	defer mutex.Unlock()

	if !progressActive || max <= 0 {
		return
	}

	filled := current * progressBarWidth / max
	if filled > progressBarWidth {
		filled = progressBarWidth
	}

	bar := make([]byte, progressBarWidth)
	for idx := range bar {
		if idx < filled {
			bar[idx] = '#'
		} else {
			bar[idx] = ' '
		}
	}

	fmt.Fprintf(os.Stderr, "\r[%s] %d/%d", bar, current, max)
}

func EndProgress() {
	mutex.Lock()
	defer mutex.Unlock()

	if !progressActive {
		return
	}

	progressActive = false
	fmt.Fprintf(os.Stderr, "\n")
}

func Println(format string, args ...any) {
	mutex.Lock()
	defer mutex.Unlock()

	if progressActive {
		// Break out of the in-place progress line.
		fmt.Fprintf(os.Stderr, "\n")
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
