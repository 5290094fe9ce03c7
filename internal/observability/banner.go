package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset = "\033[0m"
	colorCyan  = "\033[36m"
	colorBold  = "\033[1m"
)

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// PrintBanner writes the startup banner for a master or robot process.
func PrintBanner(role, name string) {
	width := termWidth()
	if width > 72 {
		width = 72
	}
	line := strings.Repeat("═", width)
	fmt.Println(colorCyan + line + colorReset)
	fmt.Printf("%s%s FLEETOS %s%s :: %s\n", colorBold, colorCyan, colorReset, role, name)
	fmt.Printf("go %s :: started %s\n", runtime.Version(), startTime.Format(time.RFC3339))
	fmt.Println(colorCyan + line + colorReset)
}
