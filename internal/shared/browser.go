package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

var getRuntime = func() string { return runtime.GOOS }

// browserCommand returns the program and arguments that open url.
//
// $BROWSER wins when set; a "%s" in it is replaced by the url, otherwise the url is appended.
// Windows goes through rundll32 since "cmd /c start" splits the url on '&'.
func browserCommand(url string) (string, []string, error) {
	if b := strings.TrimSpace(os.Getenv("BROWSER")); b != "" {
		fields := strings.Fields(b)
		args := fields[1:]
		if strings.Contains(b, "%s") {
			for i, a := range args {
				args[i] = strings.ReplaceAll(a, "%s", url)
			}
		} else {
			args = append(args, url)
		}
		return fields[0], args, nil
	}

	switch rt := getRuntime(); rt {
	case "darwin":
		return "open", []string{url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", rt)
	}
}

// OpenBrowser starts the system browser on url without waiting for it to exit.
func OpenBrowser(url string) error {
	name, args, err := browserCommand(url)
	if err != nil {
		return err
	}

	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
